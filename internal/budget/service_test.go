package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/treasury/internal/shared"
)

func setupPlan(t *testing.T) (*Service, *memoryRepo, BudgetPlan, CostCenter) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	plan, err := svc.CreatePlan(ctx, "2024", 1)
	require.NoError(t, err)
	cc, err := svc.CreateCostCenter(ctx, CostCenterInput{
		BudgetPlanID:     plan.ID,
		Name:             "Summer camp",
		EarningsExpected: decimal.NewFromInt(100),
		CostsExpected:    decimal.NewFromInt(80),
	})
	require.NoError(t, err)
	return svc, repo, plan, cc
}

func TestRecalculateWritesActuals(t *testing.T) {
	svc, repo, plan, cc := setupPlan(t)
	repo.tag(cc.ID, "-30")
	repo.tag(cc.ID, "20")
	repo.tag(cc.ID, "-5")

	rows, err := svc.Recalculate(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	stored := repo.center(cc.ID)
	require.True(t, stored.EarningsActual.Equal(decimal.NewFromInt(35)))
	require.True(t, stored.CostsActual.Equal(decimal.NewFromInt(20)))
}

func TestRecalculateRollsBackOnWriteFailure(t *testing.T) {
	svc, repo, plan, cc := setupPlan(t)
	repo.tag(cc.ID, "-30")
	repo.failActuals = errors.New("disk full")

	_, err := svc.Recalculate(context.Background(), plan.ID)
	require.Error(t, err)
	require.True(t, repo.center(cc.ID).EarningsActual.IsZero())
}

func TestFinalizeFreezesPlan(t *testing.T) {
	svc, repo, plan, cc := setupPlan(t)
	ctx := context.Background()
	repo.tag(cc.ID, "-30")
	repo.tag(cc.ID, "20")

	_, err := svc.Finalize(ctx, plan.ID, 1)
	require.NoError(t, err)
	frozen := repo.center(cc.ID)

	repo.tag(cc.ID, "-1000")
	_, err = svc.Recalculate(ctx, plan.ID)
	require.ErrorIs(t, err, ErrPlanClosed)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.Finalize(ctx, plan.ID, 1)
	require.ErrorIs(t, err, ErrPlanClosed)

	after := repo.center(cc.ID)
	require.True(t, frozen.EarningsActual.Equal(after.EarningsActual))
	require.True(t, frozen.CostsActual.Equal(after.CostsActual))

	got, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, PlanStateClosed, got.State)
}

func TestClosedPlanRejectsCostCenterWrites(t *testing.T) {
	svc, repo, plan, cc := setupPlan(t)
	ctx := context.Background()
	_, err := svc.Finalize(ctx, plan.ID, 1)
	require.NoError(t, err)

	_, err = svc.CreateCostCenter(ctx, CostCenterInput{BudgetPlanID: plan.ID, Name: "Late"})
	require.ErrorIs(t, err, ErrPlanClosed)
	_, err = svc.UpdateCostCenter(ctx, cc.ID, CostCenterInput{Name: "Renamed"})
	require.ErrorIs(t, err, ErrPlanClosed)
	require.ErrorIs(t, svc.DeleteCostCenter(ctx, cc.ID, 1), ErrPlanClosed)
	_, err = svc.Relink(ctx, cc.ID, nil, 1)
	require.ErrorIs(t, err, ErrPlanClosed)
	_, err = svc.ActivatePlan(ctx, plan.ID, 1)
	require.ErrorIs(t, err, ErrPlanClosed)

	require.Equal(t, "Summer camp", repo.center(cc.ID).Name)
}

func TestActivatePlanOnlyFromDraft(t *testing.T) {
	svc, _, plan, _ := setupPlan(t)
	ctx := context.Background()
	active, err := svc.ActivatePlan(ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, PlanStateActive, active.State)
	_, err = svc.ActivatePlan(ctx, plan.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateCostCenterKeepsPlan(t *testing.T) {
	svc, repo, plan, cc := setupPlan(t)
	updated, err := svc.UpdateCostCenter(context.Background(), cc.ID, CostCenterInput{
		BudgetPlanID:     plan.ID + 99,
		Name:             " Winter camp ",
		CostsExpected:    decimal.NewFromInt(10),
		DonationEligible: true,
	})
	require.NoError(t, err)
	require.Equal(t, plan.ID, updated.BudgetPlanID)
	require.Equal(t, "Winter camp", repo.center(cc.ID).Name)
	require.True(t, repo.center(cc.ID).DonationEligible)

	_, err = svc.UpdateCostCenter(context.Background(), cc.ID, CostCenterInput{Name: "x", CostsExpected: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.UpdateCostCenter(context.Background(), cc.ID, CostCenterInput{Name: "x", CostsExpected: decimal.RequireFromString("1.234")})
	require.ErrorIs(t, err, shared.ErrAmountPrecision)
}

func TestDeleteCostCenter(t *testing.T) {
	svc, repo, plan, cc := setupPlan(t)
	ctx := context.Background()
	other, err := svc.CreateCostCenter(ctx, CostCenterInput{BudgetPlanID: plan.ID, Name: "Hiking"})
	require.NoError(t, err)
	_, err = svc.Relink(ctx, other.ID, &cc.ID, 1)
	require.NoError(t, err)

	repo.tag(other.ID, "5")
	require.ErrorIs(t, svc.DeleteCostCenter(ctx, other.ID, 1), ErrCostCenterInUse)

	require.NoError(t, svc.DeleteCostCenter(ctx, cc.ID, 1))
	require.Nil(t, repo.center(other.ID).SuccessorID)
	require.ErrorIs(t, svc.DeleteCostCenter(ctx, cc.ID, 1), ErrCostCenterNotFound)
}

func TestRelinkRejectsCycles(t *testing.T) {
	svc, _, plan, a := setupPlan(t)
	ctx := context.Background()
	next, err := svc.CreatePlan(ctx, "2025", 1)
	require.NoError(t, err)
	b, err := svc.CreateCostCenter(ctx, CostCenterInput{BudgetPlanID: next.ID, Name: "Summer camp"})
	require.NoError(t, err)
	c, err := svc.CreateCostCenter(ctx, CostCenterInput{BudgetPlanID: plan.ID, Name: "Other"})
	require.NoError(t, err)

	_, err = svc.Relink(ctx, a.ID, &a.ID, 1)
	require.ErrorIs(t, err, ErrSuccessorCycle)

	linked, err := svc.Relink(ctx, a.ID, &b.ID, 1)
	require.NoError(t, err)
	require.Equal(t, b.ID, *linked.SuccessorID)
	_, err = svc.Relink(ctx, b.ID, &c.ID, 1)
	require.NoError(t, err)

	_, err = svc.Relink(ctx, c.ID, &a.ID, 1)
	require.ErrorIs(t, err, ErrSuccessorCycle)

	missing := int64(999)
	_, err = svc.Relink(ctx, c.ID, &missing, 1)
	require.ErrorIs(t, err, ErrCostCenterNotFound)
}

func TestListCostCentersUnknownPlan(t *testing.T) {
	svc, _, plan, _ := setupPlan(t)
	rows, err := svc.ListCostCenters(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, err = svc.ListCostCenters(context.Background(), 404)
	require.ErrorIs(t, err, ErrPlanNotFound)
}
