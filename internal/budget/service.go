package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/treasury/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records plan lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages budget plans, cost centers and their actuals.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePlan inserts a draft plan.
func (s *Service) CreatePlan(ctx context.Context, name string, actorID int64) (BudgetPlan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return BudgetPlan{}, shared.Validation("budget: plan name required")
	}
	var plan BudgetPlan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		plan, err = tx.InsertPlan(ctx, name)
		return err
	})
	if err != nil {
		return BudgetPlan{}, err
	}
	s.record(ctx, actorID, "budget_plan.create", plan.ID, map[string]any{"name": plan.Name})
	return plan, nil
}

// ActivatePlan moves a draft plan to active.
func (s *Service) ActivatePlan(ctx context.Context, planID, actorID int64) (BudgetPlan, error) {
	var plan BudgetPlan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		plan, err = tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if err := ValidatePlanTransition(plan.State, PlanStateActive); err != nil {
			return err
		}
		if err := tx.UpdatePlanState(ctx, planID, PlanStateActive); err != nil {
			return err
		}
		plan.State = PlanStateActive
		return nil
	})
	if err != nil {
		return BudgetPlan{}, err
	}
	s.record(ctx, actorID, "budget_plan.activate", planID, nil)
	return plan, nil
}

// GetPlan loads a plan.
func (s *Service) GetPlan(ctx context.Context, planID int64) (BudgetPlan, error) {
	var plan BudgetPlan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		plan, err = tx.GetPlan(ctx, planID)
		return err
	})
	return plan, err
}

// ListCostCenters returns the cost centers of a plan.
func (s *Service) ListCostCenters(ctx context.Context, planID int64) ([]CostCenter, error) {
	var out []CostCenter
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPlan(ctx, planID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListCostCenters(ctx, planID)
		return err
	})
	return out, err
}

// Recalculate refreshes the actual earnings and costs of every cost center in
// the plan from its tagged transactions.
func (s *Service) Recalculate(ctx context.Context, planID int64) ([]Actuals, error) {
	var rows []Actuals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockOpenPlan(ctx, tx, planID); err != nil {
			return err
		}
		var err error
		rows, err = recalculate(ctx, tx, planID)
		return err
	})
	return rows, err
}

// Finalize recalculates the plan and closes it in the same unit of work.
func (s *Service) Finalize(ctx context.Context, planID, actorID int64) ([]Actuals, error) {
	var rows []Actuals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := lockOpenPlan(ctx, tx, planID)
		if err != nil {
			return err
		}
		if err := ValidatePlanTransition(plan.State, PlanStateClosed); err != nil {
			return err
		}
		rows, err = recalculate(ctx, tx, planID)
		if err != nil {
			return err
		}
		return tx.UpdatePlanState(ctx, planID, PlanStateClosed)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "budget_plan.finalize", planID, map[string]any{"cost_centers": len(rows)})
	return rows, nil
}

func recalculate(ctx context.Context, tx TxRepository, planID int64) ([]Actuals, error) {
	centers, err := tx.ListCostCenters(ctx, planID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(centers))
	for _, cc := range centers {
		ids = append(ids, cc.ID)
	}
	txs, err := tx.ListTaggedTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	rows := Aggregate(centers, txs)
	if err := tx.UpdateActuals(ctx, rows); err != nil {
		return nil, fmt.Errorf("budget: write actuals: %w", err)
	}
	return rows, nil
}

func lockOpenPlan(ctx context.Context, tx TxRepository, planID int64) (BudgetPlan, error) {
	plan, err := tx.GetPlanForUpdate(ctx, planID)
	if err != nil {
		return BudgetPlan{}, err
	}
	if plan.State == PlanStateClosed {
		return BudgetPlan{}, ErrPlanClosed
	}
	return plan, nil
}

// lockCostCenter loads a cost center and locks its plan, failing when the plan is closed.
func lockCostCenter(ctx context.Context, tx TxRepository, id int64) (CostCenter, error) {
	cc, err := tx.GetCostCenter(ctx, id)
	if err != nil {
		return CostCenter{}, err
	}
	if _, err := lockOpenPlan(ctx, tx, cc.BudgetPlanID); err != nil {
		return CostCenter{}, err
	}
	return cc, nil
}

// CreateCostCenter adds a cost center to an open plan.
func (s *Service) CreateCostCenter(ctx context.Context, in CostCenterInput) (CostCenter, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return CostCenter{}, err
	}
	var cc CostCenter
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockOpenPlan(ctx, tx, in.BudgetPlanID); err != nil {
			return err
		}
		var err error
		cc, err = tx.InsertCostCenter(ctx, in)
		return err
	})
	if err != nil {
		return CostCenter{}, err
	}
	s.record(ctx, in.ActorID, "cost_center.create", cc.ID, map[string]any{"budget_plan_id": cc.BudgetPlanID, "name": cc.Name})
	return cc, nil
}

// UpdateCostCenter changes the name, expectations and donation flag. A cost
// center never moves between plans.
func (s *Service) UpdateCostCenter(ctx context.Context, id int64, in CostCenterInput) (CostCenter, error) {
	in.Name = strings.TrimSpace(in.Name)
	var cc CostCenter
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		cc, err = lockCostCenter(ctx, tx, id)
		if err != nil {
			return err
		}
		in.BudgetPlanID = cc.BudgetPlanID
		if err := in.Validate(); err != nil {
			return err
		}
		cc.Name = in.Name
		cc.EarningsExpected = in.EarningsExpected
		cc.CostsExpected = in.CostsExpected
		cc.DonationEligible = in.DonationEligible
		return tx.UpdateCostCenter(ctx, cc)
	})
	if err != nil {
		return CostCenter{}, err
	}
	s.record(ctx, in.ActorID, "cost_center.update", cc.ID, nil)
	return cc, nil
}

// DeleteCostCenter removes a cost center without postings.
func (s *Service) DeleteCostCenter(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockCostCenter(ctx, tx, id); err != nil {
			return err
		}
		n, err := tx.CountTransactions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrCostCenterInUse
		}
		return tx.DeleteCostCenter(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "cost_center.delete", id, nil)
	return nil
}

// Relink points a cost center at its successor in a following plan. A nil
// successor clears the link.
func (s *Service) Relink(ctx context.Context, id int64, successorID *int64, actorID int64) (CostCenter, error) {
	if successorID != nil && *successorID == id {
		return CostCenter{}, ErrSuccessorCycle
	}
	var cc CostCenter
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		cc, err = lockCostCenter(ctx, tx, id)
		if err != nil {
			return err
		}
		if successorID != nil {
			if err := checkChain(ctx, tx, id, *successorID); err != nil {
				return err
			}
		}
		if err := tx.SetSuccessor(ctx, id, successorID); err != nil {
			return err
		}
		cc.SuccessorID = successorID
		return nil
	})
	if err != nil {
		return CostCenter{}, err
	}
	s.record(ctx, actorID, "cost_center.relink", id, map[string]any{"successor_id": successorID})
	return cc, nil
}

// checkChain walks the successor chain starting at next and fails if it reaches id.
func checkChain(ctx context.Context, tx TxRepository, id, next int64) error {
	seen := map[int64]bool{id: true}
	cursor := &next
	for cursor != nil {
		if seen[*cursor] {
			return ErrSuccessorCycle
		}
		seen[*cursor] = true
		cc, err := tx.GetCostCenter(ctx, *cursor)
		if err != nil {
			return err
		}
		cursor = cc.SuccessorID
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "budget_plan"
	if strings.HasPrefix(action, "cost_center.") {
		entity = "cost_center"
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprint(entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
