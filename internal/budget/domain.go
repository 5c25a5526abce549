package budget

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/shared"
)

// PlanState enumerates the budget plan lifecycle.
type PlanState string

const (
	PlanStateDraft  PlanState = "DRAFT"
	PlanStateActive PlanState = "ACTIVE"
	PlanStateClosed PlanState = "CLOSED"
)

// ValidatePlanTransition allows draft -> active -> closed and draft -> closed.
// Closed is terminal.
func ValidatePlanTransition(current, target PlanState) error {
	if current == PlanStateClosed {
		return ErrPlanClosed
	}
	switch {
	case current == PlanStateDraft && (target == PlanStateActive || target == PlanStateClosed):
		return nil
	case current == PlanStateActive && target == PlanStateClosed:
		return nil
	}
	return ErrInvalidTransition
}

// BudgetPlan groups cost centers of one budget period.
type BudgetPlan struct {
	ID        int64
	Name      string
	State     PlanState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CostCenter is a budget line. Actual values are materialised by Recalculate and
// may lag behind the transactions tagged with the cost center.
type CostCenter struct {
	ID               int64
	BudgetPlanID     int64
	Name             string
	EarningsExpected decimal.Decimal
	CostsExpected    decimal.Decimal
	EarningsActual   decimal.Decimal
	CostsActual      decimal.Decimal
	SuccessorID      *int64
	DonationEligible bool
	UpdatedAt        time.Time
}

// Actuals is the recalculated result for one cost center.
type Actuals struct {
	CostCenterID   int64
	EarningsActual decimal.Decimal
	CostsActual    decimal.Decimal
}

// CostCenterInput captures create and update fields.
type CostCenterInput struct {
	BudgetPlanID     int64
	Name             string
	EarningsExpected decimal.Decimal
	CostsExpected    decimal.Decimal
	DonationEligible bool
	ActorID          int64
}

// Validate ensures the cost center input is coherent.
func (in CostCenterInput) Validate() error {
	if in.BudgetPlanID <= 0 {
		return shared.Validation("budget: plan required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("budget: name required")
	}
	if in.EarningsExpected.IsNegative() || in.CostsExpected.IsNegative() {
		return shared.Validation("budget: expected values must not be negative")
	}
	if err := shared.CheckMoney(in.EarningsExpected); err != nil {
		return err
	}
	if err := shared.CheckMoney(in.CostsExpected); err != nil {
		return err
	}
	return nil
}

var (
	// ErrPlanNotFound indicates a missing plan.
	ErrPlanNotFound = shared.NotFound("budget: plan not found")
	// ErrCostCenterNotFound indicates a missing cost center.
	ErrCostCenterNotFound = shared.NotFound("budget: cost center not found")
	// ErrPlanClosed is returned for any write against a closed plan.
	ErrPlanClosed = shared.Conflict("budget: plan is closed")
	// ErrInvalidTransition indicates an unsupported state change.
	ErrInvalidTransition = shared.Conflict("budget: invalid plan state transition")
	// ErrCostCenterInUse blocks deleting a cost center that has postings.
	ErrCostCenterInUse = shared.Conflict("budget: cost center has transactions")
	// ErrSuccessorCycle rejects successor links that loop back.
	ErrSuccessorCycle = shared.Validation("budget: successor chain must not form a cycle")
)
