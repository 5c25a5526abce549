package allowance

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// Allowance is an amount reserved from an account until it is returned, possibly
// minus a withheld part that is booked against a cost center.
type Allowance struct {
	ID            int64
	AccountID     int64
	Amount        decimal.Decimal
	Description   string
	ReturnDate    *time.Time
	Withheld      decimal.Decimal
	TransactionID int64
	CreatedBy     int64
	CreatedAt     time.Time
}

// Returned reports whether the allowance was already paid back.
func (a Allowance) Returned() bool {
	return a.ReturnDate != nil
}

// CreateInput reserves an allowance for an account owner.
type CreateInput struct {
	Owner       ledger.Owner
	Description string
	Amount      decimal.Decimal
	ActorID     int64
}

// Validate checks the create payload. The sign of Amount is ignored.
func (in CreateInput) Validate() error {
	if err := in.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrDescriptionRequired
	}
	if in.Amount.IsZero() {
		return ErrAmountRequired
	}
	if err := shared.CheckMoney(in.Amount); err != nil {
		return err
	}
	return nil
}

// ReturnInput pays an allowance back. When Withhold is set, WithholdAmount is
// kept by the treasury and booked against CostCenterID of BudgetPlanID.
type ReturnInput struct {
	AllowanceID         int64
	Withhold            bool
	WithholdAmount      decimal.Decimal
	WithholdDescription string
	BudgetPlanID        int64
	CostCenterID        int64
	ActorID             int64
}

// Validate checks the fields that do not depend on stored state.
func (in ReturnInput) Validate() error {
	if in.AllowanceID <= 0 {
		return shared.Validation("allowance: allowance id required")
	}
	if !in.Withhold {
		return nil
	}
	if !in.WithholdAmount.IsPositive() {
		return ErrWithholdAmount
	}
	if err := shared.CheckMoney(in.WithholdAmount); err != nil {
		return err
	}
	if strings.TrimSpace(in.WithholdDescription) == "" || in.BudgetPlanID <= 0 || in.CostCenterID <= 0 {
		return ErrWithholdIncomplete
	}
	return nil
}

var (
	// ErrAllowanceNotFound indicates a missing allowance.
	ErrAllowanceNotFound = shared.NotFound("allowance: not found")
	// ErrAlreadyReturned guards against returning an allowance twice.
	ErrAlreadyReturned = shared.Conflict("allowance: already returned")
	// ErrDescriptionRequired indicates a blank description.
	ErrDescriptionRequired = shared.Validation("allowance: description required")
	// ErrAmountRequired indicates a zero amount.
	ErrAmountRequired = shared.Validation("allowance: amount must not be zero")
	// ErrWithholdIncomplete indicates missing withholding fields.
	ErrWithholdIncomplete = shared.Validation("allowance: withholding requires amount, description, plan and cost center")
	// ErrWithholdAmount indicates a withheld amount outside (0, amount].
	ErrWithholdAmount = shared.Validation("allowance: withheld amount must be positive and not exceed the allowance")
	// ErrCostCenterMismatch indicates the cost center is not part of the plan.
	ErrCostCenterMismatch = shared.Validation("allowance: cost center does not belong to budget plan")
)
