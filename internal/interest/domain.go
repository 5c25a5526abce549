package interest

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/shared"
)

// Due is an outstanding obligation of an account. InterestEligible mirrors the
// owning account's flag.
type Due struct {
	ID               int64
	AccountID        int64
	Amount           decimal.Decimal
	DueDate          time.Time
	Description      string
	Paid             bool
	PaidAt           *time.Time
	// BilledThrough is the end of the last billed accrual window. Days before it
	// are never charged again.
	BilledThrough    *time.Time
	// InterestBilled is set once a paid due has been charged up to its payment.
	InterestBilled   bool
	InterestEligible bool
	CreatedAt        time.Time
}

// DueInput registers a new due.
type DueInput struct {
	AccountID   int64
	Amount      decimal.Decimal
	DueDate     time.Time
	Description string
	ActorID     int64
}

// Validate checks the due payload.
func (in DueInput) Validate() error {
	if in.AccountID <= 0 {
		return shared.Validation("interest: account required")
	}
	if !in.Amount.IsPositive() {
		return ErrAmountNotPositive
	}
	if err := shared.CheckMoney(in.Amount); err != nil {
		return err
	}
	if in.DueDate.IsZero() {
		return shared.Validation("interest: due date required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return shared.Validation("interest: description required")
	}
	return nil
}

// BillingMark advances the billed-through date of a due. Settled dues have been
// charged up to their payment and leave the accrual for good.
type BillingMark struct {
	DueID   int64
	Through time.Time
	Settled bool
}

// BillSummary reports one billing run.
type BillSummary struct {
	AsOf         time.Time
	Accounts     int
	Dues         int
	Total        decimal.Decimal
	Transactions []int64
}

var (
	// ErrDueNotFound indicates a missing due.
	ErrDueNotFound = shared.NotFound("interest: due not found")
	// ErrDueAlreadyPaid guards against paying a due twice.
	ErrDueAlreadyPaid = shared.Conflict("interest: due already paid")
	// ErrAmountNotPositive rejects zero or negative dues.
	ErrAmountNotPositive = shared.Validation("interest: amount must be positive")
	// ErrRateNegative rejects a negative interest rate.
	ErrRateNegative = shared.Validation("interest: rate must not be negative")
)
