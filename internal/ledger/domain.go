package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/shared"
)

// OwnerKind enumerates who may hold an account.
type OwnerKind string

const (
	OwnerPerson   OwnerKind = "PERSON"
	OwnerBank     OwnerKind = "BANK"
	OwnerClearing OwnerKind = "CLEARING"
)

// Owner identifies the single holder of an account: a member, a bank account or a
// department clearing account.
type Owner struct {
	Kind  OwnerKind
	RefID int64
}

// Validate ensures exactly one known owner kind is referenced.
func (o Owner) Validate() error {
	switch o.Kind {
	case OwnerPerson, OwnerBank, OwnerClearing:
	default:
		return ErrInvalidOwner
	}
	if o.RefID <= 0 {
		return ErrInvalidOwner
	}
	return nil
}

// Account holds a cached balance. The balance always equals the sum of the
// account's processed transactions.
type Account struct {
	ID               int64
	Name             string
	Owner            Owner
	UserID           *int64
	Balance          decimal.Decimal
	InterestEligible bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transaction is one signed posting. Amounts are signed from the account holder's
// point of view: positive raises the balance, negative lowers it and flows to the
// treasury. Budget aggregation counts negative amounts as earnings.
type Transaction struct {
	ID                   int64
	AccountID            int64
	Amount               decimal.Decimal
	PostingDate          time.Time
	ValueDate            time.Time
	Description          string
	Reference            string
	CounterTransactionID *int64
	CostCenterID         *int64
	AttachmentID         *int64
	Processed            bool
	CreatedBy            int64
	CreatedAt            time.Time
}

// IsEarning reports whether the posting is an inflow to the treasury.
func (t Transaction) IsEarning() bool {
	return t.Amount.IsNegative()
}

// PostingInput describes a single ledger posting.
type PostingInput struct {
	AccountID    int64
	Amount       decimal.Decimal
	Description  string
	Reference    string
	ValueDate    time.Time
	CostCenterID *int64
	AttachmentID *int64
	ActorID      int64
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if in.AccountID <= 0 {
		return ErrAccountRequired
	}
	if in.Amount.IsZero() {
		return ErrZeroAmount
	}
	if err := shared.CheckMoney(in.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrDescriptionRequired
	}
	if in.ValueDate.IsZero() {
		return ErrValueDateRequired
	}
	if in.CostCenterID != nil && *in.CostCenterID <= 0 {
		return shared.Validation("ledger: invalid cost center")
	}
	return nil
}

// TransferInput pairs two legs of one economic event. Each leg carries its own,
// already signed amount.
type TransferInput struct {
	Leg        PostingInput
	CounterLeg PostingInput
}

// Validate checks both legs.
func (in TransferInput) Validate() error {
	if err := in.Leg.Validate(); err != nil {
		return err
	}
	if err := in.CounterLeg.Validate(); err != nil {
		return err
	}
	if in.Leg.AccountID == in.CounterLeg.AccountID {
		return ErrSameAccount
	}
	return nil
}

// ProcessSummary reports a pending-transactions run.
type ProcessSummary struct {
	AsOf      time.Time
	Processed int
	Skipped   int
	Batches   int
}

// Reconciliation compares the cached balance with the transaction log.
type Reconciliation struct {
	AccountID  int64
	Cached     decimal.Decimal
	Computed   decimal.Decimal
	Difference decimal.Decimal
	Balanced   bool
}

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = shared.NotFound("ledger: account not found")
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = shared.NotFound("ledger: transaction not found")
	// ErrAccountRequired indicates a posting without account.
	ErrAccountRequired = shared.Validation("ledger: account required")
	// ErrZeroAmount rejects empty postings.
	ErrZeroAmount = shared.Validation("ledger: amount must be non-zero")
	// ErrDescriptionRequired rejects postings without text.
	ErrDescriptionRequired = shared.Validation("ledger: description required")
	// ErrValueDateRequired rejects postings without value date.
	ErrValueDateRequired = shared.Validation("ledger: value date required")
	// ErrSameAccount rejects transfers onto one account.
	ErrSameAccount = shared.Validation("ledger: transfer legs must use different accounts")
	// ErrInvalidOwner indicates a malformed owner reference.
	ErrInvalidOwner = shared.Validation("ledger: owner must reference exactly one person, bank or clearing account")
)
