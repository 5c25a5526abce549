package donation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/shared"
)

// Type classifies a donation receipt.
type Type string

const (
	TypeFinancial Type = "FINANCIAL"
	TypeMaterial  Type = "MATERIAL"
	TypeWaiver    Type = "WAIVER"
)

// Valid reports whether t is a known donation type.
func (t Type) Valid() bool {
	switch t {
	case TypeFinancial, TypeMaterial, TypeWaiver:
		return true
	}
	return false
}

// Donation is the immutable receipt derived from one transaction.
type Donation struct {
	ID            int64
	TransactionID int64
	UserID        int64
	ProcessorID   int64
	Date          time.Time
	Description   string
	Amount        decimal.Decimal
	Type          Type
	ReceiptID     uuid.UUID
	CreatedAt     time.Time
}

// CreateInput asks for a receipt for a transaction.
type CreateInput struct {
	TransactionID int64
	Description   string
	Type          Type
	ProcessorID   int64
}

// Validate checks the request fields.
func (in CreateInput) Validate() error {
	if in.TransactionID <= 0 {
		return shared.Validation("donation: transaction required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return shared.Validation("donation: description required")
	}
	if !in.Type.Valid() {
		return shared.Validation("donation: unknown type")
	}
	if in.ProcessorID <= 0 {
		return shared.Validation("donation: processor required")
	}
	return nil
}

// BatchResult reports the outcome of one batch row.
type BatchResult struct {
	TransactionID int64
	Donation      *Donation
	Err           error
}

var (
	// ErrDonationExists enforces one donation per transaction.
	ErrDonationExists = shared.Conflict("donation: already exists for transaction")
	// ErrNotEligible rejects transactions outside donation-eligible cost centers.
	ErrNotEligible = shared.Validation("donation: transaction is not donation eligible")
	// ErrNotProcessed rejects planned transactions that have not reached the balance.
	ErrNotProcessed = shared.Validation("donation: transaction is not processed yet")
	// ErrNoPerson rejects accounts without an associated member.
	ErrNoPerson = shared.Validation("donation: account has no associated person")
)
