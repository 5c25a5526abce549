package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/shared"
)

const dateLayout = "2006-01-02"

// PostingRequest is the JSON body of a single posting.
type PostingRequest struct {
	AccountID    int64  `json:"account_id" validate:"required,gt=0"`
	Amount       string `json:"amount" validate:"required,numeric"`
	Description  string `json:"description" validate:"required,max=255"`
	Reference    string `json:"reference" validate:"max=140"`
	ValueDate    string `json:"value_date" validate:"required,datetime=2006-01-02"`
	CostCenterID *int64 `json:"cost_center_id,omitempty" validate:"omitempty,gt=0"`
	AttachmentID *int64 `json:"attachment_id,omitempty" validate:"omitempty,gt=0"`
}

// ToInput converts the request into a PostingInput attributed to actorID.
func (r PostingRequest) ToInput(actorID int64) (PostingInput, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return PostingInput{}, shared.Validation("ledger: amount is not a decimal")
	}
	valueDate, err := time.Parse(dateLayout, r.ValueDate)
	if err != nil {
		return PostingInput{}, shared.Validation("ledger: value date must be YYYY-MM-DD")
	}
	return PostingInput{
		AccountID:    r.AccountID,
		Amount:       amount,
		Description:  r.Description,
		Reference:    r.Reference,
		ValueDate:    valueDate,
		CostCenterID: r.CostCenterID,
		AttachmentID: r.AttachmentID,
		ActorID:      actorID,
	}, nil
}

// TransferRequest carries both legs of a transfer.
type TransferRequest struct {
	Leg        PostingRequest `json:"leg"`
	CounterLeg PostingRequest `json:"counter_leg"`
}

// TransactionResponse is the JSON view of a transaction.
type TransactionResponse struct {
	ID                   int64  `json:"id"`
	AccountID            int64  `json:"account_id"`
	Amount               string `json:"amount"`
	PostingDate          string `json:"posting_date"`
	ValueDate            string `json:"value_date"`
	Description          string `json:"description"`
	Reference            string `json:"reference,omitempty"`
	CounterTransactionID *int64 `json:"counter_transaction_id,omitempty"`
	CostCenterID         *int64 `json:"cost_center_id,omitempty"`
	AttachmentID         *int64 `json:"attachment_id,omitempty"`
	Processed            bool   `json:"processed"`
}

// NewTransactionResponse maps a transaction for the API.
func NewTransactionResponse(t Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                   t.ID,
		AccountID:            t.AccountID,
		Amount:               t.Amount.StringFixed(2),
		PostingDate:          t.PostingDate.Format(dateLayout),
		ValueDate:            t.ValueDate.Format(dateLayout),
		Description:          t.Description,
		Reference:            t.Reference,
		CounterTransactionID: t.CounterTransactionID,
		CostCenterID:         t.CostCenterID,
		AttachmentID:         t.AttachmentID,
		Processed:            t.Processed,
	}
}

// AccountResponse is the JSON view of an account.
type AccountResponse struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	OwnerKind        OwnerKind `json:"owner_kind"`
	OwnerID          int64     `json:"owner_id"`
	Balance          string    `json:"balance"`
	InterestEligible bool      `json:"interest_eligible"`
}

// NewAccountResponse maps an account for the API.
func NewAccountResponse(a Account) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		Name:             a.Name,
		OwnerKind:        a.Owner.Kind,
		OwnerID:          a.Owner.RefID,
		Balance:          a.Balance.StringFixed(2),
		InterestEligible: a.InterestEligible,
	}
}
