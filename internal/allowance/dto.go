package allowance

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// CreateRequest is the JSON body for a new allowance.
type CreateRequest struct {
	OwnerKind   string `json:"owner_kind" validate:"required,oneof=PERSON BANK CLEARING"`
	OwnerID     int64  `json:"owner_id" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,max=255"`
	Amount      string `json:"amount" validate:"required,numeric"`
}

// ToInput converts the request.
func (r CreateRequest) ToInput(actorID int64) (CreateInput, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return CreateInput{}, shared.Validation("allowance: amount is not a decimal")
	}
	return CreateInput{
		Owner:       ledger.Owner{Kind: ledger.OwnerKind(r.OwnerKind), RefID: r.OwnerID},
		Description: r.Description,
		Amount:      amount,
		ActorID:     actorID,
	}, nil
}

// ReturnRequest is the JSON body for returning an allowance.
type ReturnRequest struct {
	Withhold            bool   `json:"withhold"`
	WithholdAmount      string `json:"withhold_amount" validate:"omitempty,numeric"`
	WithholdDescription string `json:"withhold_description" validate:"max=255"`
	BudgetPlanID        int64  `json:"budget_plan_id" validate:"omitempty,gt=0"`
	CostCenterID        int64  `json:"cost_center_id" validate:"omitempty,gt=0"`
}

// ToInput converts the request.
func (r ReturnRequest) ToInput(id, actorID int64) (ReturnInput, error) {
	in := ReturnInput{
		AllowanceID:         id,
		Withhold:            r.Withhold,
		WithholdDescription: r.WithholdDescription,
		BudgetPlanID:        r.BudgetPlanID,
		CostCenterID:        r.CostCenterID,
		ActorID:             actorID,
	}
	if r.WithholdAmount != "" {
		amount, err := decimal.NewFromString(r.WithholdAmount)
		if err != nil {
			return ReturnInput{}, shared.Validation("allowance: withhold amount is not a decimal")
		}
		in.WithholdAmount = amount
	}
	return in, nil
}

// Response is the JSON view of an allowance.
type Response struct {
	ID            int64   `json:"id"`
	AccountID     int64   `json:"account_id"`
	Amount        string  `json:"amount"`
	Description   string  `json:"description"`
	ReturnDate    *string `json:"return_date,omitempty"`
	Withheld      string  `json:"withheld"`
	TransactionID int64   `json:"transaction_id"`
}

// NewResponse maps an allowance for the API.
func NewResponse(a Allowance) Response {
	out := Response{
		ID:            a.ID,
		AccountID:     a.AccountID,
		Amount:        a.Amount.StringFixed(2),
		Description:   a.Description,
		Withheld:      a.Withheld.StringFixed(2),
		TransactionID: a.TransactionID,
	}
	if a.ReturnDate != nil {
		d := a.ReturnDate.Format("2006-01-02")
		out.ReturnDate = &d
	}
	return out
}
