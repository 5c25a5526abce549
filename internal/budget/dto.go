package budget

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/shared"
)

// PlanRequest creates a budget plan.
type PlanRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// CostCenterRequest creates or updates a cost center.
type CostCenterRequest struct {
	Name             string `json:"name" validate:"required,max=120"`
	EarningsExpected string `json:"earnings_expected" validate:"omitempty,numeric"`
	CostsExpected    string `json:"costs_expected" validate:"omitempty,numeric"`
	DonationEligible bool   `json:"donation_eligible"`
}

// ToInput parses the money fields.
func (r CostCenterRequest) ToInput(planID, actorID int64) (CostCenterInput, error) {
	earnings, err := parseOptional(r.EarningsExpected)
	if err != nil {
		return CostCenterInput{}, err
	}
	costs, err := parseOptional(r.CostsExpected)
	if err != nil {
		return CostCenterInput{}, err
	}
	return CostCenterInput{
		BudgetPlanID:     planID,
		Name:             r.Name,
		EarningsExpected: earnings,
		CostsExpected:    costs,
		DonationEligible: r.DonationEligible,
		ActorID:          actorID,
	}, nil
}

func parseOptional(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, shared.Validation("budget: amount is not a decimal")
	}
	return v, nil
}

// RelinkRequest sets or clears the successor.
type RelinkRequest struct {
	SuccessorID *int64 `json:"successor_id" validate:"omitempty,gt=0"`
}

// PlanResponse is the JSON view of a plan.
type PlanResponse struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	State PlanState `json:"state"`
}

// NewPlanResponse maps a plan for the API.
func NewPlanResponse(p BudgetPlan) PlanResponse {
	return PlanResponse{ID: p.ID, Name: p.Name, State: p.State}
}

// CostCenterResponse is the JSON view of a cost center.
type CostCenterResponse struct {
	ID               int64  `json:"id"`
	BudgetPlanID     int64  `json:"budget_plan_id"`
	Name             string `json:"name"`
	EarningsExpected string `json:"earnings_expected"`
	CostsExpected    string `json:"costs_expected"`
	EarningsActual   string `json:"earnings_actual"`
	CostsActual      string `json:"costs_actual"`
	SuccessorID      *int64 `json:"successor_id,omitempty"`
	DonationEligible bool   `json:"donation_eligible"`
}

// NewCostCenterResponse maps a cost center for the API.
func NewCostCenterResponse(cc CostCenter) CostCenterResponse {
	return CostCenterResponse{
		ID:               cc.ID,
		BudgetPlanID:     cc.BudgetPlanID,
		Name:             cc.Name,
		EarningsExpected: cc.EarningsExpected.StringFixed(2),
		CostsExpected:    cc.CostsExpected.StringFixed(2),
		EarningsActual:   cc.EarningsActual.StringFixed(2),
		CostsActual:      cc.CostsActual.StringFixed(2),
		SuccessorID:      cc.SuccessorID,
		DonationEligible: cc.DonationEligible,
	}
}

// ActualsResponse is one recalculated row.
type ActualsResponse struct {
	CostCenterID   int64  `json:"cost_center_id"`
	EarningsActual string `json:"earnings_actual"`
	CostsActual    string `json:"costs_actual"`
}

func newActualsResponse(rows []Actuals) []ActualsResponse {
	out := make([]ActualsResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, ActualsResponse{
			CostCenterID:   row.CostCenterID,
			EarningsActual: row.EarningsActual.StringFixed(2),
			CostsActual:    row.CostsActual.StringFixed(2),
		})
	}
	return out
}
