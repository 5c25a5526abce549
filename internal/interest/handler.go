package interest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/platform/httpx"
	"github.com/odyssey-erp/treasury/internal/shared"
)

const dateLayout = "2006-01-02"

type interestService interface {
	CreateDue(ctx context.Context, in DueInput) (Due, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time, actorID int64) (Due, error)
	Preview(ctx context.Context) (Result, error)
	BillInterest(ctx context.Context, actorID int64) (BillSummary, error)
}

// Handler exposes due and interest endpoints.
type Handler struct {
	logger   *slog.Logger
	service  interestService
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service interestService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers interest routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/dues", h.createDue)
	r.Post("/dues/{id}/paid", h.markPaid)
	r.Get("/preview", h.preview)
	r.Post("/bill", h.bill)
}

// DueRequest is the JSON body of a new due.
type DueRequest struct {
	AccountID   int64  `json:"account_id" validate:"required,gt=0"`
	Amount      string `json:"amount" validate:"required,numeric"`
	DueDate     string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"required,max=255"`
}

// PaidRequest optionally carries the payment date.
type PaidRequest struct {
	PaidAt string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

// DueResponse is the JSON view of a due.
type DueResponse struct {
	ID             int64   `json:"id"`
	AccountID      int64   `json:"account_id"`
	Amount         string  `json:"amount"`
	DueDate        string  `json:"due_date"`
	Description    string  `json:"description"`
	Paid           bool    `json:"paid"`
	PaidAt         *string `json:"paid_at,omitempty"`
	BilledThrough  *string `json:"billed_through,omitempty"`
	InterestBilled bool    `json:"interest_billed"`
}

func newDueResponse(d Due) DueResponse {
	out := DueResponse{
		ID:             d.ID,
		AccountID:      d.AccountID,
		Amount:         d.Amount.StringFixed(2),
		DueDate:        d.DueDate.Format(dateLayout),
		Description:    d.Description,
		Paid:           d.Paid,
		InterestBilled: d.InterestBilled,
	}
	if d.PaidAt != nil {
		v := d.PaidAt.Format(dateLayout)
		out.PaidAt = &v
	}
	if d.BilledThrough != nil {
		v := d.BilledThrough.Format(dateLayout)
		out.BilledThrough = &v
	}
	return out
}

func (h *Handler) createDue(w http.ResponseWriter, r *http.Request) {
	var req DueRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.RespondError(w, shared.Validation("interest: amount is not a decimal"))
		return
	}
	dueDate, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		httpx.RespondError(w, shared.Validation("interest: due date must be YYYY-MM-DD"))
		return
	}
	d, err := h.service.CreateDue(r.Context(), DueInput{
		AccountID:   req.AccountID,
		Amount:      amount,
		DueDate:     dueDate,
		Description: req.Description,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "create due", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newDueResponse(d))
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaidRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, err = time.Parse(dateLayout, req.PaidAt)
		if err != nil {
			httpx.RespondError(w, shared.Validation("interest: paid_at must be YYYY-MM-DD"))
			return
		}
	}
	d, err := h.service.MarkPaid(r.Context(), id, paidAt, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "mark due paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDueResponse(d))
}

type contributionView struct {
	DueID    int64  `json:"due_id"`
	Days     int    `json:"days"`
	Interest string `json:"interest"`
}

type accountView struct {
	AccountID int64  `json:"account_id"`
	Interest  string `json:"interest"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Preview(r.Context())
	if err != nil {
		h.fail(w, "preview interest", err)
		return
	}
	dues := make([]contributionView, 0, len(res.PerDue))
	for id, c := range res.PerDue {
		dues = append(dues, contributionView{DueID: id, Days: c.Days, Interest: c.Interest.StringFixed(2)})
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].DueID < dues[j].DueID })
	accounts := make([]accountView, 0, len(res.PerAccount))
	for id, v := range res.PerAccount {
		accounts = append(accounts, accountView{AccountID: id, Interest: v.StringFixed(2)})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].AccountID < accounts[j].AccountID })
	httpx.JSON(w, http.StatusOK, map[string]any{"dues": dues, "accounts": accounts})
}

func (h *Handler) bill(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.BillInterest(r.Context(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "bill interest", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":        summary.AsOf.Format(dateLayout),
		"accounts":     summary.Accounts,
		"dues":         summary.Dues,
		"total":        summary.Total.StringFixed(2),
		"transactions": summary.Transactions,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
