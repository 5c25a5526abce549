package donation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/treasury/internal/platform/httpx"
	"github.com/odyssey-erp/treasury/internal/shared"
)

type donationService interface {
	CreateForTransaction(ctx context.Context, in CreateInput) (Donation, error)
	CreateBatch(ctx context.Context, inputs []CreateInput) []BatchResult
}

// Handler exposes donation receipt endpoints.
type Handler struct {
	logger   *slog.Logger
	service  donationService
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service donationService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers donation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Post("/batch", h.createBatch)
}

// CreateRequest asks for one receipt. The processor is the calling actor.
type CreateRequest struct {
	TransactionID int64  `json:"transaction_id" validate:"required,gt=0"`
	Description   string `json:"description" validate:"required,max=255"`
	Type          string `json:"type" validate:"required,oneof=FINANCIAL MATERIAL WAIVER"`
}

// BatchRequest carries several receipt requests.
type BatchRequest struct {
	Items []CreateRequest `json:"items" validate:"required,min=1,max=200,dive"`
}

// Response is the JSON view of a donation.
type Response struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	UserID        int64  `json:"user_id"`
	ProcessorID   int64  `json:"processor_id"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	Type          Type   `json:"type"`
	ReceiptID     string `json:"receipt_id"`
}

// NewResponse maps a donation for the API.
func NewResponse(d Donation) Response {
	return Response{
		ID:            d.ID,
		TransactionID: d.TransactionID,
		UserID:        d.UserID,
		ProcessorID:   d.ProcessorID,
		Date:          d.Date.Format("2006-01-02"),
		Description:   d.Description,
		Amount:        d.Amount.StringFixed(2),
		Type:          d.Type,
		ReceiptID:     d.ReceiptID.String(),
	}
}

type batchRow struct {
	TransactionID int64     `json:"transaction_id"`
	Donation      *Response `json:"donation,omitempty"`
	Status        int       `json:"status"`
	Error         string    `json:"error,omitempty"`
}

func (r CreateRequest) toInput(processorID int64) CreateInput {
	return CreateInput{TransactionID: r.TransactionID, Description: r.Description, Type: Type(r.Type), ProcessorID: processorID}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.CreateForTransaction(r.Context(), req.toInput(shared.ActorFromContext(r.Context())))
	if err != nil {
		h.fail(w, "create donation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(d))
}

// createBatch answers 207 with a status per row.
func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inputs := make([]CreateInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, item.toInput(actor))
	}
	results := h.service.CreateBatch(r.Context(), inputs)
	rows := make([]batchRow, 0, len(results))
	for _, res := range results {
		row := batchRow{TransactionID: res.TransactionID, Status: http.StatusCreated}
		if res.Err != nil {
			row.Status = httpx.StatusFor(res.Err)
			row.Error = res.Err.Error()
			if row.Status == http.StatusInternalServerError {
				h.logger.Error("create donation in batch", slog.Int64("transaction_id", res.TransactionID), slog.Any("error", res.Err))
				row.Error = http.StatusText(row.Status)
			}
		} else if res.Donation != nil {
			view := NewResponse(*res.Donation)
			row.Donation = &view
		}
		rows = append(rows, row)
	}
	httpx.JSON(w, http.StatusMultiStatus, rows)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
