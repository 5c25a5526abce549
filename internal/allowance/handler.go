package allowance

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

type allowanceService interface {
	CreateAllowance(ctx context.Context, in CreateInput) (Allowance, error)
	ReturnAllowance(ctx context.Context, in ReturnInput) (Allowance, error)
	GetAllowance(ctx context.Context, id int64) (Allowance, error)
}

// Handler exposes allowance endpoints.
type Handler struct {
	logger   *slog.Logger
	service  allowanceService
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service allowanceService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers allowance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/return", h.returnAllowance)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.CreateAllowance(r.Context(), in)
	if err != nil {
		h.fail(w, "create allowance", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(a))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.GetAllowance(r.Context(), id)
	if err != nil {
		h.fail(w, "get allowance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(a))
}

func (h *Handler) returnAllowance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ReturnRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.ReturnAllowance(r.Context(), in)
	if err != nil {
		h.fail(w, "return allowance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(a))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
