package budget

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

type budgetService interface {
	CreatePlan(ctx context.Context, name string, actorID int64) (BudgetPlan, error)
	ActivatePlan(ctx context.Context, planID, actorID int64) (BudgetPlan, error)
	GetPlan(ctx context.Context, planID int64) (BudgetPlan, error)
	ListCostCenters(ctx context.Context, planID int64) ([]CostCenter, error)
	Recalculate(ctx context.Context, planID int64) ([]Actuals, error)
	Finalize(ctx context.Context, planID, actorID int64) ([]Actuals, error)
	CreateCostCenter(ctx context.Context, in CostCenterInput) (CostCenter, error)
	UpdateCostCenter(ctx context.Context, id int64, in CostCenterInput) (CostCenter, error)
	DeleteCostCenter(ctx context.Context, id, actorID int64) error
	Relink(ctx context.Context, id int64, successorID *int64, actorID int64) (CostCenter, error)
}

// Handler exposes budget plan endpoints.
type Handler struct {
	logger   *slog.Logger
	service  budgetService
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service budgetService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers budget routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/plans", func(r chi.Router) {
		r.Post("/", h.createPlan)
		r.Get("/{id}", h.getPlan)
		r.Post("/{id}/activate", h.activatePlan)
		r.Post("/{id}/recalculate", h.recalculate)
		r.Post("/{id}/finalize", h.finalize)
		r.Get("/{id}/cost-centers", h.listCostCenters)
		r.Post("/{id}/cost-centers", h.createCostCenter)
	})
	r.Route("/cost-centers/{id}", func(r chi.Router) {
		r.Put("/", h.updateCostCenter)
		r.Delete("/", h.deleteCostCenter)
		r.Post("/relink", h.relink)
	})
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	plan, err := h.service.CreatePlan(r.Context(), req.Name, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create plan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewPlanResponse(plan))
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		h.fail(w, "get plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewPlanResponse(plan))
}

func (h *Handler) activatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	plan, err := h.service.ActivatePlan(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "activate plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewPlanResponse(plan))
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Recalculate(r.Context(), id)
	if err != nil {
		h.fail(w, "recalculate plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newActualsResponse(rows))
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Finalize(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "finalize plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newActualsResponse(rows))
}

func (h *Handler) listCostCenters(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	centers, err := h.service.ListCostCenters(r.Context(), id)
	if err != nil {
		h.fail(w, "list cost centers", err)
		return
	}
	out := make([]CostCenterResponse, 0, len(centers))
	for _, cc := range centers {
		out = append(out, NewCostCenterResponse(cc))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createCostCenter(w http.ResponseWriter, r *http.Request) {
	planID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CostCenterRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(planID, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cc, err := h.service.CreateCostCenter(r.Context(), in)
	if err != nil {
		h.fail(w, "create cost center", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewCostCenterResponse(cc))
}

func (h *Handler) updateCostCenter(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CostCenterRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(0, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cc, err := h.service.UpdateCostCenter(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update cost center", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewCostCenterResponse(cc))
}

func (h *Handler) deleteCostCenter(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteCostCenter(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "delete cost center", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) relink(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RelinkRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cc, err := h.service.Relink(r.Context(), id, req.SuccessorID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "relink cost center", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewCostCenterResponse(cc))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
