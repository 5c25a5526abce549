package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/treasury/internal/platform/httpx"
	"github.com/odyssey-erp/treasury/internal/shared"
)

const idempotencyHeader = "Idempotency-Key"

type ledgerService interface {
	CreateTransaction(ctx context.Context, in PostingInput) (Transaction, error)
	CreateTransferPair(ctx context.Context, in TransferInput) (Transaction, Transaction, error)
	ProcessPendingTransactions(ctx context.Context) (ProcessSummary, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error)
	Reconcile(ctx context.Context, accountID int64) (Reconciliation, error)
}

// IdempotencyPort guards postings against retried requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// Handler wires ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ledgerService
	validate  *validator.Validate
	idem      IdempotencyPort
	reconcile singleflight.Group
}

// NewHandler builds a Handler instance. idem may be nil.
func NewHandler(logger *slog.Logger, service ledgerService, idem IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), idem: idem}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.createTransaction)
	r.Post("/transfers", h.createTransfer)
	r.Post("/pending/process", h.processPending)
	r.Get("/accounts/{id}", h.getAccount)
	r.Get("/accounts/{id}/transactions", h.listTransactions)
	r.Get("/accounts/{id}/reconcile", h.reconcileAccount)
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req PostingRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var created Transaction
	err = h.guarded(r, "ledger.transaction", func(ctx context.Context) error {
		var err error
		created, err = h.service.CreateTransaction(ctx, in)
		return err
	})
	if err != nil {
		h.fail(w, "create transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewTransactionResponse(created))
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	leg, err := req.Leg.ToInput(actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	counterLeg, err := req.CounterLeg.ToInput(actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var a, b Transaction
	err = h.guarded(r, "ledger.transfer", func(ctx context.Context) error {
		var err error
		a, b, err = h.service.CreateTransferPair(ctx, TransferInput{Leg: leg, CounterLeg: counterLeg})
		return err
	})
	if err != nil {
		h.fail(w, "create transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, []TransactionResponse{NewTransactionResponse(a), NewTransactionResponse(b)})
}

func (h *Handler) processPending(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ProcessPendingTransactions(r.Context())
	if err != nil {
		h.fail(w, "process pending", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":     summary.AsOf.Format(dateLayout),
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
	})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewAccountResponse(account))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txs, err := h.service.ListTransactions(r.Context(), id)
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, NewTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// reconcileAccount coalesces concurrent requests for the same account.
func (h *Handler) reconcileAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := r.Context()
	ch := h.reconcile.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		return h.service.Reconcile(context.WithoutCancel(ctx), id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		httpx.RespondError(w, ctx.Err())
		return
	case res = <-ch:
	}
	if res.Err != nil {
		h.fail(w, "reconcile account", res.Err)
		return
	}
	rec := res.Val.(Reconciliation)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id": rec.AccountID,
		"cached":     rec.Cached.StringFixed(2),
		"computed":   rec.Computed.StringFixed(2),
		"difference": rec.Difference.StringFixed(2),
		"balanced":   rec.Balanced,
	})
}

func (h *Handler) guarded(r *http.Request, scope string, fn func(context.Context) error) error {
	key := r.Header.Get(idempotencyHeader)
	if h.idem == nil || key == "" {
		return fn(r.Context())
	}
	if err := h.idem.CheckAndInsert(r.Context(), key, scope); err != nil {
		return err
	}
	if err := fn(r.Context()); err != nil {
		if delErr := h.idem.Delete(r.Context(), key, scope); delErr != nil {
			h.logger.Warn("release idempotency key", slog.String("scope", scope), slog.Any("error", delErr))
		}
		return err
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
