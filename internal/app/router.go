package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/treasury/internal/allowance"
	"github.com/odyssey-erp/treasury/internal/budget"
	"github.com/odyssey-erp/treasury/internal/donation"
	"github.com/odyssey-erp/treasury/internal/interest"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/observability"
	"github.com/odyssey-erp/treasury/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledger.Handler
	AllowanceHandler *allowance.Handler
	BudgetHandler    *budget.Handler
	InterestHandler  *interest.Handler
	DonationHandler  *donation.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	// Ready reports backing-store health for /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the chi.Router with treasury defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Ready(ctx); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("readiness check failed", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.LedgerHandler != nil {
			r.Route("/ledger", params.LedgerHandler.MountRoutes)
		}
		if params.AllowanceHandler != nil {
			r.Route("/allowances", params.AllowanceHandler.MountRoutes)
		}
		if params.BudgetHandler != nil {
			r.Route("/budget", params.BudgetHandler.MountRoutes)
		}
		if params.InterestHandler != nil {
			r.Route("/interest", params.InterestHandler.MountRoutes)
		}
		if params.DonationHandler != nil {
			r.Route("/donations", params.DonationHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
