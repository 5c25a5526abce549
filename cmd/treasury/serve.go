package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/treasury/internal/allowance"
	"github.com/odyssey-erp/treasury/internal/app"
	"github.com/odyssey-erp/treasury/internal/budget"
	"github.com/odyssey-erp/treasury/internal/donation"
	"github.com/odyssey-erp/treasury/internal/interest"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/observability"
	"github.com/odyssey-erp/treasury/internal/platform/cache"
	"github.com/odyssey-erp/treasury/internal/platform/db"
	"github.com/odyssey-erp/treasury/internal/shared"
	"github.com/odyssey-erp/treasury/jobs"
)

// ServeCmd runs the HTTP API until the context is cancelled.
type ServeCmd struct {
	ShutdownTimeout time.Duration `help:"Grace period for in-flight requests." default:"10s"`
}

// Run wires repositories, services and handlers and serves them.
func (cmd *ServeCmd) Run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		return err
	}
	defer pool.Close()

	if redisClient, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, job routes will fail", slog.Any("error", err))
	} else {
		_ = redisClient.Close()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger)
	allowanceService := allowance.NewService(allowance.NewRepository(pool), auditLogger)
	budgetService := budget.NewService(budget.NewRepository(pool), auditLogger)
	donationService := donation.NewService(donation.NewRepository(pool), auditLogger)
	interestService, err := interest.NewService(interest.NewRepository(pool), auditLogger, interest.Config{
		RatePercent:  cfg.InterestRatePercent,
		CostCenterID: cfg.InterestCostCenter(),
	})
	if err != nil {
		return fmt.Errorf("interest service: %w", err)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() { _ = jobClient.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledger.NewHandler(logger, ledgerService, idempotencyStore),
		AllowanceHandler: allowance.NewHandler(logger, allowanceService),
		BudgetHandler:    budget.NewHandler(logger, budgetService),
		InterestHandler:  interest.NewHandler(logger, interestService),
		DonationHandler:  donation.NewHandler(logger, donationService),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		Metrics:          metrics,
		Ready:            pool.Ping,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
