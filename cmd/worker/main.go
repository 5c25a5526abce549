package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/treasury/internal/app"
	"github.com/odyssey-erp/treasury/internal/interest"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/observability"
	"github.com/odyssey-erp/treasury/internal/platform/cache"
	"github.com/odyssey-erp/treasury/internal/platform/db"
	"github.com/odyssey-erp/treasury/internal/shared"
	"github.com/odyssey-erp/treasury/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger)
	interestService, err := interest.NewService(interest.NewRepository(pool), auditLogger, interest.Config{
		RatePercent:  cfg.InterestRatePercent,
		CostCenterID: cfg.InterestCostCenter(),
	})
	if err != nil {
		logger.Error("init interest service", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	runLock := shared.NewRunLock(redisClient, cfg.RunLockTTL)
	pendingJob := jobs.NewProcessPendingJob(ledgerService, runLock, logger, metrics.Jobs())
	interestJob := jobs.NewInterestBillJob(interestService, runLock, logger, metrics.Jobs())

	pendingTask, err := jobs.NewProcessPendingTask(jobs.RunPayload{})
	if err != nil {
		logger.Error("build pending task", slog.Any("error", err))
		os.Exit(1)
	}
	interestTask, err := jobs.NewInterestBillTask(jobs.RunPayload{})
	if err != nil {
		logger.Error("build interest task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerProcessPending, Handler: pendingJob.Handle},
			{Type: jobs.TaskInterestBill, Handler: interestJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PendingCron, Task: pendingTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.InterestCron, Task: interestTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Method(http.MethodGet, "/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsRouter, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting metrics listener", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
