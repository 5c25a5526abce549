package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/treasury/internal/jobs"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// PendingProcessor applies planned transactions.
type PendingProcessor interface {
	ProcessPendingTransactions(ctx context.Context) (ledger.ProcessSummary, error)
}

// RunLocker hands out named leases around scheduled runs.
type RunLocker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, error)
}

// ProcessPendingJob runs pending processing under the redis run lock.
type ProcessPendingJob struct {
	Service PendingProcessor
	Lock    RunLocker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewProcessPendingJob constructs the job handler.
func NewProcessPendingJob(service PendingProcessor, lock RunLocker, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProcessPendingJob {
	return &ProcessPendingJob{Service: service, Lock: lock, Logger: logger, Metrics: metrics}
}

// Handle executes one pending run. A run that finds the lock held is skipped,
// not retried; the holder covers the same rows.
func (j *ProcessPendingJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("process pending: dependencies not configured")
	}
	if _, err := decodeRunPayload(task); err != nil {
		return asynq.SkipRetry
	}
	release, err := acquire(ctx, j.Lock, TaskLedgerProcessPending)
	if errors.Is(err, shared.ErrLockHeld) {
		j.metrics().Skipped(TaskLedgerProcessPending)
		j.log().Info("pending run already in progress")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			j.log().Warn("release run lock", slog.Any("error", relErr))
		}
	}()

	tracker := j.metrics().Track(TaskLedgerProcessPending)
	defer func() {
		err = tracker.End(err)
	}()

	summary, err := j.Service.ProcessPendingTransactions(ctx)
	if err != nil {
		j.log().Error("process pending transactions", slog.Int("processed", summary.Processed), slog.Any("error", err))
		return fmt.Errorf("process pending: %w", err)
	}
	j.metrics().AddItems(TaskLedgerProcessPending, summary.Processed)
	j.log().Info("processed pending transactions",
		slog.String("as_of", summary.AsOf.Format("2006-01-02")),
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("batches", summary.Batches))
	return nil
}

func (j *ProcessPendingJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ProcessPendingJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerProcessPending))
	}
	return slog.Default().With(slog.String("job", TaskLedgerProcessPending))
}

func acquire(ctx context.Context, lock RunLocker, name string) (func(context.Context) error, error) {
	if lock == nil {
		return func(context.Context) error { return nil }, nil
	}
	return lock.Acquire(ctx, name)
}
