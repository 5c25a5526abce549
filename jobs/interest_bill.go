package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/treasury/internal/interest"
	jobmetrics "github.com/odyssey-erp/treasury/internal/jobs"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// InterestBiller books accrued interest.
type InterestBiller interface {
	BillInterest(ctx context.Context, actorID int64) (interest.BillSummary, error)
}

// InterestBillJob runs the interest billing under the redis run lock.
type InterestBillJob struct {
	Service InterestBiller
	Lock    RunLocker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInterestBillJob constructs the job handler.
func NewInterestBillJob(service InterestBiller, lock RunLocker, logger *slog.Logger, metrics *jobmetrics.Metrics) *InterestBillJob {
	return &InterestBillJob{Service: service, Lock: lock, Logger: logger, Metrics: metrics}
}

// Handle executes one billing run.
func (j *InterestBillJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("interest bill: dependencies not configured")
	}
	payload, err := decodeRunPayload(task)
	if err != nil {
		return asynq.SkipRetry
	}
	release, err := acquire(ctx, j.Lock, TaskInterestBill)
	if errors.Is(err, shared.ErrLockHeld) {
		j.metrics().Skipped(TaskInterestBill)
		j.log().Info("interest billing already in progress")
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

	tracker := j.metrics().Track(TaskInterestBill)
	defer func() {
		err = tracker.End(err)
	}()

	summary, err := j.Service.BillInterest(ctx, payload.ActorID)
	if err != nil {
		j.log().Error("bill interest", slog.Any("error", err))
		return fmt.Errorf("interest bill: %w", err)
	}
	j.metrics().AddItems(TaskInterestBill, summary.Dues)
	j.log().Info("billed interest",
		slog.String("as_of", summary.AsOf.Format("2006-01-02")),
		slog.Int("accounts", summary.Accounts),
		slog.Int("dues", summary.Dues),
		slog.String("total", summary.Total.StringFixed(2)))
	return nil
}

func (j *InterestBillJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *InterestBillJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInterestBill))
	}
	return slog.Default().With(slog.String("job", TaskInterestBill))
}
