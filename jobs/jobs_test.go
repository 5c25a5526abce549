package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/treasury/internal/interest"
	jobmetrics "github.com/odyssey-erp/treasury/internal/jobs"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/shared"
)

type stubPending struct {
	calls   atomic.Int32
	summary ledger.ProcessSummary
	err     error
}

func (s *stubPending) ProcessPendingTransactions(ctx context.Context) (ledger.ProcessSummary, error) {
	s.calls.Add(1)
	return s.summary, s.err
}

type stubBiller struct {
	actor int64
	err   error
}

func (s *stubBiller) BillInterest(ctx context.Context, actorID int64) (interest.BillSummary, error) {
	s.actor = actorID
	if s.err != nil {
		return interest.BillSummary{}, s.err
	}
	return interest.BillSummary{AsOf: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Accounts: 1, Dues: 2, Total: decimal.RequireFromString("-1.25")}, nil
}

func newLock(t *testing.T) (*shared.RunLock, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewRunLock(client, time.Minute), client
}

func TestProcessPendingJobRuns(t *testing.T) {
	lock, client := newLock(t)
	svc := &stubPending{summary: ledger.ProcessSummary{Processed: 4}}
	job := NewProcessPendingJob(svc, lock, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewProcessPendingTask(RunPayload{RequestedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.EqualValues(t, 1, svc.calls.Load())

	// lease released after the run
	exists, err := client.Exists(context.Background(), shared.RunLockKey(TaskLedgerProcessPending)).Result()
	require.NoError(t, err)
	require.Zero(t, exists)
}

func TestProcessPendingJobSkipsWhenLocked(t *testing.T) {
	lock, _ := newLock(t)
	release, err := lock.Acquire(context.Background(), TaskLedgerProcessPending)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	svc := &stubPending{}
	job := NewProcessPendingJob(svc, lock, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewProcessPendingTask(RunPayload{})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, svc.calls.Load())
}

func TestProcessPendingJobPropagatesFailure(t *testing.T) {
	lock, _ := newLock(t)
	boom := errors.New("db down")
	job := NewProcessPendingJob(&stubPending{err: boom}, lock, nil, nil)
	task, err := NewProcessPendingTask(RunPayload{})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, boom)
}

func TestProcessPendingJobRejectsBadPayload(t *testing.T) {
	job := NewProcessPendingJob(&stubPending{}, nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerProcessPending, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInterestBillJobPassesActor(t *testing.T) {
	lock, _ := newLock(t)
	svc := &stubBiller{}
	job := NewInterestBillJob(svc, lock, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewInterestBillTask(RunPayload{ActorID: 9})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.EqualValues(t, 9, svc.actor)
}

func TestInterestBillJobMissingService(t *testing.T) {
	var job *InterestBillJob
	task, err := NewInterestBillTask(RunPayload{})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

func TestHandlerEnqueuesTasks(t *testing.T) {
	enq := &stubEnqueuer{}
	h := NewHandler(nil, NewClientWith(enq), nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	for _, path := range []string{"/process-pending", "/interest-bill"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req = req.WithContext(shared.ContextWithActor(req.Context(), 5))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code, path)
	}
	require.Len(t, enq.tasks, 2)
	require.Equal(t, TaskLedgerProcessPending, enq.tasks[0].Type())
	require.Equal(t, TaskInterestBill, enq.tasks[1].Type())

	payload, err := decodeRunPayload(enq.tasks[1])
	require.NoError(t, err)
	require.EqualValues(t, 5, payload.ActorID)
}

func TestHandlerDuplicateRun(t *testing.T) {
	h := NewHandler(nil, NewClientWith(&stubEnqueuer{err: asynq.ErrDuplicateTask}), nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interest-bill", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/process-pending", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
