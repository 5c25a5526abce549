package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/treasury/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "abc", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return s.info, s.err }
func (s stubInspector) Close() error { return nil }

func TestTriggerSupportedTasks(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq}

	_, err := c.Trigger(context.Background(), jobs.TaskInterestBill, 3)
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), jobs.TaskLedgerProcessPending, 0)
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), "report:build", 0)
	require.Error(t, err)

	require.Len(t, enq.tasks, 2)
	require.Equal(t, jobs.TaskInterestBill, enq.tasks[0].Type())
}

func TestTriggerCmdOutput(t *testing.T) {
	var out bytes.Buffer
	cmd := &TriggerCmd{Task: jobs.TaskLedgerProcessPending}
	require.NoError(t, cmd.Run(context.Background(), &JobsCLI{client: &stubEnqueuer{}}, &out))
	require.Contains(t, out.String(), "enqueued ledger:process-pending id=abc")

	out.Reset()
	dup := &JobsCLI{client: &stubEnqueuer{err: asynq.ErrDuplicateTask}}
	require.NoError(t, cmd.Run(context.Background(), dup, &out))
	require.Contains(t, out.String(), "already queued")
}

func TestStatsCmd(t *testing.T) {
	var out bytes.Buffer
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}}}
	require.NoError(t, (&StatsCmd{}).Run(c, &out))
	require.Equal(t, "queue=default pending=2 active=0 scheduled=0 retry=1\n", out.String())

	failing := &JobsCLI{inspector: stubInspector{err: errors.New("redis down")}}
	require.Error(t, (&StatsCmd{}).Run(failing, &out))
}
