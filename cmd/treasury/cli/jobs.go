package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/treasury/jobs"
)

// QueueInspector is the subset of asynq.Inspector used by the CLI.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    jobs.Enqueuer
	inspector QueueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by task name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, actorID int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	payload := jobs.RunPayload{RequestedAt: time.Now().UTC(), ActorID: actorID}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskLedgerProcessPending:
		task, err = jobs.NewProcessPendingTask(payload)
	case jobs.TaskInterestBill:
		task, err = jobs.NewInterestBillTask(payload)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// JobsCmd groups the job subcommands.
type JobsCmd struct {
	Trigger TriggerCmd `cmd:"" help:"Enqueue a treasury task."`
	Stats   StatsCmd   `cmd:"" help:"Show default queue counters."`
}

// TriggerCmd enqueues one run of a task.
type TriggerCmd struct {
	Task  string `arg:"" enum:"ledger:process-pending,interest:bill" help:"Task name."`
	Actor int64  `help:"Actor id recorded on audit entries." default:"0"`
}

// Run executes the trigger command.
func (cmd *TriggerCmd) Run(ctx context.Context, c *JobsCLI, out io.Writer) error {
	info, err := c.Trigger(ctx, cmd.Task, cmd.Actor)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		_, _ = fmt.Fprintf(out, "%s already queued\n", cmd.Task)
		return nil
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return nil
}

// StatsCmd prints queue counters.
type StatsCmd struct{}

// Run executes the stats command.
func (cmd *StatsCmd) Run(c *JobsCLI, out io.Writer) error {
	stats, err := c.InspectQueue()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return nil
}
