package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/treasury/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerProcessPending applies planned transactions whose value date arrived.
	TaskLedgerProcessPending = "ledger:process-pending"
	// TaskInterestBill books accrued interest on unbilled dues.
	TaskInterestBill = "interest:bill"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RunPayload carries scheduling metadata shared by the treasury tasks.
type RunPayload struct {
	RequestedAt time.Time `json:"requested_at"`
	ActorID     int64     `json:"actor_id,omitempty"`
}

// NewProcessPendingTask constructs the pending-processing task.
func NewProcessPendingTask(payload RunPayload) (*asynq.Task, error) {
	return newRunTask(TaskLedgerProcessPending, payload)
}

// NewInterestBillTask constructs the interest billing task.
func NewInterestBillTask(payload RunPayload) (*asynq.Task, error) {
	return newRunTask(TaskInterestBill, payload)
}

func newRunTask(taskType string, payload RunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// Unique keeps a second enqueue of the same run from queueing behind the first.
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.Unique(10*time.Minute)), nil
}

func decodeRunPayload(task *asynq.Task) (RunPayload, error) {
	var payload RunPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
