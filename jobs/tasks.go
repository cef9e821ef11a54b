package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/meshgate/meshgate/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditRetry replays an audit entry that failed to persist on the
	// request path.
	TaskTypeAuditRetry = "audit:retry"
	// TaskTypeSessionSweep removes registry entries for deactivated accounts.
	TaskTypeSessionSweep = "session:sweep"
)

// NewAuditRetryTask constructs an Asynq task carrying the failed entry.
func NewAuditRetryTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRetry, data), nil
}

// NewSessionSweepTask constructs the periodic sweep task.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionSweep, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueRetry schedules a failed audit entry for a later write attempt.
func (c *Client) EnqueueRetry(ctx context.Context, entry audit.Entry) error {
	task, err := NewAuditRetryTask(entry)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(10))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ audit.RetryEnqueuer = (*Client)(nil)
