package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meshgate/meshgate/internal/audit"
	jobmetrics "github.com/meshgate/meshgate/internal/jobs"
)

// AuditRetryJob replays audit entries whose request-path write failed. The
// trail stays append-only: the replay inserts the original entry, it never
// rewrites anything.
type AuditRetryJob struct {
	repo    audit.Repository
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditRetryJob constructs the retry handler.
func NewAuditRetryJob(repo audit.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRetryJob{repo: repo, logger: logger, metrics: metrics}
}

// Handle processes one TaskTypeAuditRetry task.
func (j *AuditRetryJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("audit_retry")
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		j.logger.Error("audit retry payload rejected", slog.Any("error", err))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if err := entry.Validate(); err != nil {
		j.logger.Error("audit retry entry rejected", slog.Any("error", err))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if _, err := j.repo.Insert(ctx, entry); err != nil {
		j.logger.Warn("audit retry insert failed",
			slog.String("action", string(entry.Action)),
			slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddReplays("audit_retry", 1)
	j.logger.Info("audit entry recovered",
		slog.String("action", string(entry.Action)),
		slog.String("resource_id", entry.ResourceID))
	return tracker.End(nil)
}
