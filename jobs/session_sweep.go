package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meshgate/meshgate/internal/identity"
	jobmetrics "github.com/meshgate/meshgate/internal/jobs"
)

const sessionKeyPattern = "session:*"

// SessionSweepJob revokes registered sessions whose account has been removed
// or deactivated. Expired sessions fall out of Redis on their own; the sweep
// closes the gap for accounts disabled mid-session.
type SessionSweepJob struct {
	redis   *redis.Client
	repo    identity.Repository
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionSweepJob constructs the sweep handler.
func NewSessionSweepJob(client *redis.Client, repo identity.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweepJob{redis: client, repo: repo, logger: logger, metrics: metrics}
}

// Handle processes one TaskTypeSessionSweep task.
func (j *SessionSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track("session_sweep")
	swept, err := j.sweep(ctx)
	if swept > 0 {
		j.logger.Info("stale sessions revoked", slog.Int("count", swept))
	}
	return tracker.End(err)
}

func (j *SessionSweepJob) sweep(ctx context.Context) (int, error) {
	var (
		cursor uint64
		swept  int
	)
	for {
		keys, next, err := j.redis.Scan(ctx, cursor, sessionKeyPattern, 100).Result()
		if err != nil {
			return swept, err
		}
		for _, key := range keys {
			stale, err := j.isStale(ctx, key)
			if err != nil {
				j.logger.Warn("session sweep lookup", slog.String("key", key), slog.Any("error", err))
				continue
			}
			if !stale {
				continue
			}
			if err := j.redis.Del(ctx, key).Err(); err != nil {
				j.logger.Warn("session sweep delete", slog.String("key", key), slog.Any("error", err))
				continue
			}
			swept++
		}
		cursor = next
		if cursor == 0 {
			return swept, nil
		}
	}
}

func (j *SessionSweepJob) isStale(ctx context.Context, key string) (bool, error) {
	raw, err := j.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Unparseable registry value, drop it.
		return true, nil
	}
	user, err := j.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return !user.IsActive, nil
}
