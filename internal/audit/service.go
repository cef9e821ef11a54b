package audit

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// FailureMonitor counts audit write failures so operators can alert on gaps.
type FailureMonitor interface {
	AuditWriteFailure()
}

// RetryEnqueuer schedules a failed entry for a later write attempt.
type RetryEnqueuer interface {
	EnqueueRetry(ctx context.Context, entry Entry) error
}

// Recorder appends audit entries. A failed write never fails the operation
// that triggered it: the failure is logged loudly, counted, and handed to the
// retry queue on a best-effort basis.
type Recorder struct {
	repo    Repository
	logger  *slog.Logger
	monitor FailureMonitor
	retry   RetryEnqueuer
}

// NewRecorder constructs a Recorder. Monitor and retry may be nil.
func NewRecorder(repo Repository, logger *slog.Logger, monitor FailureMonitor, retry RetryEnqueuer) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger, monitor: monitor, retry: retry}
}

// Record validates and appends the entry. The returned error reports the
// outcome for observability; callers on the response path treat it as
// non-fatal and must not roll back the already-performed action.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		r.logger.Error("audit entry rejected", slog.Any("error", err))
		return err
	}
	if _, err := r.repo.Insert(ctx, entry); err != nil {
		r.logger.Error("audit write failed",
			slog.String("action", string(entry.Action)),
			slog.String("resource_id", entry.ResourceID),
			slog.Any("error", err))
		if r.monitor != nil {
			r.monitor.AuditWriteFailure()
		}
		if r.retry != nil {
			if enqErr := r.retry.EnqueueRetry(ctx, entry); enqErr != nil {
				r.logger.Error("audit retry enqueue failed", slog.Any("error", enqErr))
			}
		}
		return err
	}
	return nil
}

// Service answers audit queries.
type Service struct {
	repo Repository
}

// NewService constructs a query service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Result wraps a page of entries with the total matching count.
type Result struct {
	Entries []Entry `json:"entries"`
	Total   int64   `json:"total"`
}

// Query validates the filter, clamps the page size to the hard ceiling and
// returns matching entries newest first.
func (s *Service) Query(ctx context.Context, filter Filter) (Result, error) {
	if filter.Action != "" && !ValidAction(filter.Action) {
		return Result{}, fmt.Errorf("audit: unknown action %q", filter.Action)
	}
	if filter.ResourceType != "" && !ValidResourceType(filter.ResourceType) {
		return Result{}, fmt.Errorf("audit: unknown resource type %q", filter.ResourceType)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	entries, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return Result{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{Entries: entries, Total: total}, nil
}
