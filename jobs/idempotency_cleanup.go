package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/jobs"
)

const (
	// TaskIdempotencyCleanup drops idempotency keys past their retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// IdempotencyRetention is how long a replayed key is still rejected.
	IdempotencyRetention = 7 * 24 * time.Hour
)

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// IdempotencyJanitor removes stale idempotency keys.
type IdempotencyJanitor interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes the idempotency key table.
type IdempotencyCleanupJob struct {
	Store     IdempotencyJanitor
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	retention := j.Retention
	if retention <= 0 {
		retention = IdempotencyRetention
	}
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("pruned idempotency keys", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}
