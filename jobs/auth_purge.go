package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/auth"
	jobmetrics "github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/jobs"
)

// TaskAuthPurgeExpired removes expired sessions and verification tokens.
const TaskAuthPurgeExpired = "auth:purge-expired"

// NewAuthPurgeTask constructs the purge task.
func NewAuthPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskAuthPurgeExpired, nil, asynq.Queue(QueueDefault))
}

// ExpiredCredentialPurger deletes credentials past their expiry.
type ExpiredCredentialPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (auth.PurgeResult, error)
}

// AuthPurgeJob runs the expired credential cleanup.
type AuthPurgeJob struct {
	Auth    ExpiredCredentialPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuthPurgeJob initialises the purge handler.
func NewAuthPurgeJob(purger ExpiredCredentialPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuthPurgeJob {
	return &AuthPurgeJob{
		Auth:    purger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *AuthPurgeJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Auth == nil {
		return errors.New("auth purge: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAuthPurgeExpired)
	defer func() {
		err = tracker.End(err)
	}()

	res, err := j.Auth.PurgeExpired(ctx, j.clock())
	if err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("purged expired credentials",
		slog.Int64("sessions", res.Sessions),
		slog.Int64("verification_tokens", res.VerificationTokens),
	)
	return nil
}
