package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskVerificationMail delivers an email verification link.
	TaskVerificationMail = "mail:verification"
)

// VerificationMailPayload carries a verification token to deliver.
type VerificationMailPayload struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	Expires    time.Time `json:"expires"`
}

// NewVerificationMailTask constructs an Asynq task.
func NewVerificationMailTask(payload VerificationMailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVerificationMail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// VerificationMailJob renders the verification link. Delivery is a log line
// until an SMTP transport is configured.
type VerificationMailJob struct {
	PublicURL string
	Logger    *slog.Logger
}

// Handle processes TaskVerificationMail tasks.
func (j *VerificationMailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("verification mail: handler not configured")
	}
	var payload VerificationMailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Identifier == "" || payload.Token == "" {
		return asynq.SkipRetry
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("verification mail",
		slog.String("to", payload.Identifier),
		slog.String("link", VerificationLink(j.PublicURL, payload)),
		slog.Time("expires", payload.Expires),
	)
	return nil
}

// VerificationLink builds the confirmation URL a user follows.
func VerificationLink(publicURL string, payload VerificationMailPayload) string {
	q := url.Values{}
	q.Set("identifier", payload.Identifier)
	q.Set("token", payload.Token)
	return strings.TrimRight(publicURL, "/") + "/auth/verification/confirm?" + q.Encode()
}
