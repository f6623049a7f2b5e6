package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	jobmetrics "github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/jobs"
)

const (
	// TaskInventoryReconcile compares item quantities with their ledgers.
	TaskInventoryReconcile = "inventory:reconcile"
)

// InventoryReconcilePayload optionally narrows the run to one organization.
type InventoryReconcilePayload struct {
	OrganizationID string `json:"organization_id,omitempty"`
}

// NewInventoryReconcileTask constructs an Asynq task for ledger reconciliation.
func NewInventoryReconcileTask(orgID string) (*asynq.Task, error) {
	body, err := json.Marshal(InventoryReconcilePayload{OrganizationID: orgID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}

// OrganizationLister enumerates tenants.
type OrganizationLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// LedgerReconciler reports ledger drift for one organization.
type LedgerReconciler interface {
	ReconcileOrganization(ctx context.Context, orgID string) ([]inventory.Reconciliation, error)
}

// InventoryReconcileJob walks every organization and reports items whose
// quantity differs from the sum of their stock transactions.
type InventoryReconcileJob struct {
	Orgs      OrganizationLister
	Inventory LedgerReconciler
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewInventoryReconcileJob initialises the reconcile handler.
func NewInventoryReconcileJob(orgs OrganizationLister, inv LedgerReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryReconcileJob {
	return &InventoryReconcileJob{Orgs: orgs, Inventory: inv, Logger: logger, Metrics: metrics}
}

// Handle executes the reconciliation.
func (j *InventoryReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Orgs == nil || j.Inventory == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	var payload InventoryReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskInventoryReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	logger := j.logger().With(slog.Time("started_at", start.UTC()))
	orgIDs := []string{payload.OrganizationID}
	if payload.OrganizationID == "" {
		if orgIDs, err = j.Orgs.ListIDs(ctx); err != nil {
			logger.Error("list organizations", slog.Any("error", err))
			return err
		}
	}

	total := 0
	for _, orgID := range orgIDs {
		mismatches, err := j.Inventory.ReconcileOrganization(ctx, orgID)
		if err != nil {
			logger.Error("reconcile organization", slog.String("organization_id", orgID), slog.Any("error", err))
			return err
		}
		for _, m := range mismatches {
			logger.Warn("ledger mismatch",
				slog.String("organization_id", orgID),
				slog.String("item_id", m.ItemID),
				slog.Int("quantity", m.Quantity),
				slog.Int("ledger_sum", m.LedgerSum),
			)
		}
		j.Metrics.LedgerMismatches(orgID, len(mismatches))
		total += len(mismatches)
	}

	logger.Info("completed inventory reconcile",
		slog.Int("organizations", len(orgIDs)),
		slog.Int("mismatches", total),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *InventoryReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
