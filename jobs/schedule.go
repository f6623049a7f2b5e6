package jobs

import (
	"fmt"
	"sort"

	"github.com/hibiken/asynq"
)

const (
	// ReconcileSchedule runs the ledger reconciliation nightly.
	ReconcileSchedule = "0 3 * * *"
	// PurgeSchedule clears expired credentials every half hour.
	PurgeSchedule = "*/30 * * * *"
	// IdempotencyCleanupSchedule prunes old idempotency keys after reconcile.
	IdempotencyCleanupSchedule = "45 3 * * *"
)

// Schedule returns the periodic task registrations of the worker.
func Schedule() ([]CronRegistration, error) {
	reconcile, err := NewInventoryReconcileTask("")
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: ReconcileSchedule, Task: reconcile, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: PurgeSchedule, Task: NewAuthPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		{Spec: IdempotencyCleanupSchedule, Task: NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
	}, nil
}

// Tasks carry no schedule time; handlers stamp their own start.
var triggerable = map[string]func() (*asynq.Task, error){
	TaskInventoryReconcile: func() (*asynq.Task, error) {
		return NewInventoryReconcileTask("")
	},
	TaskAuthPurgeExpired: func() (*asynq.Task, error) {
		return NewAuthPurgeTask(), nil
	},
	TaskIdempotencyCleanup: func() (*asynq.Task, error) {
		return NewIdempotencyCleanupTask(), nil
	},
}

// TaskFor builds a task that can be triggered manually by name.
func TaskFor(name string) (*asynq.Task, error) {
	build, ok := triggerable[name]
	if !ok {
		return nil, fmt.Errorf("jobs: unknown task %q (known: %v)", name, TriggerableTasks())
	}
	return build()
}

// TriggerableTasks lists the names accepted by TaskFor.
func TriggerableTasks() []string {
	names := make([]string, 0, len(triggerable))
	for name := range triggerable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
