package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/organizations"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/sections"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(s.tasks)), Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s stubInspector) Close() error { return nil }

func newTestJobsCLI(enq *stubEnqueuer, insp stubInspector) *JobsCLI {
	return &JobsCLI{
		client:    enq,
		inspector: insp,
	}
}

func TestTriggerCommandEnqueuesKnownTask(t *testing.T) {
	enq := &stubEnqueuer{}
	c := newTestJobsCLI(enq, stubInspector{})

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := c.TriggerCommand(context.Background(), JobsOptions{
		Name:       jobs.TaskInventoryReconcile,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.Len(t, enq.tasks, 1)
	require.Equal(t, jobs.TaskInventoryReconcile, enq.tasks[0].Type())

	var payload jobs.InventoryReconcilePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Empty(t, payload.OrganizationID)

	var out map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Equal(t, "task-1", out["id"])
}

func TestTriggerCommandRejectsUnknownTask(t *testing.T) {
	enq := &stubEnqueuer{}
	c := newTestJobsCLI(enq, stubInspector{})

	stderr := new(bytes.Buffer)
	code := c.TriggerCommand(context.Background(), JobsOptions{Name: "finance:close", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "unknown task")
	require.Empty(t, enq.tasks)

	code = c.TriggerCommand(context.Background(), JobsOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 2, code)
}

func TestStatsCommandHumanOutput(t *testing.T) {
	c := newTestJobsCLI(&stubEnqueuer{}, stubInspector{info: &asynq.QueueInfo{Pending: 4, Retry: 1, Archived: 2}})

	stdout := new(bytes.Buffer)
	code := c.StatsCommand(context.Background(), JobsOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "queue default")
	require.Contains(t, stdout.String(), "pending   4")
	require.Contains(t, stdout.String(), "archived  2")
}

func TestStatsCommandInspectorFailure(t *testing.T) {
	c := newTestJobsCLI(&stubEnqueuer{}, stubInspector{err: errors.New("redis down")})

	stderr := new(bytes.Buffer)
	code := c.StatsCommand(context.Background(), JobsOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "redis down")
}

func TestMigrateCommand(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := MigrateCommand(context.Background(), func(context.Context) (int, error) { return 3, nil }, MigrateOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Equal(t, "applied 3 migration(s)\n", stdout.String())

	stdout.Reset()
	code = MigrateCommand(context.Background(), func(context.Context) (int, error) { return 0, nil }, MigrateOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Equal(t, "schema up to date\n", stdout.String())

	stderr := new(bytes.Buffer)
	code = MigrateCommand(context.Background(), func(context.Context) (int, error) { return 0, errors.New("boom") }, MigrateOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "boom")
}

type seedRecorder struct {
	verified []string
	sections []sections.CreateInput
	items    []inventory.CreateItemInput
	failSKU  string
}

func (r *seedRecorder) Register(ctx context.Context, input users.RegisterInput) (users.User, error) {
	return users.User{ID: "admin-1", Email: input.Email, Name: input.Name}, nil
}

func (r *seedRecorder) MarkEmailVerified(ctx context.Context, email string, at time.Time) (bool, error) {
	r.verified = append(r.verified, email)
	return true, nil
}

func (r *seedRecorder) Create(ctx context.Context, actorID, name string) (organizations.Organization, error) {
	return organizations.Organization{ID: "org-1", Name: name, OrganizationCode: "ABC123"}, nil
}

type sectionRecorder struct{ r *seedRecorder }

func (s sectionRecorder) Create(ctx context.Context, input sections.CreateInput) (sections.Section, error) {
	s.r.sections = append(s.r.sections, input)
	return sections.Section{ID: fmt.Sprintf("sec-%d", len(s.r.sections)), Name: input.Name, OrganizationID: input.OrganizationID, ParentID: input.ParentID}, nil
}

func (r *seedRecorder) CreateItem(ctx context.Context, input inventory.CreateItemInput) (inventory.Item, error) {
	if input.SKU == r.failSKU {
		return inventory.Item{}, fmt.Errorf("sku taken: %w", shared.ErrDuplicate)
	}
	r.items = append(r.items, input)
	return inventory.Item{ID: input.SKU, SKU: input.SKU, Quantity: input.Quantity, SectionID: input.SectionID}, nil
}

func newSeeder(r *seedRecorder) Seeder {
	return Seeder{Users: r, Organizations: r, Sections: sectionRecorder{r: r}, Inventory: r}
}

func TestSeedCommandCreatesDemoTenant(t *testing.T) {
	rec := &seedRecorder{}
	stdout := new(bytes.Buffer)
	code := newSeeder(rec).SeedCommand(context.Background(), SeedOptions{
		AdminEmail:    "admin@example.com",
		AdminPassword: "correct horse",
		JSONOutput:    true,
		Stdout:        stdout,
		Stderr:        new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Equal(t, []string{"admin@example.com"}, rec.verified)

	var summary SeedSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "org-1", summary.OrganizationID)
	require.Equal(t, "ABC123", summary.OrganizationCode)
	require.Len(t, summary.Sections, len(demoSections))
	require.Len(t, summary.Items, len(demoItems))

	// aisles hang under the warehouse section
	require.Nil(t, rec.sections[0].ParentID)
	require.NotNil(t, rec.sections[1].ParentID)
	require.Equal(t, "sec-1", *rec.sections[1].ParentID)

	for _, item := range rec.items {
		require.Equal(t, "org-1", item.OrganizationID)
		require.Equal(t, "admin-1", item.ActorID)
		require.NotNil(t, item.SectionID)
	}
}

func TestSeedCommandFailures(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := newSeeder(&seedRecorder{}).SeedCommand(context.Background(), SeedOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "required")

	rec := &seedRecorder{failSKU: demoItems[2].sku}
	stderr.Reset()
	code = newSeeder(rec).SeedCommand(context.Background(), SeedOptions{
		AdminEmail:    "admin@example.com",
		AdminPassword: "pw",
		Stdout:        new(bytes.Buffer),
		Stderr:        stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), demoItems[2].sku)
	require.Len(t, rec.items, 2)
}
