package users

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	users map[string]User
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[string]User)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]User, len(r.users))
	for k, v := range r.users {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.users = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) Create(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user already exists: %w", shared.ErrDuplicate)
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *memoryRepo) get(id string) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, fmt.Errorf("user: %w", shared.ErrNotFound)
	}
	return u, nil
}

func (r *memoryRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user: %w", shared.ErrNotFound)
}

func (r *memoryRepo) ListByOrganization(ctx context.Context, orgID string) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []User
	for _, u := range r.users {
		if u.OrgID() == orgID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *memoryRepo) SetEmailVerified(ctx context.Context, email string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.users {
		if u.Email == email {
			u.EmailVerified = &at
			r.users[id] = u
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id string) (User, error) {
	return tx.repo.get(id)
}

func (tx *memoryTx) CountAdminsForUpdate(ctx context.Context, orgID string) (int, error) {
	n := 0
	for _, u := range tx.repo.users {
		if u.OrgID() == orgID && u.IsAdmin() {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) SetMembership(ctx context.Context, id string, orgID *string, role *rbac.Role) error {
	u, err := tx.repo.get(id)
	if err != nil {
		return err
	}
	u.OrganizationID = orgID
	u.Role = role
	tx.repo.users[id] = u
	return nil
}

type staticOrgs map[string]string

func (s staticOrgs) ResolveCode(ctx context.Context, code string) (string, error) {
	id, ok := s[shared.NormalizeCode(code)]
	if !ok {
		return "", fmt.Errorf("organization: %w", shared.ErrNotFound)
	}
	return id, nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, staticOrgs{"ABCD2345": "org-1"}, logger), repo
}

func seedMember(t *testing.T, repo *memoryRepo, id, email string, role rbac.Role) {
	t.Helper()
	org := "org-1"
	r := role
	repo.users[id] = User{ID: id, Email: email, OrganizationID: &org, Role: &r}
}

func TestRegisterNormalisesAndHashes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Email: "  Ana@Example.COM ", Name: " Ana  Lee ", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", u.Email)
	require.Equal(t, "Ana Lee", u.Name)
	require.NotEqual(t, "correct horse", u.PasswordHash)
	require.True(t, u.CheckPassword("correct horse"))
	require.False(t, u.CheckPassword("wrong"))

	_, err = svc.Register(ctx, RegisterInput{Email: "ana@example.com"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "not-an-email"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "short"})
	require.ErrorIs(t, err, ErrWeakPassword)

	u, err := svc.Register(ctx, RegisterInput{Email: "oauth@example.com"})
	require.NoError(t, err)
	require.False(t, u.HasPassword())
}

func TestJoinAsViewer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Email: "new@example.com"})
	require.NoError(t, err)

	joined, err := svc.Join(ctx, u.ID, "abcd2345")
	require.NoError(t, err)
	require.Equal(t, "org-1", joined.OrgID())
	require.Equal(t, string(rbac.RoleViewer), joined.RoleName())

	_, err = svc.Join(ctx, u.ID, "ABCD2345")
	require.ErrorIs(t, err, ErrAlreadyMember)

	other, err := svc.Register(ctx, RegisterInput{Email: "other@example.com"})
	require.NoError(t, err)
	_, err = svc.Join(ctx, other.ID, "ZZZZ9999")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seedMember(t, repo, "admin", "admin@example.com", rbac.RoleAdmin)
	seedMember(t, repo, "viewer", "viewer@example.com", rbac.RoleViewer)

	_, err := svc.UpdateRole(ctx, "admin", "admin", rbac.RoleManager)
	require.ErrorIs(t, err, ErrLastAdmin)

	promoted, err := svc.UpdateRole(ctx, "admin", "viewer", rbac.RoleAdmin)
	require.NoError(t, err)
	require.True(t, promoted.IsAdmin())

	demoted, err := svc.UpdateRole(ctx, "viewer", "admin", rbac.RoleManager)
	require.NoError(t, err)
	require.Equal(t, string(rbac.RoleManager), demoted.RoleName())

	_, err = svc.UpdateRole(ctx, "viewer", "viewer", rbac.RoleViewer)
	require.ErrorIs(t, err, ErrLastAdmin)
}

func TestUpdateRoleRequiresAdminInSameOrg(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seedMember(t, repo, "manager", "m@example.com", rbac.RoleManager)
	seedMember(t, repo, "viewer", "v@example.com", rbac.RoleViewer)
	outsider := "org-2"
	admin := rbac.RoleAdmin
	repo.users["outsider"] = User{ID: "outsider", Email: "o@example.com", OrganizationID: &outsider, Role: &admin}

	_, err := svc.UpdateRole(ctx, "manager", "viewer", rbac.RoleManager)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.UpdateRole(ctx, "outsider", "viewer", rbac.RoleManager)
	require.ErrorIs(t, err, ErrNotMember)
}

func TestRemoveFromOrganization(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seedMember(t, repo, "admin", "admin@example.com", rbac.RoleAdmin)
	seedMember(t, repo, "viewer", "viewer@example.com", rbac.RoleViewer)

	require.ErrorIs(t, svc.RemoveFromOrganization(ctx, "admin", "admin"), ErrLastAdmin)
	require.ErrorIs(t, svc.RemoveFromOrganization(ctx, "viewer", "admin"), shared.ErrForbidden)

	require.NoError(t, svc.RemoveFromOrganization(ctx, "admin", "viewer"))
	u, err := svc.Get(ctx, "viewer")
	require.NoError(t, err)
	require.Nil(t, u.OrganizationID)
	require.Nil(t, u.Role)

	members, err := svc.ListByOrganization(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestMarkEmailVerified(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "v@example.com"})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ok, err := svc.MarkEmailVerified(ctx, "V@example.com", at)
	require.NoError(t, err)
	require.True(t, ok)

	u, err := svc.GetByEmail(ctx, "v@example.com")
	require.NoError(t, err)
	require.NotNil(t, u.EmailVerified)
	require.True(t, u.EmailVerified.Equal(at))

	ok, err = svc.MarkEmailVerified(ctx, "ghost@example.com", at)
	require.NoError(t, err)
	require.False(t, ok)
}
