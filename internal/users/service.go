package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	ListByOrganization(ctx context.Context, orgID string) ([]User, error)
	SetEmailVerified(ctx context.Context, email string, at time.Time) (bool, error)
}

// OrganizationResolver maps a join code to an organization id.
type OrganizationResolver interface {
	ResolveCode(ctx context.Context, code string) (string, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	orgs   OrganizationResolver
	logger *slog.Logger
	now    func() time.Time
}

var validate = validator.New()

// NewService builds Service instance.
func NewService(repo RepositoryPort, orgs OrganizationResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, orgs: orgs, logger: logger, now: time.Now}
}

// Register creates a user. Password may be empty for externally authenticated users.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	email := shared.NormalizeEmail(input.Email)
	if err := validate.Var(email, "required,email"); err != nil {
		return User{}, fmt.Errorf("users: invalid email: %w", shared.ErrValidation)
	}
	hash, err := hashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         shared.NormalizeName(input.Name),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Image != "" {
		img := input.Image
		u.Image = &img
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, shared.NormalizeEmail(email))
}

// ListByOrganization returns every member of an organization.
func (s *Service) ListByOrganization(ctx context.Context, orgID string) ([]User, error) {
	if orgID == "" {
		return nil, fmt.Errorf("users: organization required: %w", shared.ErrValidation)
	}
	return s.repo.ListByOrganization(ctx, orgID)
}

// Join attaches a user without organization to the organization owning code
// as a VIEWER.
func (s *Service) Join(ctx context.Context, userID, code string) (User, error) {
	if s.orgs == nil {
		return User{}, fmt.Errorf("users: organization lookup not configured")
	}
	orgID, err := s.orgs.ResolveCode(ctx, code)
	if err != nil {
		return User{}, err
	}
	var joined User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u.OrganizationID != nil {
			return ErrAlreadyMember
		}
		role := rbac.RoleViewer
		if err := tx.SetMembership(ctx, userID, &orgID, &role); err != nil {
			return err
		}
		u.OrganizationID = &orgID
		u.Role = &role
		joined = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user joined organization", slog.String("user_id", userID), slog.String("organization_id", orgID))
	return joined, nil
}

// UpdateRole changes the role of a member of the actor's organization.
func (s *Service) UpdateRole(ctx context.Context, actorID, targetID string, role rbac.Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("users: unknown role %q: %w", role, shared.ErrValidation)
	}
	var updated User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		actor, target, err := lockPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return fmt.Errorf("users: only admins change roles: %w", shared.ErrForbidden)
		}
		if target.OrgID() != actor.OrgID() {
			return ErrNotMember
		}
		if target.IsAdmin() && role != rbac.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, actor.OrgID()); err != nil {
				return err
			}
		}
		if err := tx.SetMembership(ctx, target.ID, target.OrganizationID, &role); err != nil {
			return err
		}
		target.Role = &role
		updated = target
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user role changed",
		slog.String("actor_id", actorID),
		slog.String("user_id", targetID),
		slog.String("role", string(role)))
	return updated, nil
}

// RemoveFromOrganization detaches target from the actor's organization.
// Admins may remove anyone; any member may remove themselves.
func (s *Service) RemoveFromOrganization(ctx context.Context, actorID, targetID string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		actor, target, err := lockPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		if actor.OrganizationID == nil || target.OrgID() != actor.OrgID() {
			return ErrNotMember
		}
		if actorID != targetID && !actor.IsAdmin() {
			return fmt.Errorf("users: only admins remove members: %w", shared.ErrForbidden)
		}
		if target.IsAdmin() {
			if err := ensureAnotherAdmin(ctx, tx, target.OrgID()); err != nil {
				return err
			}
		}
		return tx.SetMembership(ctx, target.ID, nil, nil)
	})
	if err != nil {
		return err
	}
	s.logger.Info("user removed from organization", slog.String("actor_id", actorID), slog.String("user_id", targetID))
	return nil
}

// MarkEmailVerified stamps the verification time for email. It reports whether
// a user matched.
func (s *Service) MarkEmailVerified(ctx context.Context, email string, at time.Time) (bool, error) {
	return s.repo.SetEmailVerified(ctx, shared.NormalizeEmail(email), at.UTC())
}

// lockPair locks both users in id order and returns them as (actor, target).
func lockPair(ctx context.Context, tx TxRepository, actorID, targetID string) (User, User, error) {
	if actorID == targetID {
		u, err := tx.GetForUpdate(ctx, actorID)
		return u, u, err
	}
	first, second := actorID, targetID
	if second < first {
		first, second = second, first
	}
	a, err := tx.GetForUpdate(ctx, first)
	if err != nil {
		return User{}, User{}, err
	}
	b, err := tx.GetForUpdate(ctx, second)
	if err != nil {
		return User{}, User{}, err
	}
	if a.ID == actorID {
		return a, b, nil
	}
	return b, a, nil
}

func ensureAnotherAdmin(ctx context.Context, tx TxRepository, orgID string) error {
	admins, err := tx.CountAdminsForUpdate(ctx, orgID)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}
