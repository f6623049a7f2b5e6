package organizations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

// maxCodeAttempts bounds join code generation retries.
const maxCodeAttempts = 5

// DefaultLowStockThreshold applies when the config leaves it unset.
const DefaultLowStockThreshold = 5

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (Organization, error)
	GetByCode(ctx context.Context, code string) (Organization, error)
	Rename(ctx context.Context, id, name string) error
	CountMembers(ctx context.Context, orgID string) (int, error)
	CountSections(ctx context.Context, orgID string) (int, error)
	CountItems(ctx context.Context, orgID string) (int, error)
	CountLowStock(ctx context.Context, orgID string, threshold int) (int, error)
	SumUnits(ctx context.Context, orgID string) (int64, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold int
	// Random overrides the code entropy source in tests.
	Random io.Reader
}

// Service coordinates organization lifecycle.
type Service struct {
	repo      RepositoryPort
	logger    *slog.Logger
	threshold int
	random    io.Reader
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &Service{repo: repo, logger: logger, threshold: threshold, random: cfg.Random, now: time.Now}
}

// Create makes a new organization and enrols actorID as its ADMIN.
func (s *Service) Create(ctx context.Context, actorID, name string) (Organization, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Organization{}, err
	}
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := GenerateCode(s.random)
		if err != nil {
			return Organization{}, err
		}
		org := Organization{
			ID:               uuid.NewString(),
			Name:             name,
			OrganizationCode: code,
			CreatedAt:        s.now().UTC(),
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.LockUserMembership(ctx, actorID)
			if err != nil {
				return err
			}
			if current != nil {
				return users.ErrAlreadyMember
			}
			if err := tx.Insert(ctx, org); err != nil {
				return err
			}
			return tx.AttachMember(ctx, actorID, org.ID, rbac.RoleAdmin)
		})
		if errors.Is(err, ErrCodeTaken) {
			s.logger.Warn("organization code collision", slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Organization{}, err
		}
		s.logger.Info("organization created",
			slog.String("organization_id", org.ID),
			slog.String("actor_id", actorID))
		return org, nil
	}
	return Organization{}, ErrCodeExhausted
}

// Get returns an organization by id.
func (s *Service) Get(ctx context.Context, id string) (Organization, error) {
	return s.repo.Get(ctx, id)
}

// GetByCode returns the organization owning a join code.
func (s *Service) GetByCode(ctx context.Context, code string) (Organization, error) {
	code = shared.NormalizeCode(code)
	if code == "" {
		return Organization{}, fmt.Errorf("organizations: code required: %w", shared.ErrValidation)
	}
	return s.repo.GetByCode(ctx, code)
}

// ResolveCode maps a join code to an organization id.
func (s *Service) ResolveCode(ctx context.Context, code string) (string, error) {
	org, err := s.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	return org.ID, nil
}

// Rename changes the display name.
func (s *Service) Rename(ctx context.Context, id, name string) (Organization, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Organization{}, err
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return Organization{}, err
	}
	return s.repo.Get(ctx, id)
}

// ListIDs returns all organization ids.
func (s *Service) ListIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListIDs(ctx)
}

// Summary gathers the dashboard counters concurrently.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	sum := Summary{OrganizationID: id, LowStockThreshold: s.threshold}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sum.Members, err = s.repo.CountMembers(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		sum.Sections, err = s.repo.CountSections(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		sum.Items, err = s.repo.CountItems(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		sum.UnitsOnHand, err = s.repo.SumUnits(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		sum.LowStockItems, err = s.repo.CountLowStock(gctx, id, s.threshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("organizations: summary: %w", err)
	}
	return sum, nil
}
