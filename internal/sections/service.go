package sections

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/cache"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, orgID, id string) (Section, error)
	List(ctx context.Context, orgID string) ([]Section, error)
	ItemCounts(ctx context.Context, orgID string) (map[string]int, error)
}

// Service manages the section hierarchy.
type Service struct {
	repo   RepositoryPort
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. A nil cache disables tree caching.
func NewService(repo RepositoryPort, treeCache *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: treeCache, logger: logger, now: time.Now}
}

// Create adds a section, optionally under a parent in the same organization.
func (s *Service) Create(ctx context.Context, input CreateInput) (Section, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return Section{}, err
	}
	sec := Section{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    optionalText(input.Description),
		CreatedAt:      s.now().UTC(),
		ParentID:       input.ParentID,
		OrganizationID: input.OrganizationID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockOrganization(ctx, sec.OrganizationID); err != nil {
			return err
		}
		if sec.ParentID != nil {
			if err := requireParent(ctx, tx, sec.OrganizationID, *sec.ParentID); err != nil {
				return err
			}
		}
		return tx.Insert(ctx, sec)
	})
	if err != nil {
		return Section{}, err
	}
	s.InvalidateTree(ctx, sec.OrganizationID)
	return sec, nil
}

// Update renames a section or changes its description.
func (s *Service) Update(ctx context.Context, orgID, id string, input UpdateInput) (Section, error) {
	var updated Section
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sec, err := tx.Get(ctx, orgID, id)
		if err != nil {
			return err
		}
		if input.Name != nil {
			if sec.Name, err = normalizeName(*input.Name); err != nil {
				return err
			}
		}
		if input.Description != nil {
			sec.Description = optionalText(*input.Description)
		}
		if err := tx.Update(ctx, sec); err != nil {
			return err
		}
		updated = sec
		return nil
	})
	if err != nil {
		return Section{}, err
	}
	s.InvalidateTree(ctx, orgID)
	return updated, nil
}

// Move reparents a section. A nil parent makes it a root. Moves are serialised
// per organization so concurrent moves cannot combine into a cycle.
func (s *Service) Move(ctx context.Context, orgID, id string, newParentID *string) (Section, error) {
	var moved Section
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockOrganization(ctx, orgID); err != nil {
			return err
		}
		sec, err := tx.Get(ctx, orgID, id)
		if err != nil {
			return err
		}
		if newParentID != nil {
			if *newParentID == id {
				return ErrCycle
			}
			if err := requireParent(ctx, tx, orgID, *newParentID); err != nil {
				return err
			}
			links, err := tx.ParentLinks(ctx, orgID)
			if err != nil {
				return err
			}
			if createsCycle(links, id, *newParentID) {
				return ErrCycle
			}
		}
		if err := tx.SetParent(ctx, orgID, id, newParentID); err != nil {
			return err
		}
		sec.ParentID = newParentID
		moved = sec
		return nil
	})
	if err != nil {
		return Section{}, err
	}
	s.logger.Info("section moved", slog.String("organization_id", orgID), slog.String("section_id", id))
	s.InvalidateTree(ctx, orgID)
	return moved, nil
}

// Delete removes a leaf section and detaches its items.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	var detached int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockOrganization(ctx, orgID); err != nil {
			return err
		}
		if _, err := tx.Get(ctx, orgID, id); err != nil {
			return err
		}
		children, err := tx.CountChildren(ctx, orgID, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return ErrSectionNotEmpty
		}
		if detached, err = tx.DetachItems(ctx, orgID, id); err != nil {
			return err
		}
		return tx.Delete(ctx, orgID, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("section deleted",
		slog.String("organization_id", orgID),
		slog.String("section_id", id),
		slog.Int64("items_detached", detached))
	s.InvalidateTree(ctx, orgID)
	return nil
}

// Get returns a section of the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (Section, error) {
	return s.repo.Get(ctx, orgID, id)
}

// Path lists the ancestors of a section from the root down to the section.
func (s *Service) Path(ctx context.Context, orgID, id string) ([]Section, error) {
	list, err := s.repo.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Section, len(list))
	for _, sec := range list {
		byID[sec.ID] = sec
	}
	cur, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("section: %w", shared.ErrNotFound)
	}
	path := []Section{cur}
	for cur.ParentID != nil && len(path) <= len(list) {
		parent, ok := byID[*cur.ParentID]
		if !ok {
			break
		}
		path = append(path, parent)
		cur = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Tree returns the organization's section forest with item counts. Results are
// cached per organization version and concurrent builds are collapsed.
func (s *Service) Tree(ctx context.Context, orgID string) ([]*Node, error) {
	v, err, _ := s.group.Do(orgID, func() (any, error) {
		key, err := s.cache.BuildKey(ctx, orgID, "tree")
		if err != nil {
			s.logger.Warn("section tree cache key", slog.Any("error", err))
			return s.buildTree(ctx, orgID)
		}
		var nodes []*Node
		err = s.cache.FetchJSON(ctx, key, &nodes, func(ctx context.Context) (any, error) {
			return s.buildTree(ctx, orgID)
		})
		return nodes, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Node), nil
}

// InvalidateTree drops cached trees of the organization. Item mutations call
// it as well since trees carry item counts.
func (s *Service) InvalidateTree(ctx context.Context, orgID string) {
	if err := s.cache.Bump(ctx, orgID); err != nil {
		s.logger.Warn("section tree cache bump", slog.String("organization_id", orgID), slog.Any("error", err))
	}
}

func (s *Service) buildTree(ctx context.Context, orgID string) ([]*Node, error) {
	list, err := s.repo.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.ItemCounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return BuildForest(list, counts), nil
}

func requireParent(ctx context.Context, tx TxRepository, orgID, parentID string) error {
	if _, err := tx.Get(ctx, orgID, parentID); err != nil {
		if shared.IsNotFound(err) {
			return ErrParentNotFound
		}
		return err
	}
	return nil
}
