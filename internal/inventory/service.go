package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, orgID, id string) (Item, error)
	ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error)
	LedgerSum(ctx context.Context, itemID string) (int, error)
	Mismatches(ctx context.Context, orgID string) ([]Reconciliation, error)
}

// IdempotencyPort records processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// TreeInvalidator drops cached section trees after items enter, leave or
// change section.
type TreeInvalidator interface {
	InvalidateTree(ctx context.Context, orgID string)
}

// MovementRecorder counts committed stock movements.
type MovementRecorder interface {
	StockMovement(txType string, quantity int)
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	tree        TreeInvalidator
	metrics     MovementRecorder
	logger      *slog.Logger
	allowNeg    bool
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service. idempotency, tree and metrics may be nil.
func NewService(repo RepositoryPort, idempotency IdempotencyPort, tree TreeInvalidator, metrics MovementRecorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		idempotency: idempotency,
		tree:        tree,
		metrics:     metrics,
		logger:      logger,
		allowNeg:    cfg.AllowNegativeStock,
		now:         time.Now,
	}
}

const idempotencyModule = "inventory"

// CreateItem registers a new item. A positive opening quantity is recorded
// as an ADD ledger entry.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	name := shared.NormalizeName(input.Name)
	if name == "" {
		return Item{}, ErrInvalidName
	}
	sku := shared.NormalizeCode(input.SKU)
	if sku == "" {
		return Item{}, ErrInvalidSKU
	}
	if input.Quantity < 0 || input.Quantity > MaxQuantity {
		return Item{}, ErrInvalidQuantity
	}
	now := s.now().UTC()
	item := Item{
		ID:             uuid.NewString(),
		Name:           name,
		Quantity:       input.Quantity,
		Location:       strings.TrimSpace(input.Location),
		SKU:            sku,
		CreatedAt:      now,
		CreatedByID:    input.ActorID,
		SectionID:      nonEmpty(input.SectionID),
		OrganizationID: input.OrganizationID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireSection(ctx, tx, item.OrganizationID, item.SectionID); err != nil {
			return err
		}
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		if err := tx.InsertAudit(ctx, newAudit(item.ID, AuditCreate, item.Quantity, now)); err != nil {
			return err
		}
		if item.Quantity > 0 {
			return tx.InsertTransaction(ctx, newTransaction(item.ID, TransactionTypeAdd, item.Quantity, now))
		}
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	if item.Quantity > 0 {
		s.recordMovement(TransactionTypeAdd, item.Quantity)
	}
	s.invalidate(ctx, item.OrganizationID, item.SectionID)
	return item, nil
}

// GetItem loads an item of the organization.
func (s *Service) GetItem(ctx context.Context, orgID, id string) (Item, error) {
	return s.repo.GetItem(ctx, orgID, id)
}

// ListItems returns a filtered page of items.
func (s *Service) ListItems(ctx context.Context, filter ListFilter) (ItemPage, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	filter.SectionID = nonEmpty(filter.SectionID)
	items, total, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return ItemPage{}, err
	}
	return ItemPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// UpdateItem changes descriptive fields of an item.
func (s *Service) UpdateItem(ctx context.Context, orgID, id string, input UpdateItemInput) (Item, error) {
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		if input.Name != nil {
			name := shared.NormalizeName(*input.Name)
			if name == "" {
				return ErrInvalidName
			}
			item.Name = name
		}
		if input.Location != nil {
			item.Location = strings.TrimSpace(*input.Location)
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return tx.InsertAudit(ctx, newAudit(item.ID, AuditUpdate, 0, s.now().UTC()))
	})
	return updated, err
}

// MoveItem places an item in another section, or at the root when sectionID
// is nil.
func (s *Service) MoveItem(ctx context.Context, orgID, id string, sectionID *string) (Item, error) {
	sectionID = nonEmpty(sectionID)
	var (
		moved    Item
		previous *string
		changed  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		moved = item
		if sameSection(item.SectionID, sectionID) {
			return nil
		}
		if err := requireSection(ctx, tx, orgID, sectionID); err != nil {
			return err
		}
		previous = item.SectionID
		item.SectionID = sectionID
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		moved, changed = item, true
		return tx.InsertAudit(ctx, newAudit(item.ID, AuditMove, 0, s.now().UTC()))
	})
	if err != nil {
		return Item{}, err
	}
	if changed {
		s.invalidate(ctx, orgID, previous, sectionID)
	}
	return moved, nil
}

// DeleteItem removes an item. Its ledger and audit history go with it, so the
// final quantity is written to the service log.
func (s *Service) DeleteItem(ctx context.Context, orgID, actorID, id string) error {
	var deleted Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		deleted = item
		return tx.DeleteItem(ctx, orgID, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("inventory item deleted",
		slog.String("action", string(AuditDelete)),
		slog.String("item_id", deleted.ID),
		slog.String("sku", deleted.SKU),
		slog.String("organization_id", orgID),
		slog.String("actor_id", actorID),
		slog.Int("final_quantity", deleted.Quantity),
	)
	s.invalidate(ctx, orgID, deleted.SectionID)
	return nil
}

// AddStock increases an item's quantity.
func (s *Service) AddStock(ctx context.Context, input StockInput) (MovementResult, error) {
	if input.Quantity <= 0 || input.Quantity > MaxQuantity {
		return MovementResult{}, ErrInvalidQuantity
	}
	return s.move(ctx, input.OrganizationID, input.ItemID, input.IdempotencyKey, "add", func(Item) int {
		return input.Quantity
	})
}

// RemoveStock decreases an item's quantity.
func (s *Service) RemoveStock(ctx context.Context, input StockInput) (MovementResult, error) {
	if input.Quantity <= 0 || input.Quantity > MaxQuantity {
		return MovementResult{}, ErrInvalidQuantity
	}
	return s.move(ctx, input.OrganizationID, input.ItemID, input.IdempotencyKey, "remove", func(Item) int {
		return -input.Quantity
	})
}

// Adjust sets an item's quantity to a counted value, recording the
// difference. A count equal to the current quantity changes nothing.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (MovementResult, error) {
	if input.Counted < 0 || input.Counted > MaxQuantity {
		return MovementResult{}, ErrInvalidQuantity
	}
	return s.move(ctx, input.OrganizationID, input.ItemID, input.IdempotencyKey, "adjust", func(item Item) int {
		return input.Counted - item.Quantity
	})
}

// move applies a signed delta computed from the locked item.
func (s *Service) move(ctx context.Context, orgID, itemID, key, op string, delta func(Item) int) (MovementResult, error) {
	var result MovementResult
	err := s.withIdempotency(ctx, orgID, op, key, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, orgID, itemID)
			if err != nil {
				return err
			}
			d := delta(item)
			if d == 0 {
				result = MovementResult{Item: item}
				return nil
			}
			txType := TransactionTypeAdd
			if d < 0 {
				txType = TransactionTypeRemove
			}
			txn, err := s.apply(ctx, tx, &item, d, txType, AuditAdjust)
			if err != nil {
				return err
			}
			result = MovementResult{Item: item, Transaction: &txn}
			return nil
		})
	})
	if err != nil {
		return MovementResult{}, err
	}
	if result.Transaction != nil {
		s.recordMovement(result.Transaction.Type, result.Transaction.Quantity)
	}
	return result, nil
}

// Transfer moves quantity from one item to another in the same organization.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.Quantity <= 0 || input.Quantity > MaxQuantity {
		return TransferResult{}, ErrInvalidQuantity
	}
	if input.SourceID == input.DestinationID {
		return TransferResult{}, ErrSameItem
	}
	var result TransferResult
	err := s.withIdempotency(ctx, input.OrganizationID, "transfer", input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			src, dst, err := lockPair(ctx, tx, input.OrganizationID, input.SourceID, input.DestinationID)
			if err != nil {
				return err
			}
			out, err := s.apply(ctx, tx, &src, -input.Quantity, TransactionTypeTransfer, AuditMove)
			if err != nil {
				return err
			}
			in, err := s.apply(ctx, tx, &dst, input.Quantity, TransactionTypeTransfer, AuditMove)
			if err != nil {
				return err
			}
			result = TransferResult{Source: src, Destination: dst, Out: out, In: in}
			return nil
		})
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.recordMovement(TransactionTypeTransfer, input.Quantity)
	return result, nil
}

// lockPair locks both items in id order so concurrent opposite transfers
// cannot deadlock.
func lockPair(ctx context.Context, tx TxRepository, orgID, srcID, dstID string) (Item, Item, error) {
	first, second := srcID, dstID
	if second < first {
		first, second = second, first
	}
	a, err := tx.GetItemForUpdate(ctx, orgID, first)
	if err != nil {
		return Item{}, Item{}, err
	}
	b, err := tx.GetItemForUpdate(ctx, orgID, second)
	if err != nil {
		return Item{}, Item{}, err
	}
	if a.ID == srcID {
		return a, b, nil
	}
	return b, a, nil
}

// apply writes the quantity change, its ledger entry and its audit row.
func (s *Service) apply(ctx context.Context, tx TxRepository, item *Item, delta int, txType TransactionType, action AuditAction) (StockTransaction, error) {
	next := item.Quantity + delta
	if !inQuantityRange(delta) || !inQuantityRange(next) {
		return StockTransaction{}, ErrInvalidQuantity
	}
	if next < 0 && !s.allowNeg {
		return StockTransaction{}, ErrNegativeStock
	}
	item.Quantity = next
	if err := tx.UpdateItem(ctx, *item); err != nil {
		return StockTransaction{}, err
	}
	now := s.now().UTC()
	txn := newTransaction(item.ID, txType, delta, now)
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return StockTransaction{}, err
	}
	if err := tx.InsertAudit(ctx, newAudit(item.ID, action, delta, now)); err != nil {
		return StockTransaction{}, err
	}
	return txn, nil
}

// ListTransactions returns the ledger of an item in the organization.
func (s *Service) ListTransactions(ctx context.Context, orgID string, filter TransactionFilter) ([]StockTransaction, error) {
	if _, err := s.repo.GetItem(ctx, orgID, filter.ItemID); err != nil {
		return nil, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("inventory: range end before start: %w", shared.ErrValidation)
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListTransactions(ctx, filter)
}

// Reconcile compares an item's quantity with the sum of its ledger.
func (s *Service) Reconcile(ctx context.Context, orgID, itemID string) (Reconciliation, error) {
	item, err := s.repo.GetItem(ctx, orgID, itemID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum, err := s.repo.LedgerSum(ctx, itemID)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{ItemID: item.ID, Quantity: item.Quantity, LedgerSum: sum, OK: item.Quantity == sum}, nil
}

// ReconcileOrganization returns every item of the organization whose
// quantity disagrees with its ledger.
func (s *Service) ReconcileOrganization(ctx context.Context, orgID string) ([]Reconciliation, error) {
	return s.repo.Mismatches(ctx, orgID)
}

func (s *Service) withIdempotency(ctx context.Context, orgID, op, key string, fn func() error) error {
	key = strings.TrimSpace(key)
	if key == "" || s.idempotency == nil {
		return fn()
	}
	scoped := orgID + ":" + op + ":" + key
	if err := s.idempotency.CheckAndInsert(ctx, scoped, idempotencyModule); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if delErr := s.idempotency.Delete(ctx, scoped); delErr != nil {
			s.logger.Warn("release idempotency key", slog.String("key", scoped), slog.Any("error", delErr))
		}
		return err
	}
	return nil
}

func (s *Service) recordMovement(txType TransactionType, quantity int) {
	if s.metrics != nil {
		s.metrics.StockMovement(string(txType), quantity)
	}
}

func (s *Service) invalidate(ctx context.Context, orgID string, sectionIDs ...*string) {
	if s.tree == nil {
		return
	}
	for _, id := range sectionIDs {
		if id != nil {
			s.tree.InvalidateTree(ctx, orgID)
			return
		}
	}
}

func requireSection(ctx context.Context, tx TxRepository, orgID string, sectionID *string) error {
	if sectionID == nil {
		return nil
	}
	ok, err := tx.SectionExists(ctx, orgID, *sectionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSectionNotFound
	}
	return nil
}

func newTransaction(itemID string, txType TransactionType, quantity int, at time.Time) StockTransaction {
	return StockTransaction{ID: uuid.NewString(), ItemID: itemID, Quantity: quantity, Type: txType, Timestamp: at}
}

func newAudit(itemID string, action AuditAction, change int, at time.Time) AuditEntry {
	return AuditEntry{ID: uuid.NewString(), ItemID: itemID, Action: action, QuantityChange: change, Timestamp: at}
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func sameSection(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
