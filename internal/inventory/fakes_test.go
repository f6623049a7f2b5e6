package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	items    map[string]Item
	txns     []StockTransaction
	audits   []AuditEntry
	sections map[string]string // section id -> org id
	locked   []string
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]Item), sections: make(map[string]string)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make(map[string]Item, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	txns := append([]StockTransaction(nil), r.txns...)
	audits := append([]AuditEntry(nil), r.audits...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.items, r.txns, r.audits = items, txns, audits
		return err
	}
	return nil
}

func (r *memoryRepo) get(orgID, id string) (Item, error) {
	item, ok := r.items[id]
	if !ok || item.OrganizationID != orgID {
		return Item{}, fmt.Errorf("item: %w", shared.ErrNotFound)
	}
	return item, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, orgID, id string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(orgID, id)
}

func (r *memoryRepo) ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Item
	for _, item := range r.items {
		if item.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.SectionID != nil && (item.SectionID == nil || *item.SectionID != *filter.SectionID) {
			continue
		}
		if q := strings.ToLower(filter.Search); q != "" &&
			!strings.Contains(strings.ToLower(item.Name), q) && !strings.Contains(strings.ToLower(item.SKU), q) {
			continue
		}
		if filter.LowStock != nil && item.Quantity > *filter.LowStock {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	start := shared.Offset(filter.Page, filter.PerPage)
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockTransaction
	for i := len(r.txns) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if r.txns[i].ItemID == filter.ItemID {
			out = append(out, r.txns[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) ledgerSum(itemID string) int {
	sum := 0
	for _, t := range r.txns {
		if t.ItemID == itemID {
			sum += t.Quantity
		}
	}
	return sum
}

func (r *memoryRepo) LedgerSum(ctx context.Context, itemID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledgerSum(itemID), nil
}

func (r *memoryRepo) Mismatches(ctx context.Context, orgID string) ([]Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reconciliation
	for _, item := range r.items {
		if item.OrganizationID != orgID {
			continue
		}
		if sum := r.ledgerSum(item.ID); sum != item.Quantity {
			out = append(out, Reconciliation{ItemID: item.ID, Quantity: item.Quantity, LedgerSum: sum})
		}
	}
	return out, nil
}

func (r *memoryRepo) auditsFor(itemID string) []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AuditEntry
	for _, a := range r.audits {
		if a.ItemID == itemID {
			out = append(out, a)
		}
	}
	return out
}

func (r *memoryRepo) transactionsFor(itemID string) []StockTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockTransaction
	for _, t := range r.txns {
		if t.ItemID == itemID {
			out = append(out, t)
		}
	}
	return out
}

func (tx *memoryTx) SectionExists(ctx context.Context, orgID, sectionID string) (bool, error) {
	return tx.repo.sections[sectionID] == orgID, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, orgID, id string) (Item, error) {
	tx.repo.locked = append(tx.repo.locked, id)
	return tx.repo.get(orgID, id)
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) error {
	for _, existing := range tx.repo.items {
		if existing.SKU == item.SKU {
			return ErrDuplicateSKU
		}
	}
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryTx) UpdateItem(ctx context.Context, item Item) error {
	if _, err := tx.repo.get(item.OrganizationID, item.ID); err != nil {
		return err
	}
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryTx) DeleteItem(ctx context.Context, orgID, id string) error {
	if _, err := tx.repo.get(orgID, id); err != nil {
		return err
	}
	delete(tx.repo.items, id)
	kept := tx.repo.txns[:0]
	for _, t := range tx.repo.txns {
		if t.ItemID != id {
			kept = append(kept, t)
		}
	}
	tx.repo.txns = kept
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn StockTransaction) error {
	tx.repo.txns = append(tx.repo.txns, txn)
	return nil
}

func (tx *memoryTx) InsertAudit(ctx context.Context, entry AuditEntry) error {
	tx.repo.audits = append(tx.repo.audits, entry)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type recordingTree struct {
	mu    sync.Mutex
	calls []string
}

func (t *recordingTree) InvalidateTree(ctx context.Context, orgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, orgID)
}

type recordingMetrics struct {
	mu    sync.Mutex
	moves map[string]int
}

func (m *recordingMetrics) StockMovement(txType string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.moves == nil {
		m.moves = make(map[string]int)
	}
	if quantity < 0 {
		quantity = -quantity
	}
	m.moves[txType] += quantity
}
