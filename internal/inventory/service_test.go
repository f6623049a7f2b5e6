package inventory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

const testOrg = "org-1"

type fixture struct {
	repo    *memoryRepo
	idem    *memoryIdempotency
	tree    *recordingTree
	metrics *recordingMetrics
	svc     *Service
}

func newFixture(t *testing.T, cfg ServiceConfig) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemoryRepo(),
		idem:    newMemoryIdempotency(),
		tree:    &recordingTree{},
		metrics: &recordingMetrics{},
	}
	f.repo.sections["sec-a"] = testOrg
	f.repo.sections["sec-b"] = testOrg
	f.repo.sections["sec-other"] = "org-2"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.repo, f.idem, f.tree, f.metrics, logger, cfg)
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) create(t *testing.T, sku string, qty int) Item {
	t.Helper()
	item, err := f.svc.CreateItem(context.Background(), CreateItemInput{
		OrganizationID: testOrg,
		ActorID:        "user-1",
		Name:           "Widget " + sku,
		SKU:            sku,
		Quantity:       qty,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) requireLedger(t *testing.T, itemID string) {
	t.Helper()
	rec, err := f.svc.Reconcile(context.Background(), testOrg, itemID)
	require.NoError(t, err)
	require.True(t, rec.OK, "quantity %d ledger %d", rec.Quantity, rec.LedgerSum)
}

func TestCreateItemNormalisesAndRecordsOpeningStock(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	section := "sec-a"
	item, err := f.svc.CreateItem(context.Background(), CreateItemInput{
		OrganizationID: testOrg,
		ActorID:        "user-1",
		Name:           "  Blue   Pen ",
		SKU:            " pen-001 ",
		Location:       " Shelf 3 ",
		SectionID:      &section,
		Quantity:       12,
	})
	require.NoError(t, err)
	require.Equal(t, "Blue Pen", item.Name)
	require.Equal(t, "PEN-001", item.SKU)
	require.Equal(t, "Shelf 3", item.Location)
	require.Equal(t, "user-1", item.CreatedByID)

	txns := f.repo.transactionsFor(item.ID)
	require.Len(t, txns, 1)
	require.Equal(t, TransactionTypeAdd, txns[0].Type)
	require.Equal(t, 12, txns[0].Quantity)

	audits := f.repo.auditsFor(item.ID)
	require.Len(t, audits, 1)
	require.Equal(t, AuditCreate, audits[0].Action)
	require.Equal(t, 12, audits[0].QuantityChange)

	require.Equal(t, 12, f.metrics.moves["ADD"])
	require.Equal(t, []string{testOrg}, f.tree.calls)
	f.requireLedger(t, item.ID)
}

func TestCreateItemWithoutStockWritesNoTransaction(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	item := f.create(t, "empty", 0)
	require.Empty(t, f.repo.transactionsFor(item.ID))
	require.Len(t, f.repo.auditsFor(item.ID), 1)
	require.Empty(t, f.tree.calls)
}

func TestCreateItemValidation(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	f.create(t, "dup", 1)

	_, err := f.svc.CreateItem(ctx, CreateItemInput{OrganizationID: testOrg, Name: "Other", SKU: "DUP"})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = f.svc.CreateItem(ctx, CreateItemInput{OrganizationID: testOrg, Name: "Neg", SKU: "neg", Quantity: -1})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.CreateItem(ctx, CreateItemInput{OrganizationID: testOrg, Name: "  ", SKU: "blank"})
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = f.svc.CreateItem(ctx, CreateItemInput{OrganizationID: testOrg, Name: "No sku", SKU: " "})
	require.ErrorIs(t, err, ErrInvalidSKU)

	foreign := "sec-other"
	_, err = f.svc.CreateItem(ctx, CreateItemInput{OrganizationID: testOrg, Name: "Foreign", SKU: "foreign", SectionID: &foreign})
	require.ErrorIs(t, err, ErrSectionNotFound)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAddAndRemoveStockKeepLedger(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	item := f.create(t, "bolt", 5)

	res, err := f.svc.AddStock(ctx, StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 7})
	require.NoError(t, err)
	require.Equal(t, 12, res.Item.Quantity)
	require.NotNil(t, res.Transaction)
	require.Equal(t, 7, res.Transaction.Quantity)

	res, err = f.svc.RemoveStock(ctx, StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 8, res.Item.Quantity)
	require.Equal(t, TransactionTypeRemove, res.Transaction.Type)
	require.Equal(t, -4, res.Transaction.Quantity)

	audits := f.repo.auditsFor(item.ID)
	require.Len(t, audits, 3)
	require.Equal(t, AuditAdjust, audits[1].Action)
	require.Equal(t, 7, audits[1].QuantityChange)
	require.Equal(t, -4, audits[2].QuantityChange)

	require.Equal(t, 12, f.metrics.moves["ADD"])
	require.Equal(t, 4, f.metrics.moves["REMOVE"])
	f.requireLedger(t, item.ID)
}

func TestStockQuantityMustBePositive(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	item := f.create(t, "q", 1)
	_, err := f.svc.AddStock(context.Background(), StockInput{OrganizationID: testOrg, ItemID: item.ID})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.RemoveStock(context.Background(), StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: -2})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestQuantitiesStayWithinIntegerColumn(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()

	_, err := f.svc.CreateItem(ctx, CreateItemInput{OrganizationID: testOrg, Name: "Huge", SKU: "huge", Quantity: MaxQuantity + 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	full := f.create(t, "full", MaxQuantity)
	_, err = f.svc.AddStock(ctx, StockInput{OrganizationID: testOrg, ItemID: full.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.ErrorIs(t, err, shared.ErrValidation)

	item := f.create(t, "part", 1)
	_, err = f.svc.AddStock(ctx, StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 3000000000})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.Adjust(ctx, AdjustInput{OrganizationID: testOrg, ItemID: item.ID, Counted: MaxQuantity + 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	res, err := f.svc.AddStock(ctx, StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: MaxQuantity - 1})
	require.NoError(t, err)
	require.Equal(t, MaxQuantity, res.Item.Quantity)
	f.requireLedger(t, item.ID)
	f.requireLedger(t, full.ID)
}

func TestNegativeStockGuard(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	item := f.create(t, "nut", 3)

	_, err := f.svc.RemoveStock(context.Background(), StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 4})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.ErrorIs(t, err, shared.ErrConflict)

	got, err := f.svc.GetItem(context.Background(), testOrg, item.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Quantity)
	require.Len(t, f.repo.transactionsFor(item.ID), 1)
	f.requireLedger(t, item.ID)
}

func TestNegativeStockAllowedWhenConfigured(t *testing.T) {
	f := newFixture(t, ServiceConfig{AllowNegativeStock: true})
	item := f.create(t, "nut", 3)

	res, err := f.svc.RemoveStock(context.Background(), StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 5})
	require.NoError(t, err)
	require.Equal(t, -2, res.Item.Quantity)
	f.requireLedger(t, item.ID)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	src := f.create(t, "src", 10)
	dst := f.create(t, "dst", 2)

	res, err := f.svc.Transfer(ctx, TransferInput{OrganizationID: testOrg, SourceID: src.ID, DestinationID: dst.ID, Quantity: 6})
	require.NoError(t, err)
	require.Equal(t, 4, res.Source.Quantity)
	require.Equal(t, 8, res.Destination.Quantity)
	require.Equal(t, -6, res.Out.Quantity)
	require.Equal(t, 6, res.In.Quantity)
	require.Equal(t, TransactionTypeTransfer, res.Out.Type)

	srcAudits := f.repo.auditsFor(src.ID)
	require.Equal(t, AuditMove, srcAudits[len(srcAudits)-1].Action)
	require.Equal(t, -6, srcAudits[len(srcAudits)-1].QuantityChange)

	f.requireLedger(t, src.ID)
	f.requireLedger(t, dst.ID)
	require.Equal(t, 6, f.metrics.moves["TRANSFER"])
}

func TestTransferLocksInIDOrder(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	a := f.create(t, "a", 5)
	b := f.create(t, "b", 5)
	first, second := a.ID, b.ID
	if second < first {
		first, second = second, first
	}

	f.repo.locked = nil
	_, err := f.svc.Transfer(context.Background(), TransferInput{OrganizationID: testOrg, SourceID: second, DestinationID: first, Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, []string{first, second}, f.repo.locked)
}

func TestTransferRejections(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	src := f.create(t, "src", 3)
	dst := f.create(t, "dst", 0)

	_, err := f.svc.Transfer(ctx, TransferInput{OrganizationID: testOrg, SourceID: src.ID, DestinationID: src.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrSameItem)

	_, err = f.svc.Transfer(ctx, TransferInput{OrganizationID: testOrg, SourceID: src.ID, DestinationID: dst.ID, Quantity: 4})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Len(t, f.repo.transactionsFor(dst.ID), 0)

	_, err = f.svc.Transfer(ctx, TransferInput{OrganizationID: "org-2", SourceID: src.ID, DestinationID: dst.ID, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAdjust(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	item := f.create(t, "count", 10)

	res, err := f.svc.Adjust(ctx, AdjustInput{OrganizationID: testOrg, ItemID: item.ID, Counted: 7})
	require.NoError(t, err)
	require.Equal(t, 7, res.Item.Quantity)
	require.Equal(t, TransactionTypeRemove, res.Transaction.Type)
	require.Equal(t, -3, res.Transaction.Quantity)

	res, err = f.svc.Adjust(ctx, AdjustInput{OrganizationID: testOrg, ItemID: item.ID, Counted: 9})
	require.NoError(t, err)
	require.Equal(t, TransactionTypeAdd, res.Transaction.Type)
	require.Equal(t, 2, res.Transaction.Quantity)

	before := len(f.repo.auditsFor(item.ID))
	res, err = f.svc.Adjust(ctx, AdjustInput{OrganizationID: testOrg, ItemID: item.ID, Counted: 9})
	require.NoError(t, err)
	require.Nil(t, res.Transaction)
	require.Len(t, f.repo.auditsFor(item.ID), before)

	_, err = f.svc.Adjust(ctx, AdjustInput{OrganizationID: testOrg, ItemID: item.ID, Counted: -1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	f.requireLedger(t, item.ID)
}

func TestIdempotentReplayIsRejected(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	item := f.create(t, "idem", 0)
	in := StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 2, IdempotencyKey: "req-1"}

	_, err := f.svc.AddStock(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.AddStock(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	got, err := f.svc.GetItem(ctx, testOrg, item.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Quantity)
}

func TestFailedOperationReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	item := f.create(t, "idem", 1)
	in := StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 5, IdempotencyKey: "req-2"}

	_, err := f.svc.RemoveStock(ctx, in)
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Empty(t, f.idem.keys)

	_, err = f.svc.AddStock(ctx, StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 10})
	require.NoError(t, err)
	_, err = f.svc.RemoveStock(ctx, in)
	require.NoError(t, err)
}

func TestConcurrentRemovalsNeverOversell(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	item := f.create(t, "hot", 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RemoveStock(context.Background(), StockInput{OrganizationID: testOrg, ItemID: item.ID, Quantity: 1})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 10, accepted)
	f.requireLedger(t, item.ID)
}

func TestUpdateAndMoveItem(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	item := f.create(t, "mv", 1)
	name := "Renamed"

	updated, err := f.svc.UpdateItem(ctx, testOrg, item.ID, UpdateItemInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)

	section := "sec-b"
	moved, err := f.svc.MoveItem(ctx, testOrg, item.ID, &section)
	require.NoError(t, err)
	require.Equal(t, "sec-b", *moved.SectionID)

	audits := f.repo.auditsFor(item.ID)
	require.Equal(t, AuditUpdate, audits[len(audits)-2].Action)
	require.Equal(t, AuditMove, audits[len(audits)-1].Action)
	require.Zero(t, audits[len(audits)-1].QuantityChange)

	_, err = f.svc.MoveItem(ctx, testOrg, item.ID, &section)
	require.NoError(t, err)
	require.Len(t, f.repo.auditsFor(item.ID), len(audits))

	foreign := "sec-other"
	_, err = f.svc.MoveItem(ctx, testOrg, item.ID, &foreign)
	require.ErrorIs(t, err, ErrSectionNotFound)

	root, err := f.svc.MoveItem(ctx, testOrg, item.ID, nil)
	require.NoError(t, err)
	require.Nil(t, root.SectionID)
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	item := f.create(t, "gone", 4)

	require.NoError(t, f.svc.DeleteItem(ctx, testOrg, "user-1", item.ID))
	_, err := f.svc.GetItem(ctx, testOrg, item.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, f.svc.DeleteItem(ctx, testOrg, "user-1", item.ID), shared.ErrNotFound)
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	item := f.create(t, "mine", 1)

	_, err := f.svc.GetItem(ctx, "org-2", item.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.AddStock(ctx, StockInput{OrganizationID: "org-2", ItemID: item.ID, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)

	page, err := f.svc.ListItems(ctx, ListFilter{OrganizationID: "org-2"})
	require.NoError(t, err)
	require.Empty(t, page.Items)
}

func TestListItemsPaginates(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	for _, sku := range []string{"a", "b", "c"} {
		f.create(t, sku, 1)
	}
	page, err := f.svc.ListItems(context.Background(), ListFilter{OrganizationID: testOrg, Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 3, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
}

func TestReconcileOrganizationReportsDrift(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	item := f.create(t, "drift", 5)

	f.repo.mu.Lock()
	drifted := f.repo.items[item.ID]
	drifted.Quantity = 9
	f.repo.items[item.ID] = drifted
	f.repo.mu.Unlock()

	recs, err := f.svc.ReconcileOrganization(context.Background(), testOrg)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 9, recs[0].Quantity)
	require.Equal(t, 5, recs[0].LedgerSum)
}

func TestListTransactionsRejectsInvertedRange(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	item := f.create(t, "range", 1)
	now := time.Now()
	_, err := f.svc.ListTransactions(context.Background(), testOrg, TransactionFilter{ItemID: item.ID, From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, shared.ErrValidation)

	txns, err := f.svc.ListTransactions(context.Background(), testOrg, TransactionFilter{ItemID: item.ID})
	require.NoError(t, err)
	require.Len(t, txns, 1)
}

func TestOrderClause(t *testing.T) {
	got, err := orderClause("-quantity")
	require.NoError(t, err)
	require.Equal(t, `"quantity" DESC, "id" ASC`, got)
	_, err = orderClause("password")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSubtreeFilterTerminatesOnCycles(t *testing.T) {
	section := "sec-1"
	parts, args := itemWhere(ListFilter{OrganizationID: "org-1", SectionID: &section, IncludeSubsections: true})
	require.Contains(t, parts.prefix, "UNION\n")
	require.NotContains(t, parts.prefix, "UNION ALL")
	require.Equal(t, []any{"org-1", "sec-1"}, args)
}

func TestStockMutationsReadCommittedData(t *testing.T) {
	require.Equal(t, pgx.ReadCommitted, txOptions.IsoLevel)
}
