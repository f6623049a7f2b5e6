package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

const skuConstraint = "InventoryItem_sku_key"

// ErrDuplicateSKU is returned when the SKU is already used by any item.
var ErrDuplicateSKU = fmt.Errorf("inventory: sku already exists: %w", shared.ErrDuplicate)

// Repository persists items and their ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations used inside a mutation.
type TxRepository interface {
	SectionExists(ctx context.Context, orgID, sectionID string) (bool, error)
	GetItemForUpdate(ctx context.Context, orgID, id string) (Item, error)
	InsertItem(ctx context.Context, item Item) error
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, orgID, id string) error
	InsertTransaction(ctx context.Context, txn StockTransaction) error
	InsertAudit(ctx context.Context, entry AuditEntry) error
}

type txRepo struct {
	tx pgx.Tx
}

const itemColumns = `"id", "name", "quantity", "location", "sku", "createdAt", "createdById", "sectionId", "organizationId"`

// txOptions runs stock mutations at read committed so a writer waiting on an
// item row lock reads the committed quantity instead of failing.
var txOptions = db.ReadCommitted

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, txOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetItem loads an item scoped to an organization.
func (r *Repository) GetItem(ctx context.Context, orgID, id string) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM "InventoryItem" WHERE "organizationId" = $1 AND "id" = $2`, orgID, id))
	return item, db.Translate(err, "item")
}

// ListItems returns a filtered page of items and the total match count.
func (r *Repository) ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	order, err := orderClause(filter.Sort)
	if err != nil {
		return nil, 0, err
	}
	where, args := itemWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, where.prefix+`SELECT COUNT(*) FROM "InventoryItem" WHERE `+where.clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	sql := where.prefix + `SELECT ` + itemColumns + ` FROM "InventoryItem" WHERE ` + where.clause +
		` ORDER BY ` + order +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Item, 0, perPage)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

type whereParts struct {
	prefix string
	clause string
}

func itemWhere(filter ListFilter) (whereParts, []any) {
	args := []any{filter.OrganizationID}
	conds := []string{`"organizationId" = $1`}
	var prefix string
	if filter.SectionID != nil {
		args = append(args, *filter.SectionID)
		if filter.IncludeSubsections {
			prefix = `WITH RECURSIVE subtree AS (
				SELECT "id" FROM "InventorySection" WHERE "organizationId" = $1 AND "id" = $2
				UNION
				SELECT s."id" FROM "InventorySection" s JOIN subtree t ON s."parentId" = t."id"
			) `
			conds = append(conds, `"sectionId" IN (SELECT "id" FROM subtree)`)
		} else {
			conds = append(conds, `"sectionId" = $2`)
		}
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, `("name" ILIKE $`+n+` OR "sku" ILIKE $`+n+`)`)
	}
	if filter.LowStock != nil {
		args = append(args, *filter.LowStock)
		conds = append(conds, `"quantity" <= $`+strconv.Itoa(len(args)))
	}
	return whereParts{prefix: prefix, clause: strings.Join(conds, " AND ")}, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListTransactions returns ledger entries for an item, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error) {
	args := []any{filter.ItemID}
	conds := []string{`"itemId" = $1`}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, `"timestamp" >= $`+strconv.Itoa(len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, `"timestamp" < $`+strconv.Itoa(len(args)))
	}
	args = append(args, clampLimit(filter.Limit))
	sql := `SELECT "id", "itemId", "quantity", "type"::TEXT, "timestamp" FROM "StockTransaction" WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY "timestamp" DESC, "id" DESC LIMIT $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockTransaction
	for rows.Next() {
		var t StockTransaction
		if err := rows.Scan(&t.ID, &t.ItemID, &t.Quantity, &t.Type, &t.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LedgerSum returns the sum of signed ledger quantities for an item.
func (r *Repository) LedgerSum(ctx context.Context, itemID string) (int, error) {
	var sum int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM("quantity"), 0) FROM "StockTransaction" WHERE "itemId" = $1`, itemID).Scan(&sum)
	return sum, err
}

// Mismatches lists items of an organization whose quantity differs from
// their ledger sum.
func (r *Repository) Mismatches(ctx context.Context, orgID string) ([]Reconciliation, error) {
	rows, err := r.pool.Query(ctx, `SELECT i."id", i."quantity", COALESCE(SUM(t."quantity"), 0)
		FROM "InventoryItem" i
		LEFT JOIN "StockTransaction" t ON t."itemId" = i."id"
		WHERE i."organizationId" = $1
		GROUP BY i."id", i."quantity"
		HAVING i."quantity" <> COALESCE(SUM(t."quantity"), 0)
		ORDER BY i."id"`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reconciliation
	for rows.Next() {
		var rec Reconciliation
		if err := rows.Scan(&rec.ItemID, &rec.Quantity, &rec.LedgerSum); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *txRepo) SectionExists(ctx context.Context, orgID, sectionID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM "InventorySection" WHERE "organizationId" = $1 AND "id" = $2)`,
		orgID, sectionID).Scan(&ok)
	return ok, err
}

func (t *txRepo) GetItemForUpdate(ctx context.Context, orgID, id string) (Item, error) {
	item, err := scanItem(t.tx.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM "InventoryItem" WHERE "organizationId" = $1 AND "id" = $2 FOR UPDATE`, orgID, id))
	return item, db.Translate(err, "item")
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "InventoryItem" (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.Name, item.Quantity, item.Location, item.SKU, item.CreatedAt, item.CreatedByID, item.SectionID, item.OrganizationID)
	if db.IsUniqueViolation(err, skuConstraint) {
		return ErrDuplicateSKU
	}
	return db.Translate(err, "item")
}

func (t *txRepo) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `UPDATE "InventoryItem" SET "name" = $3, "quantity" = $4, "location" = $5, "sectionId" = $6
		WHERE "organizationId" = $1 AND "id" = $2`,
		item.OrganizationID, item.ID, item.Name, item.Quantity, item.Location, item.SectionID)
	if err != nil {
		return db.Translate(err, "item")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item: %w", shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) DeleteItem(ctx context.Context, orgID, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM "InventoryItem" WHERE "organizationId" = $1 AND "id" = $2`, orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item: %w", shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) InsertTransaction(ctx context.Context, txn StockTransaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "StockTransaction" ("id", "itemId", "quantity", "type", "timestamp")
		VALUES ($1, $2, $3, $4::"TransactionType", $5)`,
		txn.ID, txn.ItemID, txn.Quantity, string(txn.Type), txn.Timestamp)
	return db.Translate(err, "stock transaction")
}

func (t *txRepo) InsertAudit(ctx context.Context, entry AuditEntry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "AuditLog" ("id", "itemId", "action", "quantityChange", "timestamp")
		VALUES ($1, $2, $3::"AuditAction", $4, $5)`,
		entry.ID, entry.ItemID, string(entry.Action), entry.QuantityChange, entry.Timestamp)
	return db.Translate(err, "audit log")
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Name, &item.Quantity, &item.Location, &item.SKU,
		&item.CreatedAt, &item.CreatedByID, &item.SectionID, &item.OrganizationID)
	return item, err
}
