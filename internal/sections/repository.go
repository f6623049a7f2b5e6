package sections

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// Repository persists sections in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations used inside a mutation.
type TxRepository interface {
	LockOrganization(ctx context.Context, orgID string) error
	Get(ctx context.Context, orgID, id string) (Section, error)
	ParentLinks(ctx context.Context, orgID string) (map[string]*string, error)
	Insert(ctx context.Context, s Section) error
	Update(ctx context.Context, s Section) error
	SetParent(ctx context.Context, orgID, id string, parentID *string) error
	CountChildren(ctx context.Context, orgID, id string) (int, error)
	DetachItems(ctx context.Context, orgID, id string) (int64, error)
	Delete(ctx context.Context, orgID, id string) error
}

type txRepo struct {
	tx pgx.Tx
}

const sectionColumns = `"id", "name", "description", "createdAt", "parentId", "organizationId"`

// txOptions runs section mutations at read committed: statements after the
// organization lock see moves committed while it was held.
var txOptions = db.ReadCommitted

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, txOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get loads a section scoped to an organization.
func (r *Repository) Get(ctx context.Context, orgID, id string) (Section, error) {
	return getSection(ctx, r.pool, orgID, id, false)
}

// List returns every section of an organization.
func (r *Repository) List(ctx context.Context, orgID string) ([]Section, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sectionColumns+` FROM "InventorySection" WHERE "organizationId" = $1 ORDER BY "name"`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ItemCounts returns the number of items directly in each section.
func (r *Repository) ItemCounts(ctx context.Context, orgID string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT "sectionId", COUNT(*) FROM "InventoryItem"
		WHERE "organizationId" = $1 AND "sectionId" IS NOT NULL GROUP BY "sectionId"`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getSection(ctx context.Context, q rowQuerier, orgID, id string, forUpdate bool) (Section, error) {
	sql := `SELECT ` + sectionColumns + ` FROM "InventorySection" WHERE "organizationId" = $1 AND "id" = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	s, err := scanSection(q.QueryRow(ctx, sql, orgID, id))
	return s, db.Translate(err, "section")
}

func (t *txRepo) LockOrganization(ctx context.Context, orgID string) error {
	return db.AdvisoryXactLock(ctx, t.tx, "sections:"+orgID)
}

func (t *txRepo) Get(ctx context.Context, orgID, id string) (Section, error) {
	return getSection(ctx, t.tx, orgID, id, true)
}

func (t *txRepo) ParentLinks(ctx context.Context, orgID string) (map[string]*string, error) {
	rows, err := t.tx.Query(ctx, `SELECT "id", "parentId" FROM "InventorySection" WHERE "organizationId" = $1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	links := make(map[string]*string)
	for rows.Next() {
		var (
			id     string
			parent *string
		)
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		links[id] = parent
	}
	return links, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, s Section) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "InventorySection" (`+sectionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Name, s.Description, s.CreatedAt, s.ParentID, s.OrganizationID)
	return db.Translate(err, "section")
}

func (t *txRepo) Update(ctx context.Context, s Section) error {
	_, err := t.tx.Exec(ctx, `UPDATE "InventorySection" SET "name" = $3, "description" = $4 WHERE "organizationId" = $1 AND "id" = $2`,
		s.OrganizationID, s.ID, s.Name, s.Description)
	return db.Translate(err, "section")
}

func (t *txRepo) SetParent(ctx context.Context, orgID, id string, parentID *string) error {
	_, err := t.tx.Exec(ctx, `UPDATE "InventorySection" SET "parentId" = $3 WHERE "organizationId" = $1 AND "id" = $2`, orgID, id, parentID)
	return db.Translate(err, "section")
}

func (t *txRepo) CountChildren(ctx context.Context, orgID, id string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM "InventorySection" WHERE "organizationId" = $1 AND "parentId" = $2`, orgID, id).Scan(&n)
	return n, err
}

func (t *txRepo) DetachItems(ctx context.Context, orgID, id string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE "InventoryItem" SET "sectionId" = NULL WHERE "organizationId" = $1 AND "sectionId" = $2`, orgID, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) Delete(ctx context.Context, orgID, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM "InventorySection" WHERE "organizationId" = $1 AND "id" = $2`, orgID, id)
	if err != nil {
		return db.Translate(err, "section")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("section: %w", shared.ErrNotFound)
	}
	return nil
}

func scanSection(row pgx.Row) (Section, error) {
	var s Section
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.ParentID, &s.OrganizationID)
	return s, err
}
