package organizations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

const codeConstraint = "Organization_organizationCode_key"

// Repository persists organizations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Create.
type TxRepository interface {
	LockUserMembership(ctx context.Context, userID string) (*string, error)
	Insert(ctx context.Context, org Organization) error
	AttachMember(ctx context.Context, userID, orgID string, role rbac.Role) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get loads an organization by id.
func (r *Repository) Get(ctx context.Context, id string) (Organization, error) {
	return r.getBy(ctx, `"id"`, id)
}

// GetByCode loads an organization by join code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Organization, error) {
	return r.getBy(ctx, `"organizationCode"`, code)
}

func (r *Repository) getBy(ctx context.Context, column, value string) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx, `SELECT "id", "name", "organizationCode", "createdAt" FROM "Organization" WHERE `+column+` = $1`, value).
		Scan(&org.ID, &org.Name, &org.OrganizationCode, &org.CreatedAt)
	return org, db.Translate(err, "organization")
}

// Rename updates the organization name.
func (r *Repository) Rename(ctx context.Context, id, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE "Organization" SET "name" = $2 WHERE "id" = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization: %w", shared.ErrNotFound)
	}
	return nil
}

// CountMembers counts users in the organization.
func (r *Repository) CountMembers(ctx context.Context, orgID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM "User" WHERE "organizationId" = $1`, orgID)
}

// CountSections counts sections in the organization.
func (r *Repository) CountSections(ctx context.Context, orgID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM "InventorySection" WHERE "organizationId" = $1`, orgID)
}

// CountItems counts items in the organization.
func (r *Repository) CountItems(ctx context.Context, orgID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM "InventoryItem" WHERE "organizationId" = $1`, orgID)
}

// CountLowStock counts items at or below threshold.
func (r *Repository) CountLowStock(ctx context.Context, orgID string, threshold int) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM "InventoryItem" WHERE "organizationId" = $1 AND "quantity" <= $2`, orgID, threshold)
}

// SumUnits totals the quantity on hand.
func (r *Repository) SumUnits(ctx context.Context, orgID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM("quantity"), 0)::BIGINT FROM "InventoryItem" WHERE "organizationId" = $1`, orgID).Scan(&total)
	return total, err
}

// ListIDs returns every organization id, used by batch jobs.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT "id" FROM "Organization" ORDER BY "createdAt"`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) count(ctx context.Context, sql string, args ...any) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (t *txRepo) LockUserMembership(ctx context.Context, userID string) (*string, error) {
	var orgID *string
	err := t.tx.QueryRow(ctx, `SELECT "organizationId" FROM "User" WHERE "id" = $1 FOR UPDATE`, userID).Scan(&orgID)
	return orgID, db.Translate(err, "user")
}

func (t *txRepo) Insert(ctx context.Context, org Organization) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "Organization" ("id", "name", "organizationCode", "createdAt") VALUES ($1, $2, $3, $4)`,
		org.ID, org.Name, org.OrganizationCode, org.CreatedAt)
	if db.IsUniqueViolation(err, codeConstraint) {
		return ErrCodeTaken
	}
	return db.Translate(err, "organization")
}

func (t *txRepo) AttachMember(ctx context.Context, userID, orgID string, role rbac.Role) error {
	_, err := t.tx.Exec(ctx, `UPDATE "User" SET "organizationId" = $2, "role" = $3::"UserRole", "updatedAt" = NOW() WHERE "id" = $1`,
		userID, orgID, string(role))
	return db.Translate(err, "user")
}
