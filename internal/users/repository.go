package users

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the locking operations used by membership changes.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id string) (User, error)
	CountAdminsForUpdate(ctx context.Context, orgID string) (int, error)
	SetMembership(ctx context.Context, id string, orgID *string, role *rbac.Role) error
}

type txRepo struct {
	tx pgx.Tx
}

const userColumns = `"id", "email", "name", "organizationId", "password", "role", "emailVerified", "image", "createdAt", "updatedAt"`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, u User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO "User" ("id", "email", "name", "password", "image", "createdAt", "updatedAt")
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Image, u.CreatedAt)
	return db.Translate(err, "user")
}

// Get loads a user by id.
func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM "User" WHERE "id" = $1`, id)
	u, err := scanUser(row)
	return u, db.Translate(err, "user")
}

// GetByEmail loads a user by normalised email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM "User" WHERE "email" = $1`, email)
	u, err := scanUser(row)
	return u, db.Translate(err, "user")
}

// ListByOrganization returns members ordered by email.
func (r *Repository) ListByOrganization(ctx context.Context, orgID string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM "User" WHERE "organizationId" = $1 ORDER BY "email"`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetEmailVerified stamps emailVerified; it reports whether a user matched.
func (r *Repository) SetEmailVerified(ctx context.Context, email string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE "User" SET "emailVerified" = $2, "updatedAt" = $2 WHERE "email" = $1`, email, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id string) (User, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM "User" WHERE "id" = $1 FOR UPDATE`, id)
	u, err := scanUser(row)
	return u, db.Translate(err, "user")
}

func (t *txRepo) CountAdminsForUpdate(ctx context.Context, orgID string) (int, error) {
	rows, err := t.tx.Query(ctx, `SELECT "id" FROM "User" WHERE "organizationId" = $1 AND "role" = 'ADMIN' FOR UPDATE`, orgID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func (t *txRepo) SetMembership(ctx context.Context, id string, orgID *string, role *rbac.Role) error {
	var roleArg *string
	if role != nil {
		s := string(*role)
		roleArg = &s
	}
	_, err := t.tx.Exec(ctx, `UPDATE "User" SET "organizationId" = $2, "role" = $3::"UserRole", "updatedAt" = NOW() WHERE "id" = $1`,
		id, orgID, roleArg)
	return db.Translate(err, "user")
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u        User
		name     *string
		password *string
		role     *string
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &u.OrganizationID, &password, &role, &u.EmailVerified, &u.Image, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	if name != nil {
		u.Name = *name
	}
	if password != nil {
		u.PasswordHash = *password
	}
	if role != nil {
		r := rbac.Role(*role)
		u.Role = &r
	}
	return u, nil
}
