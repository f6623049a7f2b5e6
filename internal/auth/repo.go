package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	CreateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, provider, providerAccountID string) (Account, error)
	ListAccounts(ctx context.Context, userID string) ([]Account, error)
	CreateVerification(ctx context.Context, v VerificationToken) error
	ConsumeVerification(ctx context.Context, identifier, token string) (VerificationToken, error)
	DeleteExpiredVerifications(ctx context.Context, now time.Time) (int64, error)
}

// TxRepository exposes the locking operations used by UnlinkAccount.
type TxRepository interface {
	LockUserCredentials(ctx context.Context, userID string) (hasPassword bool, err error)
	CountAccounts(ctx context.Context, userID string) (int, error)
	DeleteAccount(ctx context.Context, userID, provider, providerAccountID string) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgTx struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

// CreateSession persists a new login session.
func (r *PGRepository) CreateSession(ctx context.Context, s Session) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO "Session" ("id", "sessionToken", "userId", "expires") VALUES ($1, $2, $3, $4)`,
		s.ID, s.SessionToken, s.UserID, s.Expires)
	return db.Translate(err, "session")
}

// GetSession loads a session by token.
func (r *PGRepository) GetSession(ctx context.Context, token string) (Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx, `SELECT "id", "sessionToken", "userId", "expires" FROM "Session" WHERE "sessionToken" = $1`, token).
		Scan(&s.ID, &s.SessionToken, &s.UserID, &s.Expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM "Session" WHERE "sessionToken" = $1`, token)
	return err
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM "Session" WHERE "expires" <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const accountColumns = `"id", "userId", "type", "provider", "providerAccountId", "refresh_token", "access_token", "expires_at", "token_type", "scope", "id_token", "session_state"`

// CreateAccount links an external account.
func (r *PGRepository) CreateAccount(ctx context.Context, a Account) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO "Account" (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.UserID, a.Type, a.Provider, a.ProviderAccountID, a.RefreshToken, a.AccessToken, a.ExpiresAt,
		a.TokenType, a.Scope, a.IDToken, a.SessionState)
	return db.Translate(err, "account")
}

// GetAccount finds an account by provider identity.
func (r *PGRepository) GetAccount(ctx context.Context, provider, providerAccountID string) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM "Account" WHERE "provider" = $1 AND "providerAccountId" = $2`,
		provider, providerAccountID)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotLinked
	}
	return a, err
}

// ListAccounts returns the accounts linked to userID.
func (r *PGRepository) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM "Account" WHERE "userId" = $1 ORDER BY "provider", "providerAccountId"`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateVerification stores a verification token.
func (r *PGRepository) CreateVerification(ctx context.Context, v VerificationToken) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO "VerificationToken" ("identifier", "token", "expires") VALUES ($1, $2, $3)`,
		v.Identifier, v.Token, v.Expires)
	return db.Translate(err, "verification token")
}

// ConsumeVerification deletes and returns the token in one statement.
func (r *PGRepository) ConsumeVerification(ctx context.Context, identifier, token string) (VerificationToken, error) {
	var v VerificationToken
	err := r.pool.QueryRow(ctx, `DELETE FROM "VerificationToken" WHERE "identifier" = $1 AND "token" = $2
		RETURNING "identifier", "token", "expires"`, identifier, token).Scan(&v.Identifier, &v.Token, &v.Expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return VerificationToken{}, ErrTokenInvalid
	}
	return v, err
}

// DeleteExpiredVerifications removes tokens that expired before now.
func (r *PGRepository) DeleteExpiredVerifications(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM "VerificationToken" WHERE "expires" <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) LockUserCredentials(ctx context.Context, userID string) (bool, error) {
	var hasPassword bool
	err := t.tx.QueryRow(ctx, `SELECT "password" IS NOT NULL FROM "User" WHERE "id" = $1 FOR UPDATE`, userID).Scan(&hasPassword)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("user: %w", shared.ErrNotFound)
	}
	return hasPassword, err
}

func (t *pgTx) CountAccounts(ctx context.Context, userID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM "Account" WHERE "userId" = $1`, userID).Scan(&n)
	return n, err
}

func (t *pgTx) DeleteAccount(ctx context.Context, userID, provider, providerAccountID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM "Account" WHERE "userId" = $1 AND "provider" = $2 AND "providerAccountId" = $3`,
		userID, provider, providerAccountID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.Provider, &a.ProviderAccountID, &a.RefreshToken, &a.AccessToken,
		&a.ExpiresAt, &a.TokenType, &a.Scope, &a.IDToken, &a.SessionState)
	return a, err
}

var _ Repository = (*PGRepository)(nil)
