package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
)

// ErrTxConflict reports a transaction that lost a race with a concurrent
// writer. Clients may retry the request.
var ErrTxConflict = fmt.Errorf("concurrent update, retry the request: %w", shared.ErrConflict)

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTxConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerialization || pgErr.Code == codeDeadlock
}

// IsUniqueViolation reports whether err is a Postgres unique violation,
// optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Translate maps driver errors onto shared sentinels. what names the entity
// for the error message.
func Translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, shared.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s already exists: %w", what, shared.ErrDuplicate)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s references a missing record: %w", what, shared.ErrValidation)
		case codeSerialization, codeDeadlock:
			return fmt.Errorf("%s: %w", what, ErrTxConflict)
		}
	}
	return err
}
