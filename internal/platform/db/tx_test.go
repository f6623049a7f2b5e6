package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

func TestRetryTxRerunsSerializationFailures(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), maxTxAttempts, func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("platform/db: commit tx: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetryTxGivesUpWithConflict(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), maxTxAttempts, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	})
	require.Equal(t, maxTxAttempts, calls)
	require.ErrorIs(t, err, ErrTxConflict)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.NotContains(t, shared.UserSafeMessage(err), "deadlock")
}

func TestRetryTxStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryTx(context.Background(), maxTxAttempts, func() error {
		calls++
		return boom
	})
	require.Equal(t, boom, err)
	require.Equal(t, 1, calls)
}

func TestRetryTxStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retryTx(ctx, maxTxAttempts, func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	require.Equal(t, 1, calls)
	require.ErrorIs(t, err, ErrTxConflict)
}

func TestReadCommittedOptions(t *testing.T) {
	require.Equal(t, pgx.ReadCommitted, ReadCommitted.IsoLevel)
}
