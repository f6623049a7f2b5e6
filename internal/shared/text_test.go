package shared

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "Cold Room A", NormalizeName("  Cold   Room\tA "))
	// decomposed e + combining acute becomes the single precomposed rune
	require.Equal(t, "Caf\u00e9", NormalizeName("Cafe\u0301"))
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "SKU-001", NormalizeCode(" sku-001 "))
}

func TestPaginationClamp(t *testing.T) {
	p := NewPagination(0, 500, 250)
	require.Equal(t, 1, p.Page)
	require.Equal(t, MaxPerPage, p.PerPage)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 40, Offset(3, 20))
	require.Equal(t, (MaxPage-1)*20, Offset(math.MaxInt, 20))
}

func TestUserSafeMessageHidesInternalErrors(t *testing.T) {
	require.Equal(t, "internal error", UserSafeMessage(errString("pq: connection refused")))
	require.Equal(t, ErrNotFound.Error(), UserSafeMessage(ErrNotFound))
}

type errString string

func (e errString) Error() string { return string(e) }
