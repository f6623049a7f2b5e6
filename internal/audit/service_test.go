package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

type stubTimelineRepo struct {
	rows        []TimelineRow
	lastFilters TimelineFilters
	lastOffset  int
	lastLimit   int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilters, s.lastOffset, s.lastLimit = f, offset, limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	s.lastFilters = f
	return s.rows, nil
}

func mockRow(ts, itemID, action string, change int) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{ID: itemID + ts, At: at, ItemID: itemID, SKU: "SKU-" + itemID, ItemName: "Item " + itemID, Action: action, QuantityChange: change}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2026-03-10T10:00:00Z", "a", "ADJUST", 4),
		mockRow("2026-03-09T09:00:00Z", "a", "UPDATE", 0),
		mockRow("2026-03-08T08:00:00Z", "b", "CREATE", 2),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{OrganizationID: "org", Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Equal(t, 3, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{OrganizationID: "org", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.Equal(t, 2, repo.lastOffset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, MaxPageSize, result.Paging.PageSize)
	require.Equal(t, MaxPageSize+1, repo.lastLimit)
	require.NotNil(t, result.Rows)

	result, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Equal(t, DefaultPageSize, result.Paging.PageSize)
	require.Equal(t, 1, result.Paging.Page)
}

func TestServiceTimelineBoundsPage(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: math.MaxInt, PageSize: MaxPageSize})
	require.NoError(t, err)
	require.Equal(t, shared.MaxPage, result.Paging.Page)
	require.Equal(t, (shared.MaxPage-1)*MaxPageSize, repo.lastOffset)
	require.Positive(t, repo.lastOffset)
}

func TestServiceTimelineValidatesFilters(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{Action: "explode"})
	require.ErrorIs(t, err, ErrUnknownAction)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Timeline(context.Background(), TimelineFilters{Action: " move "})
	require.NoError(t, err)
	require.Equal(t, "MOVE", repo.lastFilters.Action)

	now := time.Now()
	_, err = svc.Timeline(context.Background(), TimelineFilters{From: now, To: now.Add(-time.Minute)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceExportCSV(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2026-03-10T10:00:00Z", "a", "ADJUST", -3),
		{ID: "x", At: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), ItemID: "b", SKU: "S,1", ItemName: `Bolt "M8"`, Action: "CREATE", QuantityChange: 7},
	}}
	svc := NewService(repo)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), TimelineFilters{OrganizationID: "org"}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, csvHeader, records[0])
	require.Equal(t, []string{"2026-03-10T10:00:00Z", "a", "SKU-a", "Item a", "ADJUST", "-3"}, records[1])
	require.Equal(t, "S,1", records[2][2])
	require.Equal(t, `Bolt "M8"`, records[2][3])
}
