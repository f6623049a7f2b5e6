package audit

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

const (
	// DefaultPageSize is used when the caller does not choose one.
	DefaultPageSize = 20
	// MaxPageSize bounds a timeline page.
	MaxPageSize = 50
)

// ErrUnknownAction rejects action filters outside the audit vocabulary.
var ErrUnknownAction = fmt.Errorf("audit: unknown action: %w", shared.ErrValidation)

// Repository reads audit rows.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Service serves the audit timeline and its export.
type Service struct {
	repo     Repository
	exporter *Exporter
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, exporter: NewExporter()}
}

// Timeline returns a page of audit rows, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	filters, err := normalizeFilters(filters)
	if err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if page > shared.MaxPage {
		page = shared.MaxPage
	}
	rows, err := s.repo.TimelineWindow(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	filters, err := normalizeFilters(filters)
	if err != nil {
		return nil, err
	}
	return s.repo.TimelineAll(ctx, filters)
}

// ExportCSV writes every matching row to w as CSV.
func (s *Service) ExportCSV(ctx context.Context, filters TimelineFilters, w io.Writer) error {
	rows, err := s.Export(ctx, filters)
	if err != nil {
		return err
	}
	return s.exporter.WriteCSV(w, rows)
}

func normalizeFilters(f TimelineFilters) (TimelineFilters, error) {
	f.ItemID = strings.TrimSpace(f.ItemID)
	f.Action = strings.ToUpper(strings.TrimSpace(f.Action))
	if f.Action != "" && !inventory.AuditAction(f.Action).Valid() {
		return f, ErrUnknownAction
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("audit: range end before start: %w", shared.ErrValidation)
	}
	return f, nil
}
