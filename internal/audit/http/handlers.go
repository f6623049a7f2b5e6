package audithttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/audit"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	ExportCSV(ctx context.Context, filters audit.TimelineFilters, w io.Writer) error
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, fields := parseFilters(r)
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	h.respondTimeline(w, r, filters)
}

// ItemTimeline serves the audit timeline of the item named by the {id} URL
// parameter.
func (h *Handler) ItemTimeline(w http.ResponseWriter, r *http.Request) {
	filters, fields := parseFilters(r)
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	filters.ItemID = chi.URLParam(r, "id")
	h.respondTimeline(w, r, filters)
}

func (h *Handler) respondTimeline(w http.ResponseWriter, r *http.Request, filters audit.TimelineFilters) {
	filters.OrganizationID = shared.PrincipalFromContext(r.Context()).OrganizationID
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, fields := parseFilters(r)
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	filters.OrganizationID = shared.PrincipalFromContext(r.Context()).OrganizationID
	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), filters, &buf); err != nil {
		h.handleError(w, "export audit timeline", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-log.csv\"")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.TimelineFilters, map[string]string) {
	q := r.URL.Query()
	fields := map[string]string{}
	filters := audit.TimelineFilters{
		ItemID: strings.TrimSpace(q.Get("itemId")),
		Action: strings.TrimSpace(q.Get("action")),
	}
	var err error
	if filters.From, err = parseBound(q.Get("from"), false); err != nil {
		fields["from"] = "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"
	}
	if filters.To, err = parseBound(q.Get("to"), true); err != nil {
		fields["to"] = "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > shared.MaxPage {
			fields["page"] = fmt.Sprintf("must be between 1 and %d", shared.MaxPage)
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("pageSize")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			fields["pageSize"] = "must be a positive number"
		}
		filters.PageSize = parsed
	}
	return filters, fields
}

// parseBound reads a timestamp. A bare date used as an upper bound covers
// the whole day.
func parseBound(v string, upper bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}

func (h *Handler) handleError(w http.ResponseWriter, message string, err error) {
	if status := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
