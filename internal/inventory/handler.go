package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// IdempotencyHeader carries the client supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

// HandlerOptions configures optional handler behaviour.
type HandlerOptions struct {
	// LowStockThreshold is used when lowStock=true is passed without a number.
	LowStockThreshold int
	// ItemAudit serves GET /items/{id}/audit when set.
	ItemAudit http.HandlerFunc
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	opts    HandlerOptions
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, opts HandlerOptions) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 5
	}
	return &Handler{logger: logger, service: service, rbac: rbac, opts: opts}
}

// MountRoutes registers item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/transactions", h.transactions)
		r.Get("/{id}/reconcile", h.reconcile)
	})
	if h.opts.ItemAudit != nil {
		r.With(h.rbac.RequireAny(rbac.PermAuditView)).Get("/{id}/audit", h.opts.ItemAudit)
	}
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInventoryEdit))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/move", h.move)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/stock/add", h.addStock)
		r.Post("/{id}/stock/remove", h.removeStock)
		r.Post("/{id}/stock/adjust", h.adjust)
	})
}

// MountTransfers registers the transfer route.
func (h *Handler) MountTransfers(r chi.Router) {
	r.With(h.rbac.RequireAll(rbac.PermInventoryEdit)).Post("/", h.transfer)
}

type createRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	SKU       string  `json:"sku" validate:"required,max=64"`
	Location  string  `json:"location" validate:"max=200"`
	SectionID *string `json:"sectionId" validate:"omitempty,max=64"`
	Quantity  int     `json:"quantity" validate:"gte=0,max=2147483647"`
}

type updateRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Location *string `json:"location" validate:"omitempty,max=200"`
}

type moveRequest struct {
	SectionID *string `json:"sectionId" validate:"omitempty,max=64"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"gt=0,max=2147483647"`
}

type adjustRequest struct {
	Counted *int `json:"countedQuantity" validate:"required,gte=0,max=2147483647"`
}

type transferRequest struct {
	SourceItemID      string `json:"sourceItemId" validate:"required,max=64"`
	DestinationItemID string `json:"destinationItemId" validate:"required,max=64,nefield=SourceItemID"`
	Quantity          int    `json:"quantity" validate:"gt=0,max=2147483647"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	filter, fields := h.parseListFilter(r.URL.Query())
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	filter.OrganizationID = p.OrganizationID
	page, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.fail(w, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) parseListFilter(q url.Values) (ListFilter, map[string]string) {
	fields := map[string]string{}
	filter := ListFilter{Search: q.Get("search"), Sort: q.Get("sort")}
	filter.Page, filter.PerPage = shared.PageFromQuery(q)
	if section := q.Get("section"); section != "" {
		filter.SectionID = &section
	}
	if v := q.Get("includeSubsections"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fields["includeSubsections"] = "must be true or false"
		}
		filter.IncludeSubsections = b
	}
	if v := q.Get("lowStock"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			if b {
				threshold := h.opts.LowStockThreshold
				filter.LowStock = &threshold
			}
		} else if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.LowStock = &n
		} else {
			fields["lowStock"] = "must be a non-negative number or a boolean"
		}
	}
	if _, err := orderClause(filter.Sort); err != nil {
		fields["sort"] = "unsupported sort key"
	}
	return filter, fields
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	item, err := h.service.GetItem(r.Context(), p.OrganizationID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		OrganizationID: p.OrganizationID,
		ActorID:        p.UserID,
		Name:           req.Name,
		SKU:            req.SKU,
		Location:       req.Location,
		SectionID:      req.SectionID,
		Quantity:       req.Quantity,
	})
	if err != nil {
		h.fail(w, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	item, err := h.service.UpdateItem(r.Context(), p.OrganizationID, chi.URLParam(r, "id"), UpdateItemInput{
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	item, err := h.service.MoveItem(r.Context(), p.OrganizationID, chi.URLParam(r, "id"), req.SectionID)
	if err != nil {
		h.fail(w, "move item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeleteItem(r.Context(), p.OrganizationID, p.UserID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete item", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	h.stock(w, r, h.service.AddStock)
}

func (h *Handler) removeStock(w http.ResponseWriter, r *http.Request) {
	h.stock(w, r, h.service.RemoveStock)
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request, op func(context.Context, StockInput) (MovementResult, error)) {
	var req quantityRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	res, err := op(r.Context(), StockInput{
		OrganizationID: p.OrganizationID,
		ActorID:        p.UserID,
		ItemID:         chi.URLParam(r, "id"),
		Quantity:       req.Quantity,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, "stock movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	res, err := h.service.Adjust(r.Context(), AdjustInput{
		OrganizationID: p.OrganizationID,
		ActorID:        p.UserID,
		ItemID:         chi.URLParam(r, "id"),
		Counted:        *req.Counted,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, "stock adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	res, err := h.service.Transfer(r.Context(), TransferInput{
		OrganizationID: p.OrganizationID,
		ActorID:        p.UserID,
		SourceID:       req.SourceItemID,
		DestinationID:  req.DestinationItemID,
		Quantity:       req.Quantity,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, "transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TransactionFilter{ItemID: chi.URLParam(r, "id")}
	fields := map[string]string{}
	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		fields["from"] = "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		fields["to"] = "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit <= 0 {
			fields["limit"] = "must be a positive number"
		}
	}
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	txns, err := h.service.ListTransactions(r.Context(), p.OrganizationID, filter)
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	if txns == nil {
		txns = []StockTransaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	rec, err := h.service.Reconcile(r.Context(), p.OrganizationID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "reconcile item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsNotFound(err) {
		h.logger.Warn("inventory "+op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// parseTime accepts a calendar date or an RFC 3339 timestamp.
func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}
