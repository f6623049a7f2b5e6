package organizations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

// Handler serves organization endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	users   *users.Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, users *users.Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, users: users, rbac: rbac}
}

// MountRoutes registers organization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Post("/", h.create)
		r.Post("/join", h.join)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireMember())
		r.Get("/current", h.current)
		r.With(h.rbac.RequireAny(rbac.PermInventoryView)).Get("/current/summary", h.summary)
		r.With(h.rbac.RequireAny(rbac.PermOrgManage)).Patch("/current", h.rename)
	})
}

type nameRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type joinRequest struct {
	OrganizationCode string `json:"organizationCode" validate:"required,len=8"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	org, err := h.service.Create(r.Context(), p.UserID, req.Name)
	if err != nil {
		h.logger.Warn("create organization failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, org)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	u, err := h.users.Join(r.Context(), p.UserID, req.OrganizationCode)
	if err != nil {
		h.logger.Warn("join organization failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	org, err := h.service.Get(r.Context(), p.OrganizationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	org, err := h.service.Rename(r.Context(), p.OrganizationID, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	sum, err := h.service.Summary(r.Context(), p.OrganizationID)
	if err != nil {
		h.logger.Error("organization summary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}
