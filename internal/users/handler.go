package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// Handler manages member endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView))
		r.Get("/", h.listMembers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermUsersManage))
		r.Patch("/{id}/role", h.updateRole)
		r.Delete("/{id}/membership", h.removeMember)
	})
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN MANAGER VIEWER"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	members, err := h.service.ListByOrganization(r.Context(), p.OrganizationID)
	if err != nil {
		h.logger.Error("list members failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if members == nil {
		members = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": members})
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	u, err := h.service.UpdateRole(r.Context(), p.UserID, chi.URLParam(r, "id"), role)
	if err != nil {
		h.logger.Warn("update role failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.RemoveFromOrganization(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		h.logger.Warn("remove member failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
