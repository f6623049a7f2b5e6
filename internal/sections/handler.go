package sections

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// Handler serves section endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers section routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView))
		r.Get("/", h.tree)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermSectionsEdit))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/move", h.move)
		r.Delete("/{id}", h.delete)
	})
}

type createRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description" validate:"max=1000"`
	ParentID    *string `json:"parentId" validate:"omitempty,min=1,max=64"`
}

type updateRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=120"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type moveRequest struct {
	ParentID *string `json:"parentId" validate:"omitempty,min=1,max=64"`
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	nodes, err := h.service.Tree(r.Context(), p.OrganizationID)
	if err != nil {
		h.logger.Error("section tree failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sections": nodes})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	path, err := h.service.Path(r.Context(), p.OrganizationID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"section": path[len(path)-1],
		"path":    path,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	sec, err := h.service.Create(r.Context(), CreateInput{
		OrganizationID: p.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		ParentID:       req.ParentID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	sec, err := h.service.Update(r.Context(), p.OrganizationID, chi.URLParam(r, "id"), UpdateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sec)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	sec, err := h.service.Move(r.Context(), p.OrganizationID, chi.URLParam(r, "id"), req.ParentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), p.OrganizationID, chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
