package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/audit/http"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/auth"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/observability"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/organizations"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/sections"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	Authenticate   func(http.Handler) http.Handler
	RBACMiddleware rbac.Middleware

	AuthHandler          *auth.Handler
	OrganizationsHandler *organizations.Handler
	UsersHandler         *users.Handler
	SectionsHandler      *sections.Handler
	InventoryHandler     *inventory.Handler
	AuditHandler         *audithttp.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		Metrics:      params.Metrics,
		Authenticate: params.Authenticate,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" not allowed on "+r.URL.Path)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.OrganizationsHandler != nil {
		r.Route("/organizations", params.OrganizationsHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireMember())
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.SectionsHandler != nil {
			r.Route("/sections", params.SectionsHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/items", params.InventoryHandler.MountRoutes)
			r.Route("/transfers", params.InventoryHandler.MountTransfers)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
