package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

// GatewaySecretHeader carries the shared secret of the trusted sign-in gateway.
const GatewaySecretHeader = "X-Gateway-Secret"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	cookies       CookieWriter
	rbac          rbac.Middleware
	gatewaySecret string
	loginLimit    int
}

// HandlerOptions configures optional handler behaviour.
type HandlerOptions struct {
	Cookies       CookieWriter
	GatewaySecret string
	// LoginLimit is the per-IP login attempts allowed per minute.
	LoginLimit int
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, opts HandlerOptions) *Handler {
	if opts.LoginLimit <= 0 {
		opts.LoginLimit = 10
	}
	return &Handler{
		logger:        logger,
		service:       service,
		cookies:       opts.Cookies,
		rbac:          rbac,
		gatewaySecret: opts.GatewaySecret,
		loginLimit:    opts.LoginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.With(httprate.LimitByIP(h.loginLimit, time.Minute)).Post("/login", h.handleLogin)
	r.Post("/verification", h.handleIssueVerification)
	r.Post("/verification/confirm", h.handleConfirmVerification)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Post("/logout", h.handleLogout)
		r.Get("/session", h.handleSession)
		r.Get("/accounts", h.handleListAccounts)
		r.Post("/accounts", h.handleLinkAccount)
		r.Delete("/accounts/{provider}/{providerAccountId}", h.handleUnlinkAccount)
	})
	if h.gatewaySecret != "" {
		r.Post("/gateway/sign-in", h.handleGatewaySignIn)
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=120"`
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
	Image    string `json:"image" validate:"omitempty,url"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verificationRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
}

type confirmRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
	Token      string `json:"token" validate:"required"`
}

type linkAccountRequest struct {
	Type              string  `json:"type" validate:"required,max=32"`
	Provider          string  `json:"provider" validate:"required,max=64"`
	ProviderAccountID string  `json:"providerAccountId" validate:"required,max=255"`
	RefreshToken      *string `json:"refresh_token"`
	AccessToken       *string `json:"access_token"`
	ExpiresAt         *int    `json:"expires_at"`
	TokenType         *string `json:"token_type"`
	Scope             *string `json:"scope"`
	IDToken           *string `json:"id_token"`
	SessionState      *string `json:"session_state"`
}

type gatewaySignInRequest struct {
	Provider          string `json:"provider" validate:"required"`
	ProviderAccountID string `json:"providerAccountId" validate:"required"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	u, err := h.service.Register(r.Context(), users.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Image:    req.Image,
	})
	if err != nil {
		h.logger.Warn("register failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.IssueVerification(r.Context(), u.Email); err != nil {
		h.logger.Warn("issue verification after register", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.cookies.Set(w, res.Session)
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p.SessionToken != "" {
		if err := h.service.EndSession(r.Context(), p.SessionToken); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
	}
	h.cookies.Clear(w)
	httpx.NoContent(w)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	u, err := h.service.users.Get(r.Context(), p.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":        u,
		"permissions": rbac.PermissionsFor(rbac.Role(p.Role)),
	})
}

func (h *Handler) handleIssueVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	v, err := h.service.IssueVerification(r.Context(), req.Identifier)
	if err != nil {
		h.logger.Error("issue verification failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, v)
}

func (h *Handler) handleConfirmVerification(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	if _, err := h.service.ConsumeVerification(r.Context(), req.Identifier, req.Token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	accounts, err := h.service.ListAccounts(r.Context(), p.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	var req linkAccountRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	a, err := h.service.LinkAccount(r.Context(), Account{
		UserID:            p.UserID,
		Type:              req.Type,
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
		RefreshToken:      req.RefreshToken,
		AccessToken:       req.AccessToken,
		ExpiresAt:         req.ExpiresAt,
		TokenType:         req.TokenType,
		Scope:             req.Scope,
		IDToken:           req.IDToken,
		SessionState:      req.SessionState,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	err := h.service.UnlinkAccount(r.Context(), p.UserID, chi.URLParam(r, "provider"), chi.URLParam(r, "providerAccountId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleGatewaySignIn(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(GatewaySecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.gatewaySecret)) != 1 {
		h.logger.Warn("gateway sign-in with bad secret", slog.String("remote", r.RemoteAddr))
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid gateway secret")
		return
	}
	var req gatewaySignInRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	res, err := h.service.SignInWithAccount(r.Context(), req.Provider, req.ProviderAccountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
