package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/httpx"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// Middleware resolves the request principal from a bearer credential or the
// session cookie. Requests without a credential pass through anonymously, as
// do requests whose cookie names a session that no longer exists; that cookie
// is cleared. A rejected bearer credential is answered with 401.
type Middleware struct {
	Service *Service
	Cookies CookieWriter
	Logger  *slog.Logger
}

// Handler returns the middleware function.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, fromCookie := credentialFromRequest(r, m.Cookies.Name)
		if credential == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.Service.ResolvePrincipal(r.Context(), credential)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("credential rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			if fromCookie && staleSession(err) {
				m.Cookies.Clear(w)
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

func staleSession(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}

func credentialFromRequest(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value), false
		}
	}
	if cookieName == "" {
		return "", false
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}
