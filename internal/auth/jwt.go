package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

const tokenIssuer = "inventory"

// Claims carried by access tokens.
type Claims struct {
	Email          string `json:"email"`
	OrganizationID string `json:"org,omitempty"`
	Role           string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns nil when secret is empty, which disables access tokens.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for u.
func (t *TokenIssuer) Issue(u users.User) (string, error) {
	if t == nil {
		return "", nil
	}
	now := t.now()
	claims := Claims{
		Email:          u.Email,
		OrganizationID: u.OrgID(),
		Role:           u.RoleName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (t *TokenIssuer) Parse(raw string) (Claims, error) {
	if t == nil {
		return Claims{}, fmt.Errorf("auth: access tokens disabled: %w", shared.ErrUnauthorized)
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("auth: access token expired: %w", shared.ErrUnauthorized)
		}
		return Claims{}, fmt.Errorf("auth: invalid access token: %w", shared.ErrUnauthorized)
	}
	return claims, nil
}

// looksLikeJWT distinguishes compact JWS from opaque session tokens, which
// are base64url without dots.
func looksLikeJWT(raw string) bool {
	return strings.Count(raw, ".") == 2
}
