package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

var (
	// ErrSessionNotFound indicates an unknown session token.
	ErrSessionNotFound = fmt.Errorf("auth: session not found: %w", shared.ErrUnauthorized)
	// ErrSessionExpired indicates the session lifetime has passed.
	ErrSessionExpired = fmt.Errorf("auth: session expired: %w", shared.ErrUnauthorized)
	// ErrTokenInvalid indicates no matching verification token.
	ErrTokenInvalid = fmt.Errorf("auth: verification token invalid: %w", shared.ErrValidation)
	// ErrTokenExpired indicates the verification token has expired.
	ErrTokenExpired = fmt.Errorf("auth: verification token expired: %w", shared.ErrValidation)
	// ErrLastCredential blocks unlinking the only way a user can sign in.
	ErrLastCredential = fmt.Errorf("auth: cannot remove the last sign-in method: %w", shared.ErrConflict)
	// ErrAccountNotLinked indicates no user is linked to the external account.
	ErrAccountNotLinked = fmt.Errorf("auth: account not linked: %w", shared.ErrInvalidCredentials)
)

// tokenBytes is the entropy of session and verification tokens.
const tokenBytes = 32

// Session is a server-side login session.
type Session struct {
	ID           string    `json:"id"`
	SessionToken string    `json:"sessionToken"`
	UserID       string    `json:"userId"`
	Expires      time.Time `json:"expires"`
}

// Expired reports whether the session is past its lifetime at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expires)
}

// Account links a user to an external identity provider.
type Account struct {
	ID                string  `json:"id"`
	UserID            string  `json:"userId"`
	Type              string  `json:"type"`
	Provider          string  `json:"provider"`
	ProviderAccountID string  `json:"providerAccountId"`
	RefreshToken      *string `json:"-"`
	AccessToken       *string `json:"-"`
	ExpiresAt         *int    `json:"expiresAt,omitempty"`
	TokenType         *string `json:"tokenType,omitempty"`
	Scope             *string `json:"scope,omitempty"`
	IDToken           *string `json:"-"`
	SessionState      *string `json:"-"`
}

// VerificationToken is a one-time token proving control of an identifier.
type VerificationToken struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"-"`
	Expires    time.Time `json:"expires"`
}

// LoginResult is returned by every successful sign-in.
type LoginResult struct {
	User        users.User `json:"user"`
	Session     Session    `json:"session"`
	AccessToken string     `json:"accessToken,omitempty"`
}

// PurgeResult reports rows removed by PurgeExpired.
type PurgeResult struct {
	Sessions           int64 `json:"sessions"`
	VerificationTokens int64 `json:"verificationTokens"`
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
