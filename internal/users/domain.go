package users

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

var (
	// ErrLastAdmin blocks demoting or removing the only remaining admin.
	ErrLastAdmin = fmt.Errorf("users: organization must keep at least one admin: %w", shared.ErrConflict)
	// ErrAlreadyMember indicates the user already belongs to an organization.
	ErrAlreadyMember = fmt.Errorf("users: already a member of an organization: %w", shared.ErrConflict)
	// ErrNotMember indicates the user is outside the actor's organization.
	ErrNotMember = fmt.Errorf("users: not a member of this organization: %w", shared.ErrNotFound)
	// ErrWeakPassword rejects passwords shorter than MinPasswordLength.
	ErrWeakPassword = fmt.Errorf("users: password must be at least %d characters: %w", MinPasswordLength, shared.ErrValidation)
)

// MinPasswordLength is enforced for first-party credentials.
const MinPasswordLength = 8

// User is an account that may belong to one organization.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	OrganizationID *string    `json:"organizationId,omitempty"`
	Role           *rbac.Role `json:"role,omitempty"`
	EmailVerified  *time.Time `json:"emailVerified,omitempty"`
	Image          *string    `json:"image,omitempty"`
	PasswordHash   string     `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// HasPassword reports whether the user can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// CheckPassword compares password against the stored bcrypt hash.
func (u User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// OrgID returns the organization id or "".
func (u User) OrgID() string {
	if u.OrganizationID == nil {
		return ""
	}
	return *u.OrganizationID
}

// RoleName returns the role or "".
func (u User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return string(*u.Role)
}

// IsAdmin reports whether the user administers its organization.
func (u User) IsAdmin() bool {
	return u.Role != nil && *u.Role == rbac.RoleAdmin
}

// RegisterInput carries sign-up data.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Image    string
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if shared.RuneLen(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("users: password too long: %w", shared.ErrValidation)
		}
		return "", err
	}
	return string(hash), nil
}
