package organizations

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// CodeLength is the length of generated join codes.
const CodeLength = 8

// MaxNameLength bounds organization names in characters.
const MaxNameLength = 120

// codeAlphabet omits 0, 1, I and O. Its size divides 256 so byte sampling is unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var (
	// ErrInvalidName rejects empty or overlong names.
	ErrInvalidName = fmt.Errorf("organizations: name must be 1-%d characters: %w", MaxNameLength, shared.ErrValidation)
	// ErrCodeTaken is returned by the repository when a generated code collides.
	ErrCodeTaken = fmt.Errorf("organizations: code already taken: %w", shared.ErrDuplicate)
	// ErrCodeExhausted means every generation attempt collided.
	ErrCodeExhausted = fmt.Errorf("organizations: could not allocate a unique code: %w", shared.ErrConflict)
)

// Organization is the tenant boundary.
type Organization struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	OrganizationCode string    `json:"organizationCode"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Summary aggregates dashboard counters for one organization.
type Summary struct {
	OrganizationID    string `json:"organizationId"`
	Members           int    `json:"members"`
	Sections          int    `json:"sections"`
	Items             int    `json:"items"`
	UnitsOnHand       int64  `json:"unitsOnHand"`
	LowStockItems     int    `json:"lowStockItems"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

// GenerateCode draws a join code from src, or crypto/rand when src is nil.
func GenerateCode(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("organizations: read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

func normalizeName(name string) (string, error) {
	name = shared.NormalizeName(name)
	if n := shared.RuneLen(name); n == 0 || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
