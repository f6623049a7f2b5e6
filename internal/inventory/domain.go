package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeAdd represents stock coming in.
	TransactionTypeAdd TransactionType = "ADD"
	// TransactionTypeRemove represents stock going out.
	TransactionTypeRemove TransactionType = "REMOVE"
	// TransactionTypeTransfer represents one leg of an item-to-item transfer.
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// AuditAction enumerates audit log actions.
type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
	AuditMove   AuditAction = "MOVE"
	AuditAdjust AuditAction = "ADJUST"
)

// Valid reports whether a is a known action.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreate, AuditUpdate, AuditDelete, AuditMove, AuditAdjust:
		return true
	}
	return false
}

// Quantities, deltas and counts are stored as INTEGER columns.
const (
	MaxQuantity = math.MaxInt32
	MinQuantity = math.MinInt32
)

func inQuantityRange(n int) bool {
	return n >= MinQuantity && n <= MaxQuantity
}

var (
	// ErrInvalidQuantity rejects non-positive or out-of-range quantities.
	ErrInvalidQuantity = fmt.Errorf("inventory: invalid quantity: %w", shared.ErrValidation)
	// ErrNegativeStock indicates the movement would drive quantity below zero.
	ErrNegativeStock = fmt.Errorf("inventory: insufficient stock: %w", shared.ErrConflict)
	// ErrSameItem rejects transfers from an item to itself.
	ErrSameItem = fmt.Errorf("inventory: source and destination must differ: %w", shared.ErrValidation)
	// ErrSectionNotFound indicates the section is missing or in another organization.
	ErrSectionNotFound = fmt.Errorf("inventory: section not found: %w", shared.ErrValidation)
	// ErrInvalidSKU rejects empty SKUs.
	ErrInvalidSKU = fmt.Errorf("inventory: sku required: %w", shared.ErrValidation)
	// ErrInvalidName rejects empty names.
	ErrInvalidName = fmt.Errorf("inventory: name required: %w", shared.ErrValidation)
)

// Item is a stock keeping unit tracked within an organization.
type Item struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	Location       string    `json:"location"`
	SKU            string    `json:"sku"`
	CreatedAt      time.Time `json:"createdAt"`
	CreatedByID    string    `json:"createdById"`
	SectionID      *string   `json:"sectionId,omitempty"`
	OrganizationID string    `json:"organizationId"`
}

// StockTransaction is one signed ledger entry.
type StockTransaction struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"itemId"`
	Quantity  int             `json:"quantity"`
	Type      TransactionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuditEntry is one audit log row written alongside a mutation.
type AuditEntry struct {
	ID             string      `json:"id"`
	ItemID         string      `json:"itemId"`
	Action         AuditAction `json:"action"`
	QuantityChange int         `json:"quantityChange"`
	Timestamp      time.Time   `json:"timestamp"`
}

// CreateItemInput carries data for CreateItem.
type CreateItemInput struct {
	OrganizationID string
	ActorID        string
	Name           string
	SKU            string
	Location       string
	SectionID      *string
	Quantity       int
}

// UpdateItemInput carries optional field changes.
type UpdateItemInput struct {
	Name     *string
	Location *string
}

// StockInput describes an add or remove movement.
type StockInput struct {
	OrganizationID string
	ActorID        string
	ItemID         string
	Quantity       int
	IdempotencyKey string
}

// AdjustInput describes a stock take result.
type AdjustInput struct {
	OrganizationID string
	ActorID        string
	ItemID         string
	Counted        int
	IdempotencyKey string
}

// TransferInput describes moving quantity between two items.
type TransferInput struct {
	OrganizationID string
	ActorID        string
	SourceID       string
	DestinationID  string
	Quantity       int
	IdempotencyKey string
}

// MovementResult is returned by single-item stock operations. Transaction is
// nil when nothing changed.
type MovementResult struct {
	Item        Item              `json:"item"`
	Transaction *StockTransaction `json:"transaction,omitempty"`
}

// TransferResult is returned by Transfer.
type TransferResult struct {
	Source      Item             `json:"source"`
	Destination Item             `json:"destination"`
	Out         StockTransaction `json:"out"`
	In          StockTransaction `json:"in"`
}

// ListFilter narrows ListItems.
type ListFilter struct {
	OrganizationID     string
	SectionID          *string
	IncludeSubsections bool
	Search             string
	LowStock           *int
	Page               int
	PerPage            int
	Sort               string
}

// ItemPage is a page of items.
type ItemPage struct {
	Items      []Item            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	ItemID string
	From   time.Time
	To     time.Time
	Limit  int
}

// Reconciliation compares an item's quantity with its ledger sum.
type Reconciliation struct {
	ItemID    string `json:"itemId"`
	Quantity  int    `json:"quantity"`
	LedgerSum int    `json:"ledgerSum"`
	OK        bool   `json:"ok"`
}

// sortColumns whitelists ListItems sort keys. A leading '-' sorts descending.
var sortColumns = map[string]string{
	"name":      `"name"`,
	"sku":       `"sku"`,
	"quantity":  `"quantity"`,
	"createdAt": `"createdAt"`,
	"location":  `"location"`,
}

// orderClause turns a sort key into an ORDER BY expression, defaulting to name.
func orderClause(sort string) (string, error) {
	if sort == "" {
		return `"name" ASC, "id" ASC`, nil
	}
	dir := "ASC"
	key := sort
	if key[0] == '-' {
		dir = "DESC"
		key = key[1:]
	}
	col, ok := sortColumns[key]
	if !ok {
		return "", fmt.Errorf("inventory: unknown sort %q: %w", sort, shared.ErrValidation)
	}
	return col + " " + dir + `, "id" ASC`, nil
}

const (
	defaultTransactionLimit = 100
	maxTransactionLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		return maxTransactionLimit
	}
	return limit
}
