package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/organizations"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/sections"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

// UserRegistrar creates and verifies accounts.
type UserRegistrar interface {
	Register(ctx context.Context, input users.RegisterInput) (users.User, error)
	MarkEmailVerified(ctx context.Context, email string, at time.Time) (bool, error)
}

// OrganizationCreator creates a tenant owned by actorID.
type OrganizationCreator interface {
	Create(ctx context.Context, actorID, name string) (organizations.Organization, error)
}

// SectionCreator creates inventory sections.
type SectionCreator interface {
	Create(ctx context.Context, input sections.CreateInput) (sections.Section, error)
}

// ItemCreator creates inventory items.
type ItemCreator interface {
	CreateItem(ctx context.Context, input inventory.CreateItemInput) (inventory.Item, error)
}

// Seeder populates a demo tenant through the regular services.
type Seeder struct {
	Users         UserRegistrar
	Organizations OrganizationCreator
	Sections      SectionCreator
	Inventory     ItemCreator
	Now           func() time.Time
}

// SeedOptions defines the flags of the seed command.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
	Organization  string
	JSONOutput    bool
	Stdout        io.Writer
	Stderr        io.Writer
}

// SeedSummary describes what the seed command created.
type SeedSummary struct {
	OrganizationID   string   `json:"organization_id"`
	OrganizationCode string   `json:"organization_code"`
	AdminID          string   `json:"admin_id"`
	AdminEmail       string   `json:"admin_email"`
	Sections         []string `json:"sections"`
	Items            []string `json:"items"`
}

type demoSection struct {
	name, parent, description string
}

type demoItem struct {
	name, sku, location, section string
	quantity                     int
}

var demoSections = []demoSection{
	{name: "Main Warehouse", description: "Primary storage"},
	{name: "Aisle 1", parent: "Main Warehouse"},
	{name: "Aisle 2", parent: "Main Warehouse"},
	{name: "Returns", description: "Goods awaiting inspection"},
}

var demoItems = []demoItem{
	{name: "Cordless Drill", sku: "TL-DRL-001", location: "A1-01", section: "Aisle 1", quantity: 12},
	{name: "Safety Goggles", sku: "PP-GOG-010", location: "A1-04", section: "Aisle 1", quantity: 3},
	{name: "Cable Ties 200mm", sku: "CN-TIE-200", location: "A2-11", section: "Aisle 2", quantity: 480},
	{name: "Work Gloves L", sku: "PP-GLV-00L", location: "A2-02", section: "Aisle 2", quantity: 0},
	{name: "Damaged Toolbox", sku: "TL-BOX-RMA", location: "R-01", section: "Returns", quantity: 1},
}

// Seed creates the admin user, organization, sections and items.
func (s Seeder) Seed(ctx context.Context, opts SeedOptions) (SeedSummary, error) {
	if s.Users == nil || s.Organizations == nil || s.Sections == nil || s.Inventory == nil {
		return SeedSummary{}, errors.New("seed: services not configured")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	admin, err := s.Users.Register(ctx, users.RegisterInput{
		Email:    opts.AdminEmail,
		Name:     opts.AdminName,
		Password: opts.AdminPassword,
	})
	if err != nil {
		return SeedSummary{}, fmt.Errorf("register admin: %w", err)
	}
	if _, err := s.Users.MarkEmailVerified(ctx, admin.Email, now().UTC()); err != nil {
		return SeedSummary{}, fmt.Errorf("verify admin: %w", err)
	}
	org, err := s.Organizations.Create(ctx, admin.ID, opts.Organization)
	if err != nil {
		return SeedSummary{}, fmt.Errorf("create organization: %w", err)
	}
	summary := SeedSummary{
		OrganizationID:   org.ID,
		OrganizationCode: org.OrganizationCode,
		AdminID:          admin.ID,
		AdminEmail:       admin.Email,
	}

	ids := make(map[string]string, len(demoSections))
	for _, ds := range demoSections {
		input := sections.CreateInput{OrganizationID: org.ID, Name: ds.name, Description: ds.description}
		if ds.parent != "" {
			parentID := ids[ds.parent]
			input.ParentID = &parentID
		}
		sec, err := s.Sections.Create(ctx, input)
		if err != nil {
			return summary, fmt.Errorf("create section %q: %w", ds.name, err)
		}
		ids[ds.name] = sec.ID
		summary.Sections = append(summary.Sections, sec.Name)
	}

	for _, di := range demoItems {
		sectionID := ids[di.section]
		item, err := s.Inventory.CreateItem(ctx, inventory.CreateItemInput{
			OrganizationID: org.ID,
			ActorID:        admin.ID,
			Name:           di.name,
			SKU:            di.sku,
			Location:       di.location,
			SectionID:      &sectionID,
			Quantity:       di.quantity,
		})
		if err != nil {
			return summary, fmt.Errorf("create item %q: %w", di.sku, err)
		}
		summary.Items = append(summary.Items, item.SKU)
	}
	return summary, nil
}

// SeedCommand runs Seed and prints the outcome.
func (s Seeder) SeedCommand(ctx context.Context, opts SeedOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.AdminEmail == "" || opts.AdminPassword == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "seed: --email and --password are required")
		return 2
	}
	if opts.Organization == "" {
		opts.Organization = "Demo Organization"
	}
	summary, err := s.Seed(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "seed: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "seed: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "organization %s (join code %s)\n", summary.OrganizationID, summary.OrganizationCode)
	_, _ = fmt.Fprintf(opts.Stdout, "admin %s <%s>\n", summary.AdminID, summary.AdminEmail)
	_, _ = fmt.Fprintf(opts.Stdout, "%d sections, %d items\n", len(summary.Sections), len(summary.Items))
	return 0
}
