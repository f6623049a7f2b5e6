package sections

import (
	"fmt"
	"sort"
	"time"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// MaxNameLength bounds section names in characters.
const MaxNameLength = 120

var (
	// ErrCycle rejects moves that would make a section its own ancestor.
	ErrCycle = fmt.Errorf("sections: move would create a cycle: %w", shared.ErrConflict)
	// ErrSectionNotEmpty blocks deleting a section that still has children.
	ErrSectionNotEmpty = fmt.Errorf("sections: section has child sections: %w", shared.ErrConflict)
	// ErrParentNotFound indicates the parent is missing or in another organization.
	ErrParentNotFound = fmt.Errorf("sections: parent section not found: %w", shared.ErrValidation)
	// ErrInvalidName rejects empty or overlong names.
	ErrInvalidName = fmt.Errorf("sections: name must be 1-%d characters: %w", MaxNameLength, shared.ErrValidation)
)

// Section groups items hierarchically inside one organization.
type Section struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ParentID       *string   `json:"parentId,omitempty"`
	OrganizationID string    `json:"organizationId"`
}

// Node is a section with its subtree and item counts.
type Node struct {
	Section
	DirectItems int     `json:"directItems"`
	TotalItems  int     `json:"totalItems"`
	Children    []*Node `json:"children"`
}

// CreateInput carries data for Create.
type CreateInput struct {
	OrganizationID string
	Name           string
	Description    string
	ParentID       *string
}

// UpdateInput carries optional field changes. Nil leaves a field untouched;
// an empty description clears it.
type UpdateInput struct {
	Name        *string
	Description *string
}

// BuildForest nests sections under their parents, sorted by name, and fills
// direct and subtree item counts from itemCounts.
func BuildForest(list []Section, itemCounts map[string]int) []*Node {
	nodes := make(map[string]*Node, len(list))
	for _, s := range list {
		nodes[s.ID] = &Node{Section: s, DirectItems: itemCounts[s.ID], Children: []*Node{}}
	}
	roots := make([]*Node, 0)
	for _, s := range list {
		n := nodes[s.ID]
		if s.ParentID != nil {
			if parent, ok := nodes[*s.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	for _, r := range roots {
		fillTotals(r)
	}
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name == nodes[j].Name {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

func fillTotals(n *Node) int {
	total := n.DirectItems
	for _, c := range n.Children {
		total += fillTotals(c)
	}
	n.TotalItems = total
	return total
}

// createsCycle reports whether placing id under newParent would make id its own
// ancestor. parents maps section id to parent id.
func createsCycle(parents map[string]*string, id, newParent string) bool {
	seen := make(map[string]struct{}, len(parents))
	for cur := newParent; cur != ""; {
		if cur == id {
			return true
		}
		if _, ok := seen[cur]; ok {
			return true
		}
		seen[cur] = struct{}{}
		next := parents[cur]
		if next == nil {
			return false
		}
		cur = *next
	}
	return false
}

func normalizeName(name string) (string, error) {
	name = shared.NormalizeName(name)
	if n := shared.RuneLen(name); n == 0 || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func optionalText(s string) *string {
	s = shared.NormalizeName(s)
	if s == "" {
		return nil
	}
	return &s
}
