package rbac

import (
	"fmt"
	"strings"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// Role is the organization-level role of a user.
type Role string

const (
	// RoleAdmin manages members and everything below.
	RoleAdmin Role = "ADMIN"
	// RoleManager edits inventory and sections.
	RoleManager Role = "MANAGER"
	// RoleViewer has read-only access.
	RoleViewer Role = "VIEWER"
)

// Permissions understood by the middleware.
const (
	PermInventoryView = "inventory.view"
	PermInventoryEdit = "inventory.edit"
	PermSectionsEdit  = "sections.edit"
	PermAuditView     = "audit.view"
	PermUsersManage   = "users.manage"
	PermOrgManage     = "org.manage"
)

var rolePermissions = map[Role][]string{
	RoleAdmin: {
		PermInventoryView, PermInventoryEdit, PermSectionsEdit,
		PermAuditView, PermUsersManage, PermOrgManage,
	},
	RoleManager: {PermInventoryView, PermInventoryEdit, PermSectionsEdit, PermAuditView},
	RoleViewer:  {PermInventoryView},
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rolePermissions[r]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", shared.ErrValidation, s)
	}
	return r, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// PermissionsFor returns the permissions granted to role.
func PermissionsFor(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
