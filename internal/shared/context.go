package shared

import "context"

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           string
	SessionToken   string
}

// HasOrganization reports whether the principal belongs to a tenant.
func (p *Principal) HasOrganization() bool {
	return p != nil && p.OrganizationID != ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
