package auth

import (
	"context"
)

type contextKey string

const principalKey contextKey = "principal"

const (
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Principal is the authenticated staff member behind a request.
type Principal struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the principal may use the admin surface.
func (p Principal) IsPrivileged() bool {
	return p.HasRole(RoleAdmin) || p.HasRole(RoleSuperAdmin)
}

// RolesFor maps the staff flags stored on a user row to token roles.
func RolesFor(isAdmin, isSuperAdmin bool) []string {
	roles := []string{RoleStaff}
	if isAdmin {
		roles = append(roles, RoleAdmin)
	}
	if isSuperAdmin {
		roles = append(roles, RoleSuperAdmin)
	}
	return roles
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal set by the auth middleware.
// The zero Principal (no roles) is returned for anonymous requests.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}
