// Package identity models the verified caller handed to the secret lifecycle
// core. Identities are produced at the transport boundary from a bearer token;
// the core consumes them and never persists them.
package identity

import (
	"context"
	"strings"
)

// Roles recognised by the service.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleUser      = "user"
)

// Identity is a verified caller: user id, email and role claim.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// CanCreate reports whether the caller's role permits creating secrets.
// The user role is read-only.
func (id Identity) CanCreate() bool {
	return id.Role == RoleAdmin || id.Role == RoleDeveloper
}

// ValidRole reports whether role is one of the recognised roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleDeveloper, RoleUser:
		return true
	}
	return false
}

// NormalizeRole lower-cases and trims a role claim.
func NormalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}

type identityContextKey struct{}

// ContextWith attaches the verified identity to the context.
func ContextWith(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// FromContext extracts the verified identity from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}
