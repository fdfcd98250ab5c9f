package shared

import (
	"context"
	"time"

	"github.com/examdesk/examdesk/internal/perms"
)

// Identity carries the decoded token claims for the current request. The
// Role tag is the coarse hint from the token; module-level decisions must go
// through the effective permission matrix, not this field.
type Identity struct {
	ActorID  int64
	Role     perms.CoarseRole
	Email    string
	Name     string
	TokenID  string
	IssuedAt time.Time
}

// IsAdmin reports whether the token carried the superadmin coarse tag.
func (id Identity) IsAdmin() bool {
	return id.Role == perms.CoarseRoleAdmin
}

type identityContextKey struct{}

type permissionsContextKey struct{}

// ContextWithIdentity stores the authenticated identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// ContextWithPermissions stores the resolved permission matrix so downstream
// handlers can make secondary decisions without recomputing it.
func ContextWithPermissions(ctx context.Context, m perms.Matrix) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, m)
}

// PermissionsFromContext extracts the resolved matrix from context.
func PermissionsFromContext(ctx context.Context) (perms.Matrix, bool) {
	m, ok := ctx.Value(permissionsContextKey{}).(perms.Matrix)
	return m, ok
}
