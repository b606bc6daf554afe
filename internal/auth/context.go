// ABOUTME: Identity propagation through request contexts
// ABOUTME: Provides WithIdentity/IdentityFromContext and tenant/user accessors

package auth

import "context"

// Identity is the (tenant, user) pair extracted from a request's bearer
// credential. It lives only for the request; nothing persists it.
type Identity struct {
	TenantID string
	UserID   string
}

// identityKey is the context key type for the request identity.
type identityKey struct{}

// WithIdentity returns a new context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the request identity; the zero Identity
// if none was attached (public endpoints).
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// TenantFromContext returns the tenant id attached to the context.
func TenantFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).TenantID
}

// UserFromContext returns the user id attached to the context.
func UserFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).UserID
}
