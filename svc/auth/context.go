package auth

import "context"

type identityContextKey struct{}

// SetIdentityToContext stores the authenticated identity in the context
// for the middleware chain.
func SetIdentityToContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// GetIdentityFromContext retrieves the authenticated identity, or nil when
// none was stored.
func GetIdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}
