package shared

import "context"

// Principal identifies the authenticated actor. Authorization and mutation
// calls take it explicitly; nothing reads it from ambient globals.
type Principal struct {
	ID        int64
	Email     string
	SuperUser bool
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when
// unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
