package shared

import "context"

type securityContextKey struct{}

// ContextWithSecurity stores the resolved security context in context.
func ContextWithSecurity(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityFromContext extracts the security context from context.
func SecurityFromContext(ctx context.Context) *SecurityContext {
	sc, _ := ctx.Value(securityContextKey{}).(*SecurityContext)
	return sc
}
