package rbac

import (
	"net/http"

	"log/slog"

	"github.com/steepleworks/steeple/internal/platform/httpx"
	"github.com/steepleworks/steeple/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Require ensures the current security context carries every listed
// permission. Tenant-scoped by construction: platform-admin contexts are
// rejected even when the requirement list is empty.
func (m Middleware) Require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := shared.SecurityFromContext(r.Context())
			if sc == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if !sc.TenantLinked() {
				if m.Logger != nil {
					m.Logger.Warn("tenant route rejected non-tenant context",
						slog.String("email", sc.Email),
						slog.Bool("platform_admin", sc.IsPlatformAdmin))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			if err := Authorize(sc, perms...); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePlatformAdmin restricts a route to platform operators.
func (m Middleware) RequirePlatformAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := shared.SecurityFromContext(r.Context())
			if sc == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if !sc.IsPlatformAdmin {
				if m.Logger != nil {
					m.Logger.Warn("platform route rejected tenant context", slog.String("email", sc.Email))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
