package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/steepleworks/steeple/internal/observability"
	"github.com/steepleworks/steeple/internal/platform/httpx"
	"github.com/steepleworks/steeple/internal/shared"
)

// Middleware resolves the Authorization header and attaches the resulting
// security context before domain handlers run. Handlers never re-verify
// credentials themselves.
func Middleware(resolver *Resolver, metrics *observability.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := bearerToken(r)
			sc, err := resolver.Resolve(r.Context(), bearer)
			if err != nil {
				metrics.ObserveAuthFailure(err)
				if logger != nil {
					logger.Debug("session resolution failed", slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, err)
				return
			}
			metrics.ObserveAuthSuccess(sc.IsPlatformAdmin, sc.IsImpersonation)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSecurity(r.Context(), sc)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
