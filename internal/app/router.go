package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/auth"
	"github.com/steepleworks/steeple/internal/branches"
	"github.com/steepleworks/steeple/internal/impersonation"
	"github.com/steepleworks/steeple/internal/members"
	"github.com/steepleworks/steeple/internal/observability"
	"github.com/steepleworks/steeple/internal/rbac"
	"github.com/steepleworks/steeple/internal/roles"
	"github.com/steepleworks/steeple/internal/tenants"
	"github.com/steepleworks/steeple/internal/users"
	"github.com/steepleworks/steeple/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Resolver *auth.Resolver

	AuthHandler          *auth.Handler
	TenantsHandler       *tenants.Handler
	ImpersonationHandler *impersonation.Handler
	BranchesHandler      *branches.Handler
	RolesHandler         *roles.Handler
	UsersHandler         *users.Handler
	MembersHandler       *members.Handler
	AuditHandler         *audit.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	JobHandler           *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Steeple defaults. Everything
// except health and metrics sits behind session resolution.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Session endpoints take the credential in the request body and
	// authenticate it themselves, so they sit with the public routes.
	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(params.Resolver, params.Metrics, params.Logger))

		// Platform administration. Handlers enforce the platform-admin
		// shape themselves.
		r.Route("/platform", func(r chi.Router) {
			r.Route("/tenants", params.TenantsHandler.MountRoutes)
			r.Route("/impersonation", params.ImpersonationHandler.MountRoutes)
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountPlatformRoutes)
			}
		})

		// Tenant-scoped routes. Each handler group re-checks the required
		// permission; platform admins without an impersonation grant are
		// rejected there.
		r.Route("/branches", params.BranchesHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/members", params.MembersHandler.MountRoutes)
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountTenantRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
