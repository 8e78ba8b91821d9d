package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/steepleworks/steeple/internal/platform/httpx"
	"github.com/steepleworks/steeple/internal/rbac"
	"github.com/steepleworks/steeple/internal/shared"
)

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountTenantRoutes registers the tenant-scoped timeline.
func (h *Handler) MountTenantRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermAuditView))
		r.Get("/", h.tenantTimeline)
	})
}

// MountPlatformRoutes registers the platform-wide timeline.
func (h *Handler) MountPlatformRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePlatformAdmin())
		r.Get("/", h.platformTimeline)
	})
}

func (h *Handler) tenantTimeline(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	filters := parseFilters(r)
	filters.TenantID = sc.TenantID
	h.respond(w, r, filters)
}

func (h *Handler) platformTimeline(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	filters.TenantID = r.URL.Query().Get("tenant_id")
	h.respond(w, r, filters)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, filters TimelineFilters) {
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": result.Rows,
		"paging":  result.Paging,
	})
}

func parseFilters(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	filters := TimelineFilters{
		Actor:    q.Get("actor"),
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
		Page:     page,
		PageSize: pageSize,
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = t
		}
	}
	return filters
}
