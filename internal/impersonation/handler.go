package impersonation

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/steepleworks/steeple/internal/platform/httpx"
	"github.com/steepleworks/steeple/internal/rbac"
	"github.com/steepleworks/steeple/internal/shared"
)

// Handler exposes grant start/stop to platform administrators.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, manager: manager, rbac: rbac}
}

// MountRoutes registers impersonation routes, platform-admin only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePlatformAdmin())
		r.Post("/", h.start)
		r.Delete("/", h.stop)
	})
}

type startRequest struct {
	TenantID string `json:"tenant_id"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	sc := shared.SecurityFromContext(r.Context())
	grant, err := h.manager.Start(r.Context(), sc, strings.TrimSpace(req.TenantID))
	if err != nil {
		h.logger.Warn("impersonation start failed", slog.String("actor", sc.Email), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("impersonation started",
		slog.String("actor", sc.Email),
		slog.String("tenant_id", grant.TenantID))
	httpx.JSON(w, http.StatusCreated, grant)
}

type stopRequest struct {
	Token string `json:"token"`
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	sc := shared.SecurityFromContext(r.Context())
	if err := h.manager.Stop(r.Context(), sc, strings.TrimSpace(req.Token)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("impersonation stopped", slog.String("actor", sc.Email))
	w.WriteHeader(http.StatusNoContent)
}
