package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/steepleworks/steeple/internal/impersonation"
	"github.com/steepleworks/steeple/internal/platform/httpx"
	"github.com/steepleworks/steeple/internal/shared"
)

// Handler exposes session resolution endpoints for front-ends that want the
// flattened claims without making a domain call.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	grants   *impersonation.Manager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, grants *impersonation.Manager) *Handler {
	return &Handler{logger: logger, resolver: resolver, grants: grants}
}

// MountRoutes registers session endpoints. They authenticate the token in the
// body rather than relying on the surrounding middleware chain.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/session", h.session)
	r.Post("/impersonation/session", h.impersonationSession)
}

type sessionRequest struct {
	Token string `json:"token"`
}

// sessionPayload flattens the SecurityContext for a caller to cache.
type sessionPayload struct {
	SubjectID        string            `json:"subject_id"`
	Email            string            `json:"email"`
	IsPlatformAdmin  bool              `json:"is_platform_admin"`
	IsImpersonation  bool              `json:"is_impersonation"`
	TenantID         string            `json:"tenant_id,omitempty"`
	TenantName       string            `json:"tenant_name,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	RoleID           string            `json:"role_id,omitempty"`
	RoleName         string            `json:"role_name,omitempty"`
	Permissions      []string          `json:"permissions"`
	UserStatus       shared.UserStatus `json:"user_status,omitempty"`
	BranchScope      string            `json:"branch_scope,omitempty"`
	AllowedBranchIDs []string          `json:"allowed_branch_ids,omitempty"`
	IdentityProvider string            `json:"identity_provider"`
	IssuedAt         *time.Time        `json:"impersonation_issued_at,omitempty"`
	ExpiresAt        *time.Time        `json:"impersonation_expires_at,omitempty"`
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	sc, err := h.resolver.Resolve(r.Context(), req.Token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, flatten(sc, nil, nil))
}

func (h *Handler) impersonationSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	sc, err := h.resolver.Resolve(r.Context(), req.Token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !sc.IsImpersonation {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	issued, expires, err := h.grants.Window(req.Token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, flatten(sc, &issued, &expires))
}

func flatten(sc *shared.SecurityContext, issued, expires *time.Time) sessionPayload {
	return sessionPayload{
		SubjectID:        sc.SubjectID,
		Email:            sc.Email,
		IsPlatformAdmin:  sc.IsPlatformAdmin,
		IsImpersonation:  sc.IsImpersonation,
		TenantID:         sc.TenantID,
		TenantName:       sc.TenantName,
		UserID:           sc.UserID,
		RoleID:           sc.RoleID,
		RoleName:         sc.RoleName,
		Permissions:      sc.Permissions,
		UserStatus:       sc.UserStatus,
		BranchScope:      string(sc.BranchScope),
		AllowedBranchIDs: sc.AllowedBranchIDs,
		IdentityProvider: sc.IdentityProvider,
		IssuedAt:         issued,
		ExpiresAt:        expires,
	}
}
