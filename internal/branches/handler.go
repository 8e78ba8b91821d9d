package branches

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/steepleworks/steeple/internal/platform/httpx"
	"github.com/steepleworks/steeple/internal/rbac"
	"github.com/steepleworks/steeple/internal/shared"
)

// Handler wires branch management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers branch routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermBranchesView))
		r.Get("/", h.list)
		r.Get("/{branchID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermBranchesEdit))
		r.Post("/", h.create)
		r.Put("/{branchID}", h.update)
		r.Post("/{branchID}/archive", h.archive)
		r.Post("/{branchID}/unarchive", h.unarchive)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	branches, err := h.service.List(r.Context(), sc, includeArchived)
	if err != nil {
		h.logger.Error("list branches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	branch, err := h.service.Get(r.Context(), sc, chi.URLParam(r, "branchID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	branch, err := h.service.Create(r.Context(), sc, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, branch)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	branch, err := h.service.Update(r.Context(), sc, chi.URLParam(r, "branchID"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	if err := h.service.Archive(r.Context(), sc, chi.URLParam(r, "branchID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unarchive(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	if err := h.service.Unarchive(r.Context(), sc, chi.URLParam(r, "branchID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
