package members

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

// Handler wires member endpoints.
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

// MountRoutes registers member routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermMembersView))
		r.Get("/", h.list)
		r.Get("/{memberID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermMembersEdit))
		r.Post("/", h.create)
		r.Put("/{memberID}", h.update)
		r.Delete("/{memberID}", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	members, err := h.service.List(r.Context(), sc, r.URL.Query().Get("branch_id"))
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	member, err := h.service.Get(r.Context(), sc, chi.URLParam(r, "memberID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	member, err := h.service.Create(r.Context(), sc, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	member, err := h.service.Update(r.Context(), sc, chi.URLParam(r, "memberID"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), sc, chi.URLParam(r, "memberID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
