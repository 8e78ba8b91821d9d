package tenants

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

// Handler wires platform-level tenant administration endpoints.
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

// MountRoutes registers tenant administration routes. All routes require a
// platform-admin context.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePlatformAdmin())
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{tenantID}", h.get)
		r.Put("/{tenantID}/plan", h.changePlan)
		r.Put("/{tenantID}/status", h.changeStatus)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list tenants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.service.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
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
	tenant, err := h.service.Create(r.Context(), sc, in)
	if err != nil {
		h.logger.Error("create tenant", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tenant)
}

type planPayload struct {
	Plan string `json:"plan" validate:"required"`
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) changePlan(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	var in planPayload
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	tenant, err := h.service.ChangePlan(r.Context(), sc, chi.URLParam(r, "tenantID"), in.Plan)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	sc := shared.SecurityFromContext(r.Context())
	var in statusPayload
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	tenant, err := h.service.ChangeStatus(r.Context(), sc, chi.URLParam(r, "tenantID"), in.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}
