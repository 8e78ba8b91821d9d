package tenants

import (
	"context"
	"fmt"
	"strings"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context) ([]Tenant, error)
	Get(ctx context.Context, id string) (Tenant, error)
	Create(ctx context.Context, tenant Tenant, branchName, ownerEmail string) (Tenant, error)
	UpdatePlan(ctx context.Context, id, plan string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// AuditPort records plan and status changes.
type AuditPort interface {
	Observe(ctx context.Context, entry audit.Entry)
}

// Service implements platform-level tenant administration.
type Service struct {
	repo    RepositoryPort
	auditor AuditPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, auditor AuditPort) *Service {
	return &Service{repo: repo, auditor: auditor}
}

// CreateInput provisions a new tenant with its first branch and Owner.
type CreateInput struct {
	Name       string `json:"name" validate:"required,min=2,max=120"`
	Plan       string `json:"plan" validate:"required"`
	BranchName string `json:"branch_name" validate:"required,min=2,max=120"`
	OwnerEmail string `json:"owner_email" validate:"required,email"`
}

// List returns all tenants.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.repo.List(ctx)
}

// Get returns one tenant.
func (s *Service) Get(ctx context.Context, id string) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Create provisions a tenant. Only platform admins reach this path.
func (s *Service) Create(ctx context.Context, sc *shared.SecurityContext, in CreateInput) (Tenant, error) {
	plan := strings.ToUpper(strings.TrimSpace(in.Plan))
	if !ValidPlan(plan) {
		return Tenant{}, fmt.Errorf("%w: unknown plan %q", shared.ErrValidation, in.Plan)
	}
	tenant, err := s.repo.Create(ctx, Tenant{
		Name:   strings.TrimSpace(in.Name),
		Plan:   plan,
		Status: StatusActive,
	}, strings.TrimSpace(in.BranchName), strings.ToLower(strings.TrimSpace(in.OwnerEmail)))
	if err != nil {
		return Tenant{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   tenant.ID,
		Action:     audit.ActionTenantCreate,
		Resource:   "tenant:" + tenant.ID,
		ActorEmail: sc.Email,
		Details:    map[string]any{"name": tenant.Name, "plan": tenant.Plan},
	})
	return tenant, nil
}

// ChangePlan moves a tenant to another plan and audits the transition.
func (s *Service) ChangePlan(ctx context.Context, sc *shared.SecurityContext, id, plan string) (Tenant, error) {
	plan = strings.ToUpper(strings.TrimSpace(plan))
	if !ValidPlan(plan) {
		return Tenant{}, fmt.Errorf("%w: unknown plan %q", shared.ErrValidation, plan)
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if before.Plan == plan {
		return before, nil
	}
	if err := s.repo.UpdatePlan(ctx, id, plan); err != nil {
		return Tenant{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   id,
		Action:     audit.ActionTenantPlanChange,
		Resource:   "tenant:" + id,
		ActorEmail: sc.Email,
		Details:    audit.Diff(map[string]any{"plan": before.Plan}, map[string]any{"plan": plan}),
	})
	return s.repo.Get(ctx, id)
}

// ChangeStatus moves a tenant between lifecycle statuses and audits the
// transition.
func (s *Service) ChangeStatus(ctx context.Context, sc *shared.SecurityContext, id, status string) (Tenant, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if !ValidStatus(status) {
		return Tenant{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if before.Status == status {
		return before, nil
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return Tenant{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   id,
		Action:     audit.ActionTenantStatusChange,
		Resource:   "tenant:" + id,
		ActorEmail: sc.Email,
		Details:    audit.Diff(map[string]any{"status": before.Status}, map[string]any{"status": status}),
	})
	return s.repo.Get(ctx, id)
}
