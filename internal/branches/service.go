package branches

import (
	"context"
	"fmt"
	"strings"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context, tenantID string, includeArchived bool) ([]Branch, error)
	Get(ctx context.Context, tenantID, id string) (Branch, error)
	EnsureInTenant(ctx context.Context, tenantID, branchID string) error
	Create(ctx context.Context, branch Branch) (Branch, error)
	Update(ctx context.Context, branch Branch) error
	Archive(ctx context.Context, tenantID, id string) error
	Unarchive(ctx context.Context, tenantID, id string) error
}

// AuditPort records branch lifecycle changes.
type AuditPort interface {
	Observe(ctx context.Context, entry audit.Entry)
}

// Service implements branch management for a tenant.
type Service struct {
	repo    RepositoryPort
	auditor AuditPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, auditor AuditPort) *Service {
	return &Service{repo: repo, auditor: auditor}
}

// CreateInput carries a new branch.
type CreateInput struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Location string `json:"location" validate:"max=240"`
}

// UpdateInput carries branch edits.
type UpdateInput struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Location string `json:"location" validate:"max=240"`
}

// List returns the tenant's branches.
func (s *Service) List(ctx context.Context, sc *shared.SecurityContext, includeArchived bool) ([]Branch, error) {
	return s.repo.List(ctx, sc.TenantID, includeArchived)
}

// Get returns one branch.
func (s *Service) Get(ctx context.Context, sc *shared.SecurityContext, id string) (Branch, error) {
	return s.repo.Get(ctx, sc.TenantID, id)
}

// Create adds an active branch.
func (s *Service) Create(ctx context.Context, sc *shared.SecurityContext, in CreateInput) (Branch, error) {
	branch, err := s.repo.Create(ctx, Branch{
		TenantID: sc.TenantID,
		Name:     strings.TrimSpace(in.Name),
		Location: strings.TrimSpace(in.Location),
	})
	if err != nil {
		return Branch{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionBranchCreate,
		Resource:   "branch:" + branch.ID,
		ActorEmail: sc.Email,
		Details:    map[string]any{"name": branch.Name, "location": branch.Location},
	})
	return branch, nil
}

// Update edits name and location.
func (s *Service) Update(ctx context.Context, sc *shared.SecurityContext, id string, in UpdateInput) (Branch, error) {
	before, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return Branch{}, err
	}
	updated := before
	updated.Name = strings.TrimSpace(in.Name)
	updated.Location = strings.TrimSpace(in.Location)
	if err := s.repo.Update(ctx, updated); err != nil {
		return Branch{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionBranchUpdate,
		Resource:   "branch:" + id,
		ActorEmail: sc.Email,
		Details:    audit.Diff(map[string]any{"name": before.Name, "location": before.Location}, map[string]any{"name": updated.Name, "location": updated.Location}),
	})
	return s.repo.Get(ctx, sc.TenantID, id)
}

// Archive deactivates a branch. The repository enforces the last-branch and
// dependent-user rules transactionally.
func (s *Service) Archive(ctx context.Context, sc *shared.SecurityContext, id string) error {
	branch, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Archive(ctx, sc.TenantID, id); err != nil {
		return err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionBranchArchive,
		Resource:   "branch:" + id,
		ActorEmail: sc.Email,
		Details:    map[string]any{"name": branch.Name},
	})
	return nil
}

// Unarchive reactivates a branch. Grants removed at archival stay removed.
func (s *Service) Unarchive(ctx context.Context, sc *shared.SecurityContext, id string) error {
	branch, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return err
	}
	if branch.IsActive {
		return fmt.Errorf("%w: branch is already active", shared.ErrValidation)
	}
	if err := s.repo.Unarchive(ctx, sc.TenantID, id); err != nil {
		return err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionBranchUnarchive,
		Resource:   "branch:" + id,
		ActorEmail: sc.Email,
		Details:    map[string]any{"name": branch.Name},
	})
	return nil
}
