package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context, tenantID string) ([]Role, error)
	Get(ctx context.Context, tenantID, id string) (Role, error)
	Create(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) error
	Delete(ctx context.Context, tenantID, id string) error
	CountUsers(ctx context.Context, roleID string) (int, error)
}

// AuditPort records role changes.
type AuditPort interface {
	Observe(ctx context.Context, entry audit.Entry)
}

// Service implements role management for a tenant.
type Service struct {
	repo    RepositoryPort
	auditor AuditPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, auditor AuditPort) *Service {
	return &Service{repo: repo, auditor: auditor}
}

// CreateInput carries a new custom role.
type CreateInput struct {
	Name        string   `json:"name" validate:"required,min=2,max=80"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// UpdateInput carries role edits. Name is ignored for system roles.
type UpdateInput struct {
	Name        string   `json:"name" validate:"required,min=2,max=80"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// List returns the tenant's roles.
func (s *Service) List(ctx context.Context, sc *shared.SecurityContext) ([]Role, error) {
	return s.repo.List(ctx, sc.TenantID)
}

// Get returns one role.
func (s *Service) Get(ctx context.Context, sc *shared.SecurityContext, id string) (Role, error) {
	return s.repo.Get(ctx, sc.TenantID, id)
}

// Create adds a custom role. System roles are seeded at tenant creation and
// never created through this path.
func (s *Service) Create(ctx context.Context, sc *shared.SecurityContext, in CreateInput) (Role, error) {
	perms, err := normalizePermissions(in.Permissions)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.Create(ctx, Role{
		TenantID:    sc.TenantID,
		Name:        strings.TrimSpace(in.Name),
		Permissions: perms,
		IsSystem:    false,
	})
	if err != nil {
		return Role{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionRoleCreate,
		Resource:   "role:" + role.ID,
		ActorEmail: sc.Email,
		Details:    map[string]any{"name": role.Name, "permissions": role.Permissions},
	})
	return role, nil
}

// Update edits a role. System roles keep their name but accept permission
// changes.
func (s *Service) Update(ctx context.Context, sc *shared.SecurityContext, id string, in UpdateInput) (Role, error) {
	current, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return Role{}, err
	}
	name := strings.TrimSpace(in.Name)
	if current.IsSystem && !strings.EqualFold(name, current.Name) {
		return Role{}, fmt.Errorf("%w: system role %q cannot be renamed", shared.ErrValidation, current.Name)
	}
	perms, err := normalizePermissions(in.Permissions)
	if err != nil {
		return Role{}, err
	}
	updated := current
	if !current.IsSystem {
		updated.Name = name
	}
	updated.Permissions = perms
	if err := s.repo.Update(ctx, updated); err != nil {
		return Role{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionRoleUpdate,
		Resource:   "role:" + updated.ID,
		ActorEmail: sc.Email,
		Details:    audit.Diff(map[string]any{"name": current.Name, "permissions": current.Permissions}, map[string]any{"name": updated.Name, "permissions": updated.Permissions}),
	})
	return s.repo.Get(ctx, sc.TenantID, id)
}

// Delete removes a custom role that no user holds.
func (s *Service) Delete(ctx context.Context, sc *shared.SecurityContext, id string) error {
	role, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: system role %q cannot be deleted", shared.ErrValidation, role.Name)
	}
	count, err := s.repo.CountUsers(ctx, role.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: role %q is assigned to %d user(s)", shared.ErrValidation, role.Name, count)
	}
	if err := s.repo.Delete(ctx, sc.TenantID, id); err != nil {
		return err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionRoleDelete,
		Resource:   "role:" + role.ID,
		ActorEmail: sc.Email,
		Details:    map[string]any{"name": role.Name},
	})
	return nil
}

func normalizePermissions(perms []string) ([]string, error) {
	if len(perms) == 0 {
		return nil, fmt.Errorf("%w: at least one permission is required", shared.ErrValidation)
	}
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !shared.KnownPermission(p) {
			return nil, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one permission is required", shared.ErrValidation)
	}
	return out, nil
}
