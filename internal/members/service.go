package members

import (
	"context"
	"fmt"
	"strings"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/scope"
	"github.com/steepleworks/steeple/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context, tenantID string, sc scope.Scope) ([]Member, error)
	Get(ctx context.Context, tenantID, id string, sc scope.Scope) (Member, error)
	Create(ctx context.Context, m Member) (Member, error)
	Update(ctx context.Context, m Member) error
	Delete(ctx context.Context, tenantID, id string) error
}

// BranchDirectory verifies branch ids against the caller's tenant.
type BranchDirectory interface {
	EnsureInTenant(ctx context.Context, tenantID, branchID string) error
}

// AuditPort records member edits.
type AuditPort interface {
	Observe(ctx context.Context, entry audit.Entry)
}

// Service implements branch-scoped member management.
type Service struct {
	repo     RepositoryPort
	branches BranchDirectory
	auditor  AuditPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, branches BranchDirectory, auditor AuditPort) *Service {
	return &Service{repo: repo, branches: branches, auditor: auditor}
}

// Input carries member fields for create and update.
type Input struct {
	BranchID  string `json:"branch_id" validate:"omitempty,uuid"`
	FirstName string `json:"first_name" validate:"required,min=1,max=120"`
	LastName  string `json:"last_name" validate:"required,min=1,max=120"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=40"`
}

// List returns members inside the caller's branch scope. requestedBranch may
// be empty.
func (s *Service) List(ctx context.Context, sec *shared.SecurityContext, requestedBranch string) ([]Member, error) {
	sc, err := scope.ResolveRead(sec, requestedBranch)
	if err != nil {
		return nil, err
	}
	if requestedBranch != "" {
		if err := s.branches.EnsureInTenant(ctx, sec.TenantID, requestedBranch); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, sec.TenantID, sc)
}

// Get returns one member if it lies inside the caller's scope.
func (s *Service) Get(ctx context.Context, sec *shared.SecurityContext, id string) (Member, error) {
	sc, err := scope.ResolveRead(sec, "")
	if err != nil {
		return Member{}, err
	}
	return s.repo.Get(ctx, sec.TenantID, id, sc)
}

// Create adds a member to a branch the caller may write to.
func (s *Service) Create(ctx context.Context, sec *shared.SecurityContext, in Input) (Member, error) {
	sc, err := scope.ResolveWrite(sec, in.BranchID)
	if err != nil {
		return Member{}, err
	}
	branchID := sc.BranchID
	if branchID == "" {
		return Member{}, fmt.Errorf("%w: branch is required for this operation", shared.ErrValidation)
	}
	if err := s.branches.EnsureInTenant(ctx, sec.TenantID, branchID); err != nil {
		return Member{}, err
	}
	member, err := s.repo.Create(ctx, Member{
		TenantID:  sec.TenantID,
		BranchID:  branchID,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:     strings.TrimSpace(in.Phone),
	})
	if err != nil {
		return Member{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sec.TenantID,
		Action:     audit.ActionMemberCreate,
		Resource:   "member:" + member.ID,
		ActorEmail: sec.Email,
		Details:    map[string]any{"branch_id": member.BranchID, "name": member.FirstName + " " + member.LastName},
	})
	return member, nil
}

// Update edits a member. Both the member's current branch and the target
// branch must lie inside the caller's write scope.
func (s *Service) Update(ctx context.Context, sec *shared.SecurityContext, id string, in Input) (Member, error) {
	readScope, err := scope.ResolveRead(sec, "")
	if err != nil {
		return Member{}, err
	}
	before, err := s.repo.Get(ctx, sec.TenantID, id, readScope)
	if err != nil {
		return Member{}, err
	}
	targetBranch := in.BranchID
	if targetBranch == "" {
		targetBranch = before.BranchID
	}
	sc, err := scope.ResolveWrite(sec, targetBranch)
	if err != nil {
		return Member{}, err
	}
	if err := s.branches.EnsureInTenant(ctx, sec.TenantID, sc.BranchID); err != nil {
		return Member{}, err
	}
	updated := before
	updated.BranchID = sc.BranchID
	updated.FirstName = strings.TrimSpace(in.FirstName)
	updated.LastName = strings.TrimSpace(in.LastName)
	updated.Email = strings.ToLower(strings.TrimSpace(in.Email))
	updated.Phone = strings.TrimSpace(in.Phone)
	if err := s.repo.Update(ctx, updated); err != nil {
		return Member{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sec.TenantID,
		Action:     audit.ActionMemberUpdate,
		Resource:   "member:" + id,
		ActorEmail: sec.Email,
		Details: audit.Diff(
			map[string]any{"branch_id": before.BranchID, "first_name": before.FirstName, "last_name": before.LastName, "email": before.Email, "phone": before.Phone},
			map[string]any{"branch_id": updated.BranchID, "first_name": updated.FirstName, "last_name": updated.LastName, "email": updated.Email, "phone": updated.Phone},
		),
	})
	return s.repo.Get(ctx, sec.TenantID, id, readScope)
}

// Delete removes a member inside the caller's write scope.
func (s *Service) Delete(ctx context.Context, sec *shared.SecurityContext, id string) error {
	readScope, err := scope.ResolveRead(sec, "")
	if err != nil {
		return err
	}
	member, err := s.repo.Get(ctx, sec.TenantID, id, readScope)
	if err != nil {
		return err
	}
	if _, err := scope.ResolveWrite(sec, member.BranchID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sec.TenantID, id); err != nil {
		return err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sec.TenantID,
		Action:     audit.ActionMemberDelete,
		Resource:   "member:" + id,
		ActorEmail: sec.Email,
		Details:    map[string]any{"branch_id": member.BranchID, "name": member.FirstName + " " + member.LastName},
	})
	return nil
}
