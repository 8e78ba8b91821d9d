package users

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

var foldCaser = cases.Fold()

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context, tenantID string) ([]User, error)
	Get(ctx context.Context, tenantID, id string) (User, error)
	Invite(ctx context.Context, user User, inviteTokenHash string) (User, error)
	SetStatus(ctx context.Context, tenantID, id string, status shared.UserStatus) error
	SetRole(ctx context.Context, tenantID, id, roleID string) error
	SetScope(ctx context.Context, tenantID, id string, mode shared.BranchScopeMode, defaultBranchID string, grants []string) error
}

// BranchDirectory verifies branch ids against the caller's tenant.
type BranchDirectory interface {
	EnsureInTenant(ctx context.Context, tenantID, branchID string) error
}

// AuditPort records user management changes.
type AuditPort interface {
	Observe(ctx context.Context, entry audit.Entry)
}

// InviteNotifier enqueues the invitation delivery task. Delivery itself is
// external.
type InviteNotifier interface {
	EnqueueInvite(ctx context.Context, email, tenantName, token string) error
}

// Service implements user management for a tenant.
type Service struct {
	repo     RepositoryPort
	branches BranchDirectory
	auditor  AuditPort
	notifier InviteNotifier
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, branches BranchDirectory, auditor AuditPort, notifier InviteNotifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, branches: branches, auditor: auditor, notifier: notifier, logger: logger}
}

// InviteInput carries a new invitation.
type InviteInput struct {
	Email           string   `json:"email" validate:"required,email"`
	RoleID          string   `json:"role_id" validate:"required,uuid"`
	BranchScope     string   `json:"branch_scope" validate:"required,oneof=ALL RESTRICTED"`
	DefaultBranchID string   `json:"default_branch_id" validate:"omitempty,uuid"`
	BranchIDs       []string `json:"branch_ids" validate:"dive,uuid"`
}

// ScopeInput carries a branch scope change.
type ScopeInput struct {
	BranchScope     string   `json:"branch_scope" validate:"required,oneof=ALL RESTRICTED"`
	DefaultBranchID string   `json:"default_branch_id" validate:"omitempty,uuid"`
	BranchIDs       []string `json:"branch_ids" validate:"dive,uuid"`
}

// List returns the tenant's users.
func (s *Service) List(ctx context.Context, sc *shared.SecurityContext) ([]User, error) {
	return s.repo.List(ctx, sc.TenantID)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, sc *shared.SecurityContext, id string) (User, error) {
	return s.repo.Get(ctx, sc.TenantID, id)
}

// Invite creates an invited user, stores a hash of the invite token and
// enqueues the notification. The raw token never touches the store.
func (s *Service) Invite(ctx context.Context, sc *shared.SecurityContext, in InviteInput) (User, error) {
	mode, defaultBranch, grants, err := s.resolveScope(ctx, sc.TenantID, in.BranchScope, in.DefaultBranchID, in.BranchIDs)
	if err != nil {
		return User{}, err
	}

	token, hash, err := newInviteToken()
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.Invite(ctx, User{
		TenantID:        sc.TenantID,
		Email:           foldCaser.String(strings.TrimSpace(in.Email)),
		RoleID:          in.RoleID,
		BranchScope:     mode,
		DefaultBranchID: defaultBranch,
		BranchGrants:    grants,
	}, hash)
	if err != nil {
		return User{}, err
	}

	if err := s.notifier.EnqueueInvite(ctx, user.Email, sc.TenantName, token); err != nil {
		s.logger.Error("enqueue invite notification", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionUserInvite,
		Resource:   "user:" + user.ID,
		ActorEmail: sc.Email,
		Details: map[string]any{
			"email":        user.Email,
			"role_id":      user.RoleID,
			"branch_scope": string(user.BranchScope),
		},
	})
	return user, nil
}

// ChangeStatus moves a user between lifecycle statuses. The repository
// rejects suspending the last non-suspended Owner.
func (s *Service) ChangeStatus(ctx context.Context, sc *shared.SecurityContext, id string, status shared.UserStatus) (User, error) {
	if !ValidStatus(status) {
		return User{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	before, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return User{}, err
	}
	if before.Status == status {
		return before, nil
	}
	if err := s.repo.SetStatus(ctx, sc.TenantID, id, status); err != nil {
		return User{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionUserStatusChange,
		Resource:   "user:" + id,
		ActorEmail: sc.Email,
		Details:    audit.Diff(map[string]any{"status": string(before.Status)}, map[string]any{"status": string(status)}),
	})
	return s.repo.Get(ctx, sc.TenantID, id)
}

// ChangeRole assigns a different role. The repository rejects moving the
// last non-suspended Owner off the Owner role.
func (s *Service) ChangeRole(ctx context.Context, sc *shared.SecurityContext, id, roleID string) (User, error) {
	before, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return User{}, err
	}
	if before.RoleID == roleID {
		return before, nil
	}
	if err := s.repo.SetRole(ctx, sc.TenantID, id, roleID); err != nil {
		return User{}, err
	}
	after, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return User{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionUserRoleChange,
		Resource:   "user:" + id,
		ActorEmail: sc.Email,
		Details:    audit.Diff(map[string]any{"role": before.RoleName}, map[string]any{"role": after.RoleName}),
	})
	return after, nil
}

// SetBranchScope replaces a user's scope mode and grant set.
func (s *Service) SetBranchScope(ctx context.Context, sc *shared.SecurityContext, id string, in ScopeInput) (User, error) {
	mode, defaultBranch, grants, err := s.resolveScope(ctx, sc.TenantID, in.BranchScope, in.DefaultBranchID, in.BranchIDs)
	if err != nil {
		return User{}, err
	}
	before, err := s.repo.Get(ctx, sc.TenantID, id)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.SetScope(ctx, sc.TenantID, id, mode, defaultBranch, grants); err != nil {
		return User{}, err
	}
	s.auditor.Observe(ctx, audit.Entry{
		TenantID:   sc.TenantID,
		Action:     audit.ActionUserScopeChange,
		Resource:   "user:" + id,
		ActorEmail: sc.Email,
		Details: audit.Diff(
			map[string]any{"branch_scope": string(before.BranchScope), "branch_ids": before.BranchGrants},
			map[string]any{"branch_scope": string(mode), "branch_ids": grants},
		),
	})
	return s.repo.Get(ctx, sc.TenantID, id)
}

// resolveScope validates the mode, grant set and default branch together.
// RESTRICTED requires at least one grant; every grant must belong to the
// tenant; the default branch must be inside the grant set.
func (s *Service) resolveScope(ctx context.Context, tenantID, rawMode, defaultBranchID string, branchIDs []string) (shared.BranchScopeMode, string, []string, error) {
	mode := shared.BranchScopeMode(strings.ToUpper(strings.TrimSpace(rawMode)))
	switch mode {
	case shared.ScopeAll:
		if defaultBranchID != "" {
			if err := s.branches.EnsureInTenant(ctx, tenantID, defaultBranchID); err != nil {
				return "", "", nil, err
			}
		}
		return mode, defaultBranchID, nil, nil
	case shared.ScopeRestricted:
		grants := dedupe(branchIDs)
		if len(grants) == 0 {
			return "", "", nil, fmt.Errorf("%w: restricted users need at least one branch grant", shared.ErrValidation)
		}
		for _, branchID := range grants {
			if err := s.branches.EnsureInTenant(ctx, tenantID, branchID); err != nil {
				return "", "", nil, err
			}
		}
		if defaultBranchID != "" && !slices.Contains(grants, defaultBranchID) {
			return "", "", nil, fmt.Errorf("%w: default branch must be in the grant set", shared.ErrValidation)
		}
		return mode, defaultBranchID, grants, nil
	default:
		return "", "", nil, fmt.Errorf("%w: unknown branch scope %q", shared.ErrValidation, rawMode)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// newInviteToken returns a random token and its bcrypt hash. Only the hash
// is persisted.
func newInviteToken() (token, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	digest, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return token, string(digest), nil
}
