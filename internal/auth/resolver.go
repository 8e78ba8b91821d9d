package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/steepleworks/steeple/internal/impersonation"
	"github.com/steepleworks/steeple/internal/shared"
)

// Resolver turns a bearer credential into exactly one SecurityContext shape:
// tenant-linked, platform-admin, or impersonation.
type Resolver struct {
	verifier Verifier
	repo     Repository
	grants   *impersonation.Manager
	admins   map[string]struct{}
	logger   *slog.Logger
}

var foldCaser = cases.Fold()

// NewResolver constructs a Resolver. adminEmails is the platform operator
// allow-list, injected at construction so tests can substitute it per case.
func NewResolver(verifier Verifier, repo Repository, grants *impersonation.Manager, adminEmails []string, logger *slog.Logger) *Resolver {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		email = strings.TrimSpace(email)
		if email != "" {
			admins[foldCaser.String(email)] = struct{}{}
		}
	}
	return &Resolver{verifier: verifier, repo: repo, grants: grants, admins: admins, logger: logger}
}

// Resolve implements session resolution. Pure lookup: no side effects, no
// caching; the caller attaches the result to the request.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (*shared.SecurityContext, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, shared.ErrUnauthenticated
	}

	if impersonation.IsImpersonationToken(bearer) {
		return r.grants.Validate(ctx, bearer)
	}

	identity, err := r.verifier.Verify(ctx, bearer)
	if err != nil {
		return nil, shared.ErrUnauthenticated
	}

	if _, ok := r.admins[foldCaser.String(identity.Email)]; ok {
		// Platform operators get no tenant linkage. Tenant-scoped handlers
		// reject this shape; impersonation is the only door into a tenant.
		return &shared.SecurityContext{
			SubjectID:        identity.SubjectID,
			Email:            identity.Email,
			IsPlatformAdmin:  true,
			IdentityProvider: identity.Provider,
		}, nil
	}

	linked, err := r.repo.FindByEmail(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrAccountNotLinked
		}
		return nil, err
	}
	if linked.Status == shared.StatusSuspended {
		return nil, shared.ErrAccountSuspended
	}
	if linked.BranchScope == shared.ScopeRestricted && len(linked.BranchGrants) == 0 {
		return nil, shared.ErrNoBranchAccess
	}

	return &shared.SecurityContext{
		SubjectID:        identity.SubjectID,
		Email:            identity.Email,
		TenantID:         linked.TenantID,
		TenantName:       linked.TenantName,
		UserID:           linked.UserID,
		RoleID:           linked.RoleID,
		RoleName:         linked.RoleName,
		Permissions:      append([]string(nil), linked.Permissions...),
		UserStatus:       linked.Status,
		BranchScope:      linked.BranchScope,
		AllowedBranchIDs: append([]string(nil), linked.BranchGrants...),
		IdentityProvider: identity.Provider,
	}, nil
}
