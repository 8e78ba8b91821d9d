// Package scope computes effective branch filters for reads and writes.
// Every domain module resolves its filter here instead of reimplementing
// branch checks ad hoc.
package scope

import (
	"fmt"

	"github.com/steepleworks/steeple/internal/shared"
)

// Scope is the effective branch filter for one operation. At most one of
// BranchID and AllowedBranchIDs is set; when both are empty the operation
// applies to every branch of the caller's tenant.
type Scope struct {
	BranchID         string
	AllowedBranchIDs []string
}

// Restricted reports whether the scope narrows the query at all.
func (s Scope) Restricted() bool {
	return s.BranchID != "" || len(s.AllowedBranchIDs) > 0
}

// ResolveRead computes the branch filter for a read. requested may be empty,
// meaning "all branches the caller can see".
func ResolveRead(sc *shared.SecurityContext, requested string) (Scope, error) {
	if sc == nil || !sc.TenantLinked() {
		return Scope{}, fmt.Errorf("%w: tenant context required", shared.ErrForbidden)
	}
	if sc.BranchScope == shared.ScopeAll {
		return Scope{BranchID: requested}, nil
	}
	grants := sc.AllowedBranchIDs
	if len(grants) == 0 {
		return Scope{}, shared.ErrNoBranchAccess
	}
	if requested != "" {
		if !sc.HasBranchGrant(requested) {
			return Scope{}, fmt.Errorf("%w: branch outside allowed scope", shared.ErrForbidden)
		}
		return Scope{BranchID: requested}, nil
	}
	// Single-grant users never have to name their branch.
	if len(grants) == 1 {
		return Scope{BranchID: grants[0]}, nil
	}
	allowed := make([]string, len(grants))
	copy(allowed, grants)
	return Scope{AllowedBranchIDs: allowed}, nil
}

// ResolveWrite computes the branch filter for a write. Restricted users must
// name the branch explicitly; there is no auto-narrowing on writes, so a
// single-branch user can never write to an unintended branch by omission.
func ResolveWrite(sc *shared.SecurityContext, requested string) (Scope, error) {
	if sc == nil || !sc.TenantLinked() {
		return Scope{}, fmt.Errorf("%w: tenant context required", shared.ErrForbidden)
	}
	if sc.BranchScope == shared.ScopeAll {
		return Scope{BranchID: requested}, nil
	}
	if len(sc.AllowedBranchIDs) == 0 {
		return Scope{}, shared.ErrNoBranchAccess
	}
	if requested == "" {
		return Scope{}, fmt.Errorf("%w: branch is required for this operation", shared.ErrValidation)
	}
	if !sc.HasBranchGrant(requested) {
		return Scope{}, fmt.Errorf("%w: branch outside allowed scope", shared.ErrForbidden)
	}
	return Scope{BranchID: requested}, nil
}
