package shared

import "slices"

// UserStatus is the lifecycle state of a tenant member.
type UserStatus string

const (
	StatusInvited   UserStatus = "INVITED"
	StatusActive    UserStatus = "ACTIVE"
	StatusSuspended UserStatus = "SUSPENDED"
)

// BranchScopeMode controls how far inside a tenant a user may reach.
type BranchScopeMode string

const (
	// ScopeAll grants access to every branch of the tenant.
	ScopeAll BranchScopeMode = "ALL"
	// ScopeRestricted limits access to an explicit grant set.
	ScopeRestricted BranchScopeMode = "RESTRICTED"
)

// PermissionWildcard grants every permission in the catalog.
const PermissionWildcard = "*"

// SecurityContext is the resolved identity for one request. It is built fresh
// per request, never persisted, and must not be mutated after construction.
// Exactly one of the tenant-linked, platform-admin or impersonation shapes holds.
type SecurityContext struct {
	SubjectID        string
	Email            string
	IsPlatformAdmin  bool
	IsImpersonation  bool
	TenantID         string
	TenantName       string
	UserID           string
	RoleID           string
	RoleName         string
	Permissions      []string
	UserStatus       UserStatus
	BranchScope      BranchScopeMode
	AllowedBranchIDs []string
	IdentityProvider string
}

// TenantLinked reports whether the context is bound to a tenant, either as a
// member or through impersonation.
func (sc *SecurityContext) TenantLinked() bool {
	return sc != nil && sc.TenantID != ""
}

// HasWildcard reports whether the context carries the full-authority wildcard.
func (sc *SecurityContext) HasWildcard() bool {
	return sc != nil && slices.Contains(sc.Permissions, PermissionWildcard)
}

// HasBranchGrant reports whether the branch is in the explicit grant set.
func (sc *SecurityContext) HasBranchGrant(branchID string) bool {
	return sc != nil && slices.Contains(sc.AllowedBranchIDs, branchID)
}
