// Package audit appends immutable records of privileged state changes.
package audit

import "time"

// Actions recorded by the platform. Every privileged mutation produces
// exactly one entry with before/after values in Details.
const (
	ActionTenantCreate       = "tenant.create"
	ActionTenantPlanChange   = "tenant.plan_change"
	ActionTenantStatusChange = "tenant.status_change"

	ActionImpersonationStart = "impersonation.start"
	ActionImpersonationEnd   = "impersonation.end"

	ActionRoleCreate = "role.create"
	ActionRoleUpdate = "role.update"
	ActionRoleDelete = "role.delete"

	ActionBranchCreate    = "branch.create"
	ActionBranchUpdate    = "branch.update"
	ActionBranchArchive   = "branch.archive"
	ActionBranchUnarchive = "branch.unarchive"

	ActionUserInvite       = "user.invite"
	ActionUserStatusChange = "user.status_change"
	ActionUserRoleChange   = "user.role_change"
	ActionUserScopeChange  = "user.scope_change"

	ActionMemberCreate = "member.create"
	ActionMemberUpdate = "member.update"
	ActionMemberDelete = "member.delete"
)

// Entry is one append-only audit record. TenantID is empty for
// platform-scope events. Entries are never updated or deleted.
type Entry struct {
	ID         string
	TenantID   string
	Action     string
	Resource   string
	Details    map[string]any
	ActorEmail string
	CreatedAt  time.Time
}

// TimelineFilters narrows a timeline query.
type TimelineFilters struct {
	TenantID string
	Actor    string
	Action   string
	Resource string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo describes the window a timeline call returned.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}
