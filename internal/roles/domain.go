// Package roles manages per-tenant roles and their permission sets.
package roles

import (
	"time"

	"github.com/steepleworks/steeple/internal/shared"
)

// System role names seeded for every tenant.
const (
	RoleOwner  = "Owner"
	RoleAdmin  = "Admin"
	RoleStaff  = "Staff"
	RoleViewer = "Viewer"
)

// Role belongs to exactly one tenant. Names are unique per tenant,
// case-insensitively. System roles cannot be deleted or renamed.
type Role struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Template is a seeded system role definition.
type Template struct {
	Name        string
	Permissions []string
}

// SystemTemplates returns the four seeded roles with their fixed
// permission sets.
func SystemTemplates() []Template {
	return []Template{
		{Name: RoleOwner, Permissions: shared.PermissionCatalog()},
		{Name: RoleAdmin, Permissions: []string{
			shared.PermMembersView, shared.PermMembersEdit,
			shared.PermGivingView, shared.PermGivingEdit,
			shared.PermEventsView, shared.PermEventsEdit,
			shared.PermBranchesView, shared.PermBranchesEdit,
			shared.PermRolesView, shared.PermRolesEdit,
			shared.PermUsersView, shared.PermUsersEdit,
			shared.PermAuditView,
		}},
		{Name: RoleStaff, Permissions: []string{
			shared.PermMembersView, shared.PermMembersEdit,
			shared.PermGivingView,
			shared.PermEventsView, shared.PermEventsEdit,
			shared.PermBranchesView,
		}},
		{Name: RoleViewer, Permissions: []string{
			shared.PermMembersView,
			shared.PermGivingView,
			shared.PermEventsView,
			shared.PermBranchesView,
		}},
	}
}
