// Package users manages tenant members: invitations, status, role
// assignment and branch scoping.
package users

import (
	"time"

	"github.com/steepleworks/steeple/internal/shared"
)

// User is a tenant member. Branch grants are meaningful only under the
// RESTRICTED scope mode; a restricted user holds at least one grant at all
// times and the default branch, if set, belongs to the grant set.
type User struct {
	ID              string                 `json:"id"`
	TenantID        string                 `json:"tenant_id"`
	Email           string                 `json:"email"`
	Status          shared.UserStatus      `json:"status"`
	RoleID          string                 `json:"role_id"`
	RoleName        string                 `json:"role_name"`
	BranchScope     shared.BranchScopeMode `json:"branch_scope"`
	DefaultBranchID string                 `json:"default_branch_id,omitempty"`
	BranchGrants    []string               `json:"branch_grants,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ValidStatus reports whether the status value is known.
func ValidStatus(status shared.UserStatus) bool {
	switch status {
	case shared.StatusInvited, shared.StatusActive, shared.StatusSuspended:
		return true
	}
	return false
}
