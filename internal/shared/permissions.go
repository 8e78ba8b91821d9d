package shared

// Fixed permission catalog. Role permission sets are drawn from this list;
// anything outside it is rejected at role create/update time.
const (
	PermMembersView = "members.view"
	PermMembersEdit = "members.edit"

	PermGivingView = "giving.view"
	PermGivingEdit = "giving.edit"

	PermEventsView = "events.view"
	PermEventsEdit = "events.edit"

	PermBranchesView = "branches.view"
	PermBranchesEdit = "branches.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermSettingsEdit = "settings.edit"

	PermAuditView = "audit.view"
)

// PermissionCatalog lists every assignable permission.
func PermissionCatalog() []string {
	return []string{
		PermMembersView,
		PermMembersEdit,
		PermGivingView,
		PermGivingEdit,
		PermEventsView,
		PermEventsEdit,
		PermBranchesView,
		PermBranchesEdit,
		PermRolesView,
		PermRolesEdit,
		PermUsersView,
		PermUsersEdit,
		PermSettingsEdit,
		PermAuditView,
	}
}

// KnownPermission reports whether p is in the catalog. The wildcard is not an
// assignable catalog entry; it is reserved for impersonation sessions.
func KnownPermission(p string) bool {
	for _, known := range PermissionCatalog() {
		if known == p {
			return true
		}
	}
	return false
}
