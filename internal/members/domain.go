// Package members is the representative branch-scoped record module. Every
// operation resolves its branch filter through the scope package and
// re-checks branch tenancy before touching rows.
package members

import "time"

// Member is a person record attached to one branch of a tenant.
type Member struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	BranchID  string    `json:"branch_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
