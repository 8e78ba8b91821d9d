// Package branches manages a tenant's physical locations and their
// lifecycle. Branch ids are the unit of data scoping for restricted users.
package branches

import "time"

// Branch is a tenant location. Names are unique among active branches of a
// tenant, case-insensitively. Archived branches keep their name and may be
// reactivated later.
type Branch struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
