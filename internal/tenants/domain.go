// Package tenants manages customer organizations, the outermost isolation
// boundary of the platform.
package tenants

import "time"

// Plans a tenant can subscribe to.
const (
	PlanFree     = "FREE"
	PlanStandard = "STANDARD"
	PlanPremium  = "PREMIUM"
)

// Lifecycle statuses.
const (
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
	StatusCancelled = "CANCELLED"
)

// Tenant is one customer organization.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidPlan reports whether the plan value is known.
func ValidPlan(plan string) bool {
	switch plan {
	case PlanFree, PlanStandard, PlanPremium:
		return true
	}
	return false
}

// ValidStatus reports whether the status value is known.
func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}
