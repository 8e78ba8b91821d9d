package shared

import "errors"

// Authorization and validation failures are never retried and never silently
// downgraded; domain handlers propagate them untouched so the HTTP layer can
// map them consistently. Authentication failures stay deliberately generic to
// avoid account enumeration; authorization failures may name the missing
// permission or branch once identity is established.
var (
	// ErrUnauthenticated covers missing, invalid and expired credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAccountNotLinked means the verified identity has no tenant user.
	ErrAccountNotLinked = errors.New("account is not linked to an organization")
	// ErrAccountSuspended means the linked user is suspended.
	ErrAccountSuspended = errors.New("account is suspended")
	// ErrNoBranchAccess means a restricted user has an empty grant set.
	ErrNoBranchAccess = errors.New("no branch access assigned")
	// ErrForbidden indicates a permission or branch-scope denial.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates a rejected request payload or state transition.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a name-uniqueness violation.
	ErrDuplicate = errors.New("duplicate name")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)
