// Package rbac enforces role permissions against handler requirements.
package rbac

import (
	"fmt"
	"strings"

	"github.com/steepleworks/steeple/internal/shared"
)

// Authorize checks the context against a handler's declared permission set.
// An empty requirement always passes. The wildcard passes everything. There
// is no hierarchy between permissions; the rule is plain set containment,
// evaluated fresh on every call.
func Authorize(sc *shared.SecurityContext, required ...string) error {
	if len(required) == 0 {
		return nil
	}
	if sc == nil {
		return shared.ErrUnauthenticated
	}
	if sc.IsPlatformAdmin {
		// Platform operators never act inside a tenant directly; they must
		// impersonate. Rejecting here is the tenant-isolation guarantee.
		return fmt.Errorf("%w: platform administrators must impersonate a tenant", shared.ErrForbidden)
	}
	if sc.HasWildcard() {
		return nil
	}
	granted := make(map[string]struct{}, len(sc.Permissions))
	for _, p := range sc.Permissions {
		granted[strings.ToLower(p)] = struct{}{}
	}
	for _, req := range normalize(required) {
		if _, ok := granted[req]; !ok {
			return fmt.Errorf("%w: missing permission %s", shared.ErrForbidden, req)
		}
	}
	return nil
}

func normalize(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
