// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/steepleworks/steeple/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
//
// Authentication failures collapse into a generic 401 regardless of cause so
// responses never distinguish "no such account" from "bad credential". Once
// identity is established, 403 responses carry the specific reason.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrAccountNotLinked),
		errors.Is(err, shared.ErrAccountSuspended),
		errors.Is(err, shared.ErrNoBranchAccess),
		errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrDuplicate), errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
