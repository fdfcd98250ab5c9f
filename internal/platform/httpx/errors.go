package httpx

import (
	"errors"
	"net/http"

	"github.com/examdesk/examdesk/internal/shared"
)

// RespondError maps domain errors to HTTP responses. Authorization failures
// surface their taxonomy message; unexpected faults get a generic body so the
// caller never learns whether permission data leaked into the failure.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Fail(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, shared.ErrAccountSuspended):
		Fail(w, http.StatusForbidden, "account suspended")
	case errors.Is(err, shared.ErrTokenMissing), errors.Is(err, shared.ErrTokenInvalid), errors.Is(err, shared.ErrUnauthorized):
		Fail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Fail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, shared.ErrRoleInUse):
		Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrDuplicateEmail), errors.Is(err, shared.ErrDuplicateRole):
		Fail(w, http.StatusConflict, err.Error())
	default:
		Fail(w, http.StatusInternalServerError, "internal error")
	}
}
