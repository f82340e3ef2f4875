package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vantage-kit/vantage/internal/shared"
)

// StatusAccountSuspended is the dedicated status for deactivated accounts,
// distinguishing them from plain 401 authentication failures.
const StatusAccountSuspended = http.StatusLocked

// RespondError maps domain errors to envelope responses.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, shared.ErrDuplicate):
		Fail(w, http.StatusConflict, "duplicate entry")
	case errors.Is(err, shared.ErrValidation):
		Fail(w, http.StatusUnprocessableEntity, "validation failed")
	case errors.Is(err, shared.ErrAccountSuspended):
		respondSuspended(w, r)
	case errors.Is(err, shared.ErrAuthenticationFailed):
		Fail(w, http.StatusUnauthorized, "authentication failed")
	default:
		Fail(w, http.StatusInternalServerError, "internal error")
	}
}

// respondSuspended shapes the AccountSuspended signal per caller type:
// browser navigations get a redirect with a message, API callers the envelope.
func respondSuspended(w http.ResponseWriter, r *http.Request) {
	if prefersHTML(r) {
		http.Redirect(w, r, "/login?notice=suspended", http.StatusSeeOther)
		return
	}
	Fail(w, StatusAccountSuspended, "account suspended")
}

func prefersHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" || strings.Contains(accept, "application/json") {
		return false
	}
	return strings.Contains(accept, "text/html")
}
