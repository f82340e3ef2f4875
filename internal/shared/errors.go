package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrAuthenticationFailed indicates bad, expired or revoked credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAccountSuspended indicates an authenticated but deactivated account.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrValidation indicates request validation failure.
	ErrValidation = errors.New("validation failed")
)
