package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across modules. Handlers map these onto HTTP
// statuses via platform/httpx.
var (
	// ErrValidation indicates caller-supplied data failed a check. Never
	// retried automatically.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConsistency indicates a broken internal invariant (duplicate or
	// gapped position). The enclosing transaction must be rolled back.
	ErrConsistency = errors.New("consistency violation")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden indicates the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Validationf wraps ErrValidation with a specific reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Consistencyf wraps ErrConsistency with a specific reason.
func Consistencyf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConsistency}, args...)...)
}
