package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("ledger: payment not found")
	ErrMemberNotFound = errors.New("ledger: member not found")
	// ErrTenantMismatch means the resource exists but under another tenant.
	// Callers must not learn anything more than "forbidden" from it.
	ErrTenantMismatch = errors.New("ledger: resource does not belong to tenant")
	// ErrVersionConflict means the row changed since the caller read it.
	// Re-read and resubmit with the current version.
	ErrVersionConflict = errors.New("ledger: payment was modified concurrently")
	// ErrAlreadyCorrected is final: a payment can be corrected only once.
	ErrAlreadyCorrected = errors.New("ledger: payment has already been corrected")
)

// ValidationError represents malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMemberNotFound)
}

// IsConflict returns true for both ways a correction can lose: a stale
// version or a payment that is already final.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrAlreadyCorrected)
}

// IsValidation returns true if err wraps a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
