// Package shared defines sentinel errors and small helpers used across
// the intake service. Callers should use errors.Is to match these values.
package shared

import (
	"errors"
	"fmt"
)

var (

	// common errors
	ErrorNotFound = errors.New("not found")
	ErrorInternal = errors.New("internal error")

	// auth-specific errors
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorInvalidToken  = errors.New("invalid token")
	ErrorTokenExpired  = errors.New("token expired")
	ErrorNoSellerID    = errors.New("no seller id")
	ErrorInvalidBearer = errors.New("invalid authorization header format")

	// validation errors (user-fixable; wrap with FieldError for specifics)
	ErrorValidation = errors.New("validation error")

	// listing-specific errors
	ErrorDuplicateListing = errors.New("vehicle already listed")
	ErrorNoValuation      = errors.New("no valuation payload for session")

	// draft persistence errors
	ErrorTransientIO     = errors.New("temporary storage failure")
	ErrorSessionNotFound = errors.New("session not found")

	// submission errors
	ErrorSubmissionTimeout = errors.New("submission is taking longer than expected")

	// collaborator configuration errors
	ErrorConfiguration    = errors.New("configuration error")
	ErrorBucketMissing    = errors.New("storage bucket not found")
	ErrorStorageForbidden = errors.New("storage permission denied")
)

// FieldError is a validation failure tied to a specific form or valuation
// field, so the caller can route the user back to the right step instead of
// showing a generic error. It matches ErrorValidation under errors.Is.
type FieldError struct {
	Field  string
	Reason string
	// Hint suggests the corrective action, e.g. "return to valuation step".
	Hint string
}

func (e *FieldError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Field, e.Reason, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrorValidation
}

// NewFieldError builds a FieldError for a missing or invalid field.
func NewFieldError(field, reason, hint string) *FieldError {
	return &FieldError{Field: field, Reason: reason, Hint: hint}
}
