package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error unwraps to exactly one of these so callers can branch
// on the category with errors.Is without knowing the concrete error.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("resource not found")
	ErrStateConflict = errors.New("state conflict")
	ErrStorage       = errors.New("storage failure")
)

// Generic domain errors
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrUserNotFound      = newNotFoundError("user not found")
	ErrActorRequired     = newValidationError("acting user is required")
	ErrInvalidTransition = newStateConflictError("status transition not allowed")
)

// kindError is a domain error tagged with its category
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

func newValidationError(msg string) error {
	return &kindError{kind: ErrValidation, msg: msg}
}

func newNotFoundError(msg string) error {
	return &kindError{kind: ErrNotFound, msg: msg}
}

func newStateConflictError(msg string) error {
	return &kindError{kind: ErrStateConflict, msg: msg}
}

// StorageError wraps an infrastructure failure so it matches ErrStorage while keeping the
// original error reachable. Errors that already carry a domain kind pass through unchanged.
func StorageError(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// IsDomainError reports whether err belongs to one of the domain error kinds
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrStorage)
}
