package subscription

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no subscription exists for an id
var ErrNotFound = errors.New("subscription not found")

// ErrDuplicate is returned by Repository.Create when a requested or active
// subscription already holds the (organization, endpoint) pair. Stores must
// enforce this atomically.
var ErrDuplicate = errors.New("subscription already exists for organization and endpoint")

// ValidationError reports a malformed or missing input field
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError reports a duplicate subscription for an (organization, endpoint) pair
type ConflictError struct {
	OrganizationID string
	Endpoint       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("subscription for organization %s and endpoint %s already exists", e.OrganizationID, e.Endpoint)
}

// StoreError wraps a persistence failure with the operation that caused it
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
