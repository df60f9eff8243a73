// Package domain defines the core progression entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every engine component. Typed errors below unwrap
// to these sentinels so callers can branch with errors.Is.
var (
	// ErrValidation is returned when an input fails validation
	// (malformed grade, malformed rubric score, bad session outcome).
	ErrValidation = errors.New("validation failed")

	// ErrOwnership is returned when a card or profile does not belong to the caller.
	ErrOwnership = errors.New("ownership violation")

	// ErrNotFound is returned when a referenced entity (usually a content id) is missing.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is returned when the profile store cannot be read or written.
	ErrPersistence = errors.New("persistence failure")

	// ErrStateConflict is returned for an illegal state transition.
	ErrStateConflict = errors.New("state conflict")
)

// ValidationError describes which field failed validation and why.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError. If err is nil, ErrValidation is wrapped.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports ErrValidation for every ValidationError, whatever it wraps.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// OwnershipError is returned when Resource is not owned by the acting learner.
type OwnershipError struct {
	Resource string
	ID       string
}

// Error implements the error interface.
func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s %s is not owned by the current learner", e.Resource, e.ID)
}

// Unwrap returns ErrOwnership.
func (e *OwnershipError) Unwrap() error {
	return ErrOwnership
}

// NotFoundError is returned when an entity referenced by id does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// PersistenceError wraps a profile store failure. It is kept distinct from
// computation errors so a caller can retry saving without re-grading.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("could not %s progress: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports ErrPersistence for every PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// StateConflictError is returned when Action is not allowed from state From.
type StateConflictError struct {
	Entity string
	From   string
	Action string
}

// Error implements the error interface.
func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %q", e.Action, e.Entity, e.From)
}

// Unwrap returns ErrStateConflict.
func (e *StateConflictError) Unwrap() error {
	return ErrStateConflict
}
