package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// InvalidStateError is returned when an operation violates the program or
// task state machine.
type InvalidStateError struct {
	Entity string
	ID     string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %q in state %q", e.Op, e.Entity, e.ID, e.State)
}

// ConflictError is returned when an optimistic-concurrency version check
// fails and the retry budget is exhausted.
type ConflictError struct {
	Entity  string
	ID      string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent update on %s %q (expected version %d)", e.Entity, e.ID, e.Version)
}

// RepositoryError wraps an underlying storage failure. It is propagated as-is;
// retry policy belongs to the caller.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}
