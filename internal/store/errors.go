package store

import (
	"errors"
	"fmt"
)

// Failure classes. Public operations never return these; they are attached
// to events and exposed through LastError.
var (
	ErrMutation    = errors.New("mutation failed")
	ErrPersistence = errors.New("persistence failed")
	ErrRecovery    = errors.New("recovery failed")
	ErrInactive    = errors.New("store is not active")
)

// OpError describes a failed store operation.
type OpError struct {
	// Op is the public operation that failed (add, update, save, ...).
	Op string

	// SessionID identifies the affected record, if any.
	SessionID string

	// Kind is one of the failure class sentinels.
	Kind error

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s (session=%s): %v", e.Op, e.Kind, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the failure class and the cause to errors.Is/As.
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
