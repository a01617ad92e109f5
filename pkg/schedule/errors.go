package schedule

import "fmt"

// ValidationError reports a structurally invalid request. It is raised
// before any store access, so stored state is untouched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConflictError reports that a volunteer already holds a commitment at
// another pantry on the same date. Not retryable until the volunteer is
// removed from the blocking pantry's schedule.
type ConflictError struct {
	Username   string
	Date       string
	PantryID   uint
	PantryName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already scheduled at %s on %s", e.Username, e.PantryName, e.Date)
}

// NotFoundError reports an unknown pantry.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// StoreError wraps a persistence failure. Saves are idempotent for
// unchanged payloads, so callers may safely retry.
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
