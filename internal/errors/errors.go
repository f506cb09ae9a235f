// Package errors defines the coordination error taxonomy and its mapping to
// HTTP responses.
package errors

import "fmt"

// Conflict reasons.
const (
	ReasonAlreadyLocked = "already-locked"
	ReasonHolderBusy    = "holder-busy"
	ReasonLockRequired  = "lock-required"
)

// NotFound reasons.
const (
	ReasonNotInAvailable = "not-in-available"
	ReasonEditNotFound   = "edit-not-found"
	ReasonNotInReview    = "not-in-review"
)

// ConflictError reports lock contention. Recoverable: the caller retries or
// picks another record.
type ConflictError struct {
	Reason  string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict (%s): %s", e.Reason, e.Message)
}

// NewConflict creates a ConflictError with the given reason.
func NewConflict(reason, message string) *ConflictError {
	return &ConflictError{Reason: reason, Message: message}
}

// NotFoundError reports that a referenced record or edit is absent from the
// expected partition. The caller must refresh state; it may indicate a race.
type NotFoundError struct {
	Reason  string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found (%s): %s", e.Reason, e.Message)
}

// NewNotFound creates a NotFoundError with the given reason.
func NewNotFound(reason, message string) *NotFoundError {
	return &NotFoundError{Reason: reason, Message: message}
}

// UnauthorizedError reports missing or invalid credentials. Terminal for the
// request.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }
