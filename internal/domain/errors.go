package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed caller input such as an unknown activity type.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks an attempt to start a second activity for the same user and chat.
	ErrConflict = errors.New("activity already in progress")
	// ErrNotFound marks a completion request with no ongoing activity.
	ErrNotFound = errors.New("no ongoing activity")
	// ErrInfrastructure marks a ledger failure.
	ErrInfrastructure = errors.New("ledger failure")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError carries the activity that is already running. Existing is
// zero when concurrent starts kept the slot contended.
type ConflictError struct {
	Existing       OngoingActivity
	ElapsedSeconds int64
}

func (e *ConflictError) Error() string {
	if e.Existing.ID == "" {
		return "activity start contended by concurrent requests, retry"
	}
	return fmt.Sprintf("activity %q already in progress for %ds", e.Existing.ActivityType, e.ElapsedSeconds)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError names the key that had no ongoing activity.
type NotFoundError struct {
	UserID int64
	ChatID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no ongoing activity for user %d in chat %d", e.UserID, e.ChatID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InfrastructureError wraps a ledger error with the operation that failed.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Is(target error) bool { return target == ErrInfrastructure }

func (e *InfrastructureError) Unwrap() error { return e.Err }

func infra(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}
