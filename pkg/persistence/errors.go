// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrSequenceConflict indicates an append with a stale expected-sequence
	// precondition. The caller must reload state and retry.
	ErrSequenceConflict = errors.New("event sequence conflict")

	// ErrEventNotFound indicates an event was not found by the given identifier.
	ErrEventNotFound = errors.New("event not found")

	// ErrApprovalNotFound indicates an approval request was not found.
	ErrApprovalNotFound = errors.New("approval request not found")

	// ErrSnapshotNotFound indicates a snapshot was not found by the given identifier.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// EventError wraps event-log errors with operational context.
type EventError struct {
	Op         string // Operation being performed (e.g., "Append", "ListEvents")
	WorkflowID string
	EventID    string
	Err        error
}

func (e *EventError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s operation failed for event %s in workflow %s: %v", e.Op, e.EventID, e.WorkflowID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for event errors.
func (e *EventError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEventError creates a new event error with context.
func NewEventError(op, workflowID, eventID string, err error) *EventError {
	return &EventError{
		Op:         op,
		WorkflowID: workflowID,
		EventID:    eventID,
		Err:        err,
	}
}

// ApprovalError wraps approval-store errors with operational context.
type ApprovalError struct {
	Op         string
	ApprovalID string
	Err        error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("%s operation failed for approval %s: %v", e.Op, e.ApprovalID, e.Err)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}

func (e *ApprovalError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsSequenceConflict checks if an error indicates a stale append precondition.
func IsSequenceConflict(err error) bool {
	return errors.Is(err, ErrSequenceConflict)
}

// IsEventNotFound checks if an error indicates a missing event.
func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// IsApprovalNotFound checks if an error indicates a missing approval request.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}
