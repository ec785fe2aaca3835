// Package engine orchestrates the event-sourced workflow core: it validates
// transitions, signs and appends events, maintains snapshots and metadata,
// gates risky steps on human approval, and answers replay and time-travel
// queries. It is the only component with side effects; all state math lives
// in the pure reducer.
package engine

import (
	"errors"
	"fmt"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// ValidationError reports an action that is illegal given the workflow's
// current status. It is returned synchronously and never retried internally.
type ValidationError struct {
	WorkflowID string
	Action     models.Action
	Status     models.WorkflowStatus
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("illegal action %s on workflow %s (status %s): %s", e.Action, e.WorkflowID, e.Status, e.Reason)
}

// IsValidationError checks whether err is a transition validation failure.
func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// RetryExhaustedError indicates a step failed after its final retry attempt.
// The step stays permanently failed until an explicit rollback_step or
// cancel_workflow; exhaustion is never auto-escalated into cancellation.
type RetryExhaustedError struct {
	WorkflowID string
	StepID     string
	Attempts   int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("step %s of workflow %s failed after %d retry attempts", e.StepID, e.WorkflowID, e.Attempts)
}

// IsRetryExhausted checks whether err reports exhausted retries.
func IsRetryExhausted(err error) bool {
	var exhaustedErr *RetryExhaustedError

	return errors.As(err, &exhaustedErr)
}

// ErrChainTooDeep indicates a parent chain exceeded the traversal depth
// bound, which means a cycle or a corrupted parent reference.
var ErrChainTooDeep = errors.New("parent workflow chain exceeds depth bound")

// ErrWorkflowNotFound indicates a workflow with no history at all: no events,
// hot or archived, and no snapshot.
var ErrWorkflowNotFound = errors.New("workflow not found")

// allowedStatuses declares, per action, the workflow statuses the action may
// be emitted from. Annotations and snapshot markers are legal everywhere,
// including terminal states, so cancellation cleanup stays auditable.
var allowedStatuses = map[models.Action][]models.WorkflowStatus{
	models.ActionStartWorkflow:  {models.WorkflowStatusPending},
	models.ActionCompleteStep:   {models.WorkflowStatusRunning},
	models.ActionFailStep:       {models.WorkflowStatusRunning},
	models.ActionApproveGate:    {models.WorkflowStatusRunning, models.WorkflowStatusPaused},
	models.ActionRejectGate:     {models.WorkflowStatusRunning, models.WorkflowStatusPaused},
	models.ActionPauseWorkflow:  {models.WorkflowStatusRunning},
	models.ActionResumeWorkflow: {models.WorkflowStatusPaused},
	models.ActionCancelWorkflow: {models.WorkflowStatusPending, models.WorkflowStatusRunning, models.WorkflowStatusPaused},
	models.ActionRollbackStep:   {models.WorkflowStatusRunning, models.WorkflowStatusFailed, models.WorkflowStatusCompleted},
	models.ActionRetryStep:      {models.WorkflowStatusRunning, models.WorkflowStatusFailed},
	models.ActionStartChildWorkflow: {models.WorkflowStatusRunning},
	models.ActionChildWorkflowComplete: {
		models.WorkflowStatusRunning, models.WorkflowStatusPaused,
	},
}

// validateTransition rejects illegal actions before they reach the reducer.
func validateTransition(workflowID string, status models.WorkflowStatus, action models.Action) error {
	allowed, restricted := allowedStatuses[action]
	if !restricted {
		// create_snapshot and annotate are unrestricted.
		return nil
	}

	for _, s := range allowed {
		if s == status {
			return nil
		}
	}

	return &ValidationError{
		WorkflowID: workflowID,
		Action:     action,
		Status:     status,
		Reason:     "action not allowed in current status",
	}
}
