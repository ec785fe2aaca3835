// Package reducer implements the pure state transition function of the
// workflow engine. Apply never mutates its arguments, performs no I/O, and is
// fully deterministic: identical inputs always yield deep-equal outputs.
package reducer

import (
	"errors"
	"fmt"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// ErrUnknownAction is returned when an event carries an action outside the
// closed variant set. It signals a corrupted or incompatible log, not a
// business error.
var ErrUnknownAction = errors.New("unknown action")

// Apply folds one event into state and returns the successor state. The input
// state is cloned first; callers keep full ownership of their arguments.
//
// Transition legality (e.g. no complete_step on a cancelled workflow) is the
// engine's responsibility and is checked before an event is ever appended.
// By the time an event reaches Apply it is part of the immutable log, so
// Apply replays it mechanically and deterministically.
func Apply(state *models.WorkflowState, event *models.WorkflowEvent) (*models.WorkflowState, error) {
	next := state.Clone()

	switch event.Action {
	case models.ActionStartWorkflow:
		applyStartWorkflow(next, event)
	case models.ActionCompleteStep:
		applyCompleteStep(next, event)
	case models.ActionFailStep:
		next.Status = models.WorkflowStatusFailed
		next.LastError = stringField(event.Data, "error")
	case models.ActionApproveGate:
		next.Approvals[event.StepID] = decisionFromEvent(event, "approved")
	case models.ActionRejectGate:
		applyRejectGate(next, event)
	case models.ActionPauseWorkflow:
		next.Status = models.WorkflowStatusPaused
	case models.ActionResumeWorkflow:
		next.Status = models.WorkflowStatusRunning
	case models.ActionCancelWorkflow:
		next.Status = models.WorkflowStatusCancelled
		next.CancelReason = stringField(event.Data, "reason")
		next.CancelledBy = stringField(event.Data, "cancelled_by")
	case models.ActionRollbackStep:
		applyRollbackStep(next, event)
	case models.ActionRetryStep:
		applyRetryStep(next, event)
	case models.ActionStartChildWorkflow:
		applyStartChild(next, event)
	case models.ActionChildWorkflowComplete:
		applyChildComplete(next, event)
	case models.ActionCreateSnapshot:
		// Checkpoint boundary: bookkeeping only, business state untouched.
		next.SnapshotCount++
	case models.ActionAnnotate:
		next.Annotations = append(next.Annotations, models.Annotation{
			EventID: stringField(event.Data, "event_id"),
			Comment: stringField(event.Data, "comment"),
			Author:  stringField(event.Data, "author"),
			At:      event.Timestamp,
		})
	default:
		return nil, fmt.Errorf("%w: %q on workflow %s", ErrUnknownAction, event.Action, event.WorkflowID)
	}

	return next, nil
}

// Replay folds a sequence of ordered events into state.
func Replay(state *models.WorkflowState, events []*models.WorkflowEvent) (*models.WorkflowState, error) {
	current := state

	for _, event := range events {
		next, err := Apply(current, event)
		if err != nil {
			return nil, fmt.Errorf("replay of workflow %s stopped at event %s: %w", event.WorkflowID, event.ID, err)
		}

		current = next
	}

	return current, nil
}

func applyStartWorkflow(state *models.WorkflowState, event *models.WorkflowEvent) {
	state.Status = models.WorkflowStatusRunning
	state.Template = stringField(event.Data, "template")
	state.CurrentStep = stringField(event.Data, "first_step")
	state.ParentWorkflowID = event.ParentWorkflowID

	if context, ok := event.Data["context"].(map[string]any); ok {
		state.Context = context
	}
}

func applyCompleteStep(state *models.WorkflowState, event *models.WorkflowEvent) {
	completed := false

	for _, step := range state.StepsCompleted {
		if step == event.StepID {
			completed = true

			break
		}
	}

	if !completed {
		state.StepsCompleted = append(state.StepsCompleted, event.StepID)
	}

	if result, ok := event.Data["result"].(map[string]any); ok {
		output := state.Outputs[event.StepID]
		if output == nil {
			output = make(map[string]any, len(result))
		}

		for key, value := range result {
			output[key] = value
		}

		state.Outputs[event.StepID] = output
	}

	state.CurrentStep = stringField(event.Data, "next_step")

	// A workflow without a next step finishes once no children are pending.
	if state.CurrentStep == "" && len(state.PendingChildren) == 0 {
		state.Status = models.WorkflowStatusCompleted
	}
}

func applyRejectGate(state *models.WorkflowState, event *models.WorkflowEvent) {
	decision := decisionFromEvent(event, "rejected")
	if expired, ok := event.Data["expired"].(bool); ok {
		decision.Expired = expired
	}

	state.Approvals[event.StepID] = decision

	// The rejection path is explicit per workflow template, never guessed.
	switch stringField(event.Data, "on_reject") {
	case "cancelled":
		state.Status = models.WorkflowStatusCancelled
		state.CancelReason = "gate rejected for step " + event.StepID
	default:
		state.Status = models.WorkflowStatusFailed
		state.LastError = "gate rejected for step " + event.StepID
	}
}

func applyRollbackStep(state *models.WorkflowState, event *models.WorkflowEvent) {
	remaining := state.StepsCompleted[:0]

	for _, step := range state.StepsCompleted {
		if step != event.StepID {
			remaining = append(remaining, step)
		}
	}

	state.StepsCompleted = remaining
	delete(state.Outputs, event.StepID)
	delete(state.Retries, event.StepID)

	state.CurrentStep = event.StepID
	state.Status = models.WorkflowStatusRunning
	state.LastError = ""
}

func applyRetryStep(state *models.WorkflowState, event *models.WorkflowEvent) {
	if state.Retries == nil {
		state.Retries = make(map[string]models.StepRetry)
	}

	state.Retries[event.StepID] = models.StepRetry{
		Attempts:   intField(event.Data, "retry_attempt"),
		MaxRetries: intField(event.Data, "max_retries"),
		BackoffMs:  int64(intField(event.Data, "backoff_ms")),
	}

	state.CurrentStep = event.StepID
	state.Status = models.WorkflowStatusRunning
	state.LastError = ""
}

func applyStartChild(state *models.WorkflowState, event *models.WorkflowEvent) {
	if state.PendingChildren == nil {
		state.PendingChildren = make(map[string]bool)
	}

	state.PendingChildren[stringField(event.Data, "child_workflow_id")] = true
}

func applyChildComplete(state *models.WorkflowState, event *models.WorkflowEvent) {
	childID := stringField(event.Data, "child_workflow_id")
	delete(state.PendingChildren, childID)

	if result, ok := event.Data["result"].(map[string]any); ok {
		state.Outputs[childID] = result
	}

	// Completion may have been gated on this child.
	if state.Status == models.WorkflowStatusRunning && state.CurrentStep == "" && len(state.PendingChildren) == 0 {
		state.Status = models.WorkflowStatusCompleted
	}
}

func decisionFromEvent(event *models.WorkflowEvent, decision string) models.ApprovalDecision {
	return models.ApprovalDecision{
		Decision:      decision,
		ApproverID:    stringField(event.Data, "approver_id"),
		ApproverRole:  stringField(event.Data, "approver_role"),
		Justification: stringField(event.Data, "justification"),
		DecidedAt:     event.Timestamp,
	}
}

func stringField(data map[string]any, key string) string {
	value, _ := data[key].(string)

	return value
}

// intField tolerates both native ints and the float64 produced by JSON
// round-trips.
func intField(data map[string]any, key string) int {
	switch value := data[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	}

	return 0
}
