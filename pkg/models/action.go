// Package models defines the core domain models for the event-sourced workflow engine.
package models

// Action identifies a workflow transition. The set is closed: the reducer
// dispatches exhaustively over these variants and rejects anything else.
type Action string

const (
	ActionStartWorkflow         Action = "start_workflow"
	ActionCompleteStep          Action = "complete_step"
	ActionFailStep              Action = "fail_step"
	ActionApproveGate           Action = "approve_gate"
	ActionRejectGate            Action = "reject_gate"
	ActionPauseWorkflow         Action = "pause_workflow"
	ActionResumeWorkflow        Action = "resume_workflow"
	ActionCancelWorkflow        Action = "cancel_workflow"
	ActionRollbackStep          Action = "rollback_step"
	ActionRetryStep             Action = "retry_step"
	ActionStartChildWorkflow    Action = "start_child_workflow"
	ActionChildWorkflowComplete Action = "child_workflow_complete"
	ActionCreateSnapshot        Action = "create_snapshot"
	ActionAnnotate              Action = "annotate"
)

// AllActions lists every action variant in declaration order.
var AllActions = []Action{
	ActionStartWorkflow,
	ActionCompleteStep,
	ActionFailStep,
	ActionApproveGate,
	ActionRejectGate,
	ActionPauseWorkflow,
	ActionResumeWorkflow,
	ActionCancelWorkflow,
	ActionRollbackStep,
	ActionRetryStep,
	ActionStartChildWorkflow,
	ActionChildWorkflowComplete,
	ActionCreateSnapshot,
	ActionAnnotate,
}

// Valid reports whether a is one of the closed action variants.
func (a Action) Valid() bool {
	switch a {
	case ActionStartWorkflow, ActionCompleteStep, ActionFailStep,
		ActionApproveGate, ActionRejectGate,
		ActionPauseWorkflow, ActionResumeWorkflow, ActionCancelWorkflow,
		ActionRollbackStep, ActionRetryStep,
		ActionStartChildWorkflow, ActionChildWorkflowComplete,
		ActionCreateSnapshot, ActionAnnotate:
		return true
	}

	return false
}

// RequiresStepID reports whether the action is meaningless without a step.
func (a Action) RequiresStepID() bool {
	switch a {
	case ActionCompleteStep, ActionFailStep, ActionApproveGate,
		ActionRejectGate, ActionRollbackStep, ActionRetryStep:
		return true
	}

	return false
}
