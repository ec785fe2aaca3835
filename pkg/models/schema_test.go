package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Valid(t *testing.T) {
	for _, action := range AllActions {
		assert.True(t, action.Valid(), "action %s", action)
	}

	assert.False(t, Action("launch_missiles").Valid())
	assert.False(t, Action("").Valid())
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		data    map[string]any
		wantErr bool
	}{
		{
			name:   "start_workflow with first_step",
			action: ActionStartWorkflow,
			data:   map[string]any{"first_step": "build", "context": map[string]any{"env": "prod"}},
		},
		{
			name:    "start_workflow missing first_step",
			action:  ActionStartWorkflow,
			data:    map[string]any{"template": "deploy"},
			wantErr: true,
		},
		{
			name:    "fail_step requires error",
			action:  ActionFailStep,
			data:    map[string]any{},
			wantErr: true,
		},
		{
			name:   "fail_step with error",
			action: ActionFailStep,
			data:   map[string]any{"error": "timeout"},
		},
		{
			name:    "cancel_workflow requires reason",
			action:  ActionCancelWorkflow,
			data:    map[string]any{"cancelled_by": "alice"},
			wantErr: true,
		},
		{
			name:    "retry_step requires attempt",
			action:  ActionRetryStep,
			data:    map[string]any{"backoff_ms": 1000},
			wantErr: true,
		},
		{
			name:   "retry_step with attempt",
			action: ActionRetryStep,
			data:   map[string]any{"retry_attempt": 2, "max_retries": 3, "backoff_ms": 2000},
		},
		{
			name:    "reject_gate rejects unknown on_reject",
			action:  ActionRejectGate,
			data:    map[string]any{"on_reject": "explode"},
			wantErr: true,
		},
		{
			name:   "reject_gate accepts cancelled route",
			action: ActionRejectGate,
			data:   map[string]any{"on_reject": "cancelled"},
		},
		{
			name:    "annotate requires comment",
			action:  ActionAnnotate,
			data:    map[string]any{"author": "alice"},
			wantErr: true,
		},
		{
			name:   "complete_step with empty payload",
			action: ActionCompleteStep,
			data:   map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.action, tt.data)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestWorkflowState_CloneIsDeep(t *testing.T) {
	state := NewWorkflowState("wf-1")
	state.Context = map[string]any{"environment": "prod"}
	state.Outputs["build"] = map[string]any{"artifact": "svc-1.0.0"}
	state.StepsCompleted = []string{"build"}

	clone := state.Clone()
	clone.Context["environment"] = "staging"
	clone.Outputs["build"]["artifact"] = "svc-9.9.9"
	clone.StepsCompleted[0] = "other"

	assert.Equal(t, "prod", state.Context["environment"])
	assert.Equal(t, "svc-1.0.0", state.Outputs["build"]["artifact"])
	assert.Equal(t, "build", state.StepsCompleted[0])
}

func TestWorkflowEvent_CloneIsDeep(t *testing.T) {
	event := NewWorkflowEvent("wf-1", ActionCompleteStep, "build", map[string]any{
		"result": map[string]any{"artifact": "svc-1.0.0"},
	})

	clone := event.Clone()
	clone.Data["result"].(map[string]any)["artifact"] = "svc-9.9.9"

	assert.Equal(t, "svc-1.0.0", event.Data["result"].(map[string]any)["artifact"])
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, WorkflowStatusPending.Terminal())
	assert.False(t, WorkflowStatusRunning.Terminal())
	assert.False(t, WorkflowStatusPaused.Terminal())
	assert.True(t, WorkflowStatusCompleted.Terminal())
	assert.True(t, WorkflowStatusFailed.Terminal())
	assert.True(t, WorkflowStatusCancelled.Terminal())

	assert.False(t, ApprovalStatusPending.Terminal())
	assert.True(t, ApprovalStatusApproved.Terminal())
	assert.True(t, ApprovalStatusExpired.Terminal())
}
