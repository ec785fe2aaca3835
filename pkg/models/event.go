package models

import (
	"time"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is stamped on every newly created event. Replay code
// must keep understanding older versions forever.
const CurrentSchemaVersion = 1

// WorkflowEvent is the unit of record. Once appended it is immutable: the
// archival job may relocate an event to cold storage but never rewrites it.
//
// Sequence is assigned by the engine and is strictly monotonic (1-based)
// within a workflow; it, not the timestamp, is the ordering authority under
// high-frequency writes. Signature is a hex HMAC over all other fields.
type WorkflowEvent struct {
	ID               string         `json:"event_id"`
	WorkflowID       string         `json:"workflow_id"           validate:"required"`
	ParentWorkflowID string         `json:"parent_workflow_id,omitempty"`
	Sequence         int64          `json:"sequence"`
	Action           Action         `json:"action"                validate:"required"`
	StepID           string         `json:"step_id,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	SchemaVersion    int            `json:"schema_version"`
	Signature        string         `json:"signature,omitempty"`
}

// NewWorkflowEvent creates an unsigned, unsequenced event. The engine assigns
// Sequence and Signature during append.
func NewWorkflowEvent(workflowID string, action Action, stepID string, data map[string]any) *WorkflowEvent {
	return &WorkflowEvent{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		Action:        action,
		StepID:        stepID,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: CurrentSchemaVersion,
	}
}

// Clone returns a deep copy of the event.
func (e *WorkflowEvent) Clone() *WorkflowEvent {
	clone := *e
	clone.Data = cloneAnyMap(e.Data)

	return &clone
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))

	for key, value := range src {
		switch typed := value.(type) {
		case map[string]any:
			dst[key] = cloneAnyMap(typed)
		case []any:
			dst[key] = cloneAnySlice(typed)
		default:
			dst[key] = value
		}
	}

	return dst
}

func cloneAnySlice(src []any) []any {
	dst := make([]any, len(src))

	for i, value := range src {
		switch typed := value.(type) {
		case map[string]any:
			dst[i] = cloneAnyMap(typed)
		case []any:
			dst[i] = cloneAnySlice(typed)
		default:
			dst[i] = value
		}
	}

	return dst
}
