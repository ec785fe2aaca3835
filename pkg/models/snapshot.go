package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a derived cache of (state, event_count). Replaying exactly
// EventCount ordered events from genesis must reproduce State. Snapshots are
// prunable; the signed event log remains the audit of record.
type Snapshot struct {
	ID         string         `json:"snapshot_id"`
	WorkflowID string         `json:"workflow_id"`
	State      *WorkflowState `json:"state"`
	EventCount int64          `json:"event_count"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewSnapshot captures state as of eventCount replayed events.
func NewSnapshot(workflowID string, state *WorkflowState, eventCount int64) *Snapshot {
	return &Snapshot{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		State:      state.Clone(),
		EventCount: eventCount,
		CreatedAt:  time.Now().UTC(),
	}
}
