package models

import "time"

// WorkflowMetadata is a rebuildable index over the event log. It is never
// authoritative: if it is lost or corrupted it is reconstructed by replay.
type WorkflowMetadata struct {
	WorkflowID          string         `json:"workflow_id"`
	Status              WorkflowStatus `json:"status"`
	TotalEvents         int64          `json:"total_events"`
	StepsCompletedCount int            `json:"steps_completed_count"`
	LatestSnapshotID    string         `json:"latest_snapshot_id,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}
