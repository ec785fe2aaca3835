package audit

import (
	"fmt"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// Report summarizes the verified event history of one workflow.
type Report struct {
	WorkflowID   string                `json:"workflow_id"`
	TotalEvents  int                   `json:"total_events"`
	ActionCounts map[models.Action]int `json:"action_counts"`
	FirstEventAt time.Time             `json:"first_event_at,omitzero"`
	LastEventAt  time.Time             `json:"last_event_at,omitzero"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// BuildReport verifies the full chain in strict mode and aggregates per-action
// counts. A tampered event aborts report generation: the TamperedEventError is
// surfaced, never skipped.
func (s *Signer) BuildReport(workflowID string, events []*models.WorkflowEvent) (*Report, error) {
	if _, err := s.ValidateChain(events, true); err != nil {
		return nil, fmt.Errorf("audit report for workflow %s aborted: %w", workflowID, err)
	}

	report := &Report{
		WorkflowID:   workflowID,
		TotalEvents:  len(events),
		ActionCounts: make(map[models.Action]int),
		GeneratedAt:  time.Now().UTC(),
	}

	for i, event := range events {
		report.ActionCounts[event.Action]++

		if i == 0 {
			report.FirstEventAt = event.Timestamp
		}

		report.LastEventAt = event.Timestamp
	}

	return report, nil
}
