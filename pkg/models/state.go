package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	// WorkflowStatusPending is the genesis status before start_workflow.
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusPaused    WorkflowStatus = "paused"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// ApprovalDecision records a human gate decision inside workflow state.
type ApprovalDecision struct {
	Decision      string    `json:"decision"` // "approved" or "rejected"
	ApproverID    string    `json:"approver_id,omitempty"`
	ApproverRole  string    `json:"approver_role,omitempty"`
	Justification string    `json:"justification,omitempty"`
	Expired       bool      `json:"expired,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// StepRetry tracks retry bookkeeping for a single step.
type StepRetry struct {
	Attempts   int   `json:"attempts"`
	MaxRetries int   `json:"max_retries"`
	BackoffMs  int64 `json:"backoff_ms"`
}

// Annotation is a free-form operator comment attached to an existing event.
// Annotations never alter execution-relevant fields.
type Annotation struct {
	EventID string    `json:"event_id"`
	Comment string    `json:"comment"`
	Author  string    `json:"author,omitempty"`
	At      time.Time `json:"at"`
}

// WorkflowState is derived state: never persisted as source of truth, always
// reproducible as fold(reducer, genesis, ordered events).
type WorkflowState struct {
	WorkflowID       string                       `json:"workflow_id"`
	ParentWorkflowID string                       `json:"parent_workflow_id,omitempty"`
	Status           WorkflowStatus               `json:"status"`
	Template         string                       `json:"template,omitempty"`
	Context          map[string]any               `json:"context,omitempty"`
	CurrentStep      string                       `json:"current_step,omitempty"`
	StepsCompleted   []string                     `json:"steps_completed"`
	Outputs          map[string]map[string]any    `json:"outputs"`
	Approvals        map[string]ApprovalDecision  `json:"approvals"`
	Retries          map[string]StepRetry         `json:"retries,omitempty"`
	PendingChildren  map[string]bool              `json:"pending_children,omitempty"`
	Annotations      []Annotation                 `json:"annotations,omitempty"`
	LastError        string                       `json:"last_error,omitempty"`
	CancelReason     string                       `json:"cancel_reason,omitempty"`
	CancelledBy      string                       `json:"cancelled_by,omitempty"`
	SnapshotCount    int                          `json:"snapshot_count,omitempty"`
}

// NewWorkflowState returns the genesis state for a workflow.
func NewWorkflowState(workflowID string) *WorkflowState {
	return &WorkflowState{
		WorkflowID:     workflowID,
		Status:         WorkflowStatusPending,
		StepsCompleted: make([]string, 0),
		Outputs:        make(map[string]map[string]any),
		Approvals:      make(map[string]ApprovalDecision),
	}
}

// Clone returns a deep copy. The reducer clones before every transition so
// callers can rely on input states never being mutated.
func (s *WorkflowState) Clone() *WorkflowState {
	clone := *s

	clone.Context = cloneAnyMap(s.Context)

	clone.StepsCompleted = make([]string, len(s.StepsCompleted))
	copy(clone.StepsCompleted, s.StepsCompleted)

	clone.Outputs = make(map[string]map[string]any, len(s.Outputs))
	for step, output := range s.Outputs {
		clone.Outputs[step] = cloneAnyMap(output)
	}

	clone.Approvals = make(map[string]ApprovalDecision, len(s.Approvals))
	for step, decision := range s.Approvals {
		clone.Approvals[step] = decision
	}

	if s.Retries != nil {
		clone.Retries = make(map[string]StepRetry, len(s.Retries))
		for step, retry := range s.Retries {
			clone.Retries[step] = retry
		}
	}

	if s.PendingChildren != nil {
		clone.PendingChildren = make(map[string]bool, len(s.PendingChildren))
		for child, pending := range s.PendingChildren {
			clone.PendingChildren[child] = pending
		}
	}

	if s.Annotations != nil {
		clone.Annotations = make([]Annotation, len(s.Annotations))
		copy(clone.Annotations, s.Annotations)
	}

	return &clone
}
