package web

import (
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// EmitEventRequest is the body of POST /workflows/:id/events.
type EmitEventRequest struct {
	Action  string         `json:"action"            validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StartChildRequest is the body of POST /workflows/:id/children.
type StartChildRequest struct {
	ChildWorkflowID string         `json:"child_workflow_id" validate:"required"`
	Template        string         `json:"template,omitempty"`
	FirstStep       string         `json:"first_step"        validate:"required"`
	Context         map[string]any `json:"context,omitempty"`
}

// CancelRequest is the body of POST /workflows/:id/cancel.
type CancelRequest struct {
	Reason      string `json:"reason"       validate:"required"`
	CancelledBy string `json:"cancelled_by" validate:"required"`
}

// RetryRequest is the body of POST /workflows/:id/steps/:stepID/retry.
type RetryRequest struct {
	MaxRetries int `json:"max_retries,omitempty" validate:"omitempty,min=1"`
}

// AnnotateRequest is the body of POST /workflows/:id/annotations.
type AnnotateRequest struct {
	EventID string `json:"event_id,omitempty"`
	Comment string `json:"comment"          validate:"required"`
	Author  string `json:"author,omitempty"`
}

// DecisionRequest is the body of POST /approvals/:id/decision.
type DecisionRequest struct {
	Decision      string `json:"decision"                validate:"required,oneof=approved rejected"`
	ApproverID    string `json:"approver_id"             validate:"required"`
	ApproverRole  string `json:"approver_role"           validate:"required"`
	Justification string `json:"justification,omitempty"`
	OnReject      string `json:"on_reject,omitempty"     validate:"omitempty,oneof=failed cancelled"`
}

// EventResponse is the wire form of an appended event.
type EventResponse struct {
	EventID   string    `json:"event_id"`
	Sequence  int64     `json:"sequence"`
	Action    string    `json:"action"`
	StepID    string    `json:"step_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func eventResponse(event *models.WorkflowEvent) EventResponse {
	return EventResponse{
		EventID:   event.ID,
		Sequence:  event.Sequence,
		Action:    string(event.Action),
		StepID:    event.StepID,
		Timestamp: event.Timestamp,
	}
}
