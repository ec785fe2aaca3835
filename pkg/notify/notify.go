// Package notify defines the notification sink the engine talks to when
// approvals are requested or decided. The core only emits notifications;
// delivery (chat, ticketing, paging) lives behind the Notifier interface.
package notify

import (
	"context"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// ApprovalTopic is the message topic approval notifications are published on.
const ApprovalTopic = "chronicle.approvals"

// Metadata keys set on published messages.
const (
	KindMetadataKey     = "kind"
	WorkflowMetadataKey = "workflow_id"
)

// Kind distinguishes the two approval notification types.
type Kind string

const (
	KindApprovalRequested Kind = "approval.requested"
	KindApprovalDecided   Kind = "approval.decided"
)

// ApprovalNotification is the payload delivered to the sink.
type ApprovalNotification struct {
	Kind       Kind                  `json:"kind"`
	ApprovalID string                `json:"approval_id"`
	WorkflowID string                `json:"workflow_id"`
	StepID     string                `json:"step_id"`
	RiskLevel  models.RiskLevel      `json:"risk_level"`
	Status     models.ApprovalStatus `json:"status"`
	ExpiresAt  time.Time             `json:"expires_at,omitzero"`
	DecidedBy  string                `json:"decided_by,omitempty"`
	At         time.Time             `json:"at"`
}

// FromRequest builds a notification from an approval request.
func FromRequest(kind Kind, request *models.ApprovalRequest) ApprovalNotification {
	return ApprovalNotification{
		Kind:       kind,
		ApprovalID: request.ID,
		WorkflowID: request.WorkflowID,
		StepID:     request.StepID,
		RiskLevel:  request.RiskLevel,
		Status:     request.Status,
		ExpiresAt:  request.ExpiresAt,
		DecidedBy:  request.ApproverID,
		At:         time.Now().UTC(),
	}
}

// Notifier is the external notification sink.
type Notifier interface {
	ApprovalRequested(ctx context.Context, notification ApprovalNotification) error
	ApprovalDecided(ctx context.Context, notification ApprovalNotification) error
	Close() error
}

// NoopNotifier drops every notification. Useful when no sink is configured.
type NoopNotifier struct{}

func (NoopNotifier) ApprovalRequested(ctx context.Context, notification ApprovalNotification) error {
	return nil
}

func (NoopNotifier) ApprovalDecided(ctx context.Context, notification ApprovalNotification) error {
	return nil
}

func (NoopNotifier) Close() error {
	return nil
}

// MultiNotifier fans a notification out to several sinks, stopping at the
// first failure.
type MultiNotifier []Notifier

func (m MultiNotifier) ApprovalRequested(ctx context.Context, notification ApprovalNotification) error {
	for _, notifier := range m {
		err := notifier.ApprovalRequested(ctx, notification)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m MultiNotifier) ApprovalDecided(ctx context.Context, notification ApprovalNotification) error {
	for _, notifier := range m {
		err := notifier.ApprovalDecided(ctx, notification)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m MultiNotifier) Close() error {
	var firstErr error

	for _, notifier := range m {
		err := notifier.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
