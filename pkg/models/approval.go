package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel classifies how dangerous a step is, per declarative policy.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical:
		return true
	}

	return false
}

// ApprovalStatus is the lifecycle state of an approval request.
// pending is the only non-terminal status.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusExpired   ApprovalStatus = "expired"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalStatusPending
}

// ApprovalRequest is a human-in-the-loop gate blocking one workflow step.
// Rows are never deleted; they are retained for audit.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"   validate:"required"`
	StepID        string         `json:"step_id"       validate:"required"`
	RiskLevel     RiskLevel      `json:"risk_level"    validate:"required"`
	Status        ApprovalStatus `json:"status"`
	ApproverID    string         `json:"approver_id,omitempty"`
	ApproverRole  string         `json:"approver_role,omitempty"`
	Justification string         `json:"justification,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
}

// NewApprovalRequest creates a pending request expiring after timeout.
func NewApprovalRequest(workflowID, stepID string, risk RiskLevel, timeout time.Duration) *ApprovalRequest {
	now := time.Now().UTC()

	return &ApprovalRequest{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		StepID:     stepID,
		RiskLevel:  risk,
		Status:     ApprovalStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(timeout),
	}
}
