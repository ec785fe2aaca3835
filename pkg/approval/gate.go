package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence"
)

var (
	// ErrApprovalExpired indicates a decision arrived after the request
	// expired (or after the sweep already resolved it).
	ErrApprovalExpired = errors.New("approval request expired")

	// ErrApprovalDecided indicates the request already reached a terminal
	// status; terminal requests never transition again.
	ErrApprovalDecided = errors.New("approval request already decided")

	// ErrIneligibleRole indicates the approver's role is not allowed to
	// decide requests of this tier.
	ErrIneligibleRole = errors.New("approver role not eligible for this risk tier")
)

// Gate drives the approval request state machine. It owns ApprovalRequest
// rows; the corresponding approve_gate/reject_gate events flow through the
// engine so state stays reconstructible purely from the log.
type Gate struct {
	approvals persistence.ApprovalRepository
	assessor  *Assessor
	logger    *slog.Logger
}

// NewGate creates an approval gate.
func NewGate(approvals persistence.ApprovalRepository, assessor *Assessor, logger *slog.Logger) *Gate {
	return &Gate{
		approvals: approvals,
		assessor:  assessor,
		logger:    logger.With("module", "approval"),
	}
}

// Assessor exposes the gate's risk assessor.
func (g *Gate) Assessor() *Assessor {
	return g.assessor
}

// Require assesses a step and creates a pending request when the tier does
// not auto-approve. It returns nil when the step may proceed immediately.
// An existing pending request for the same step is returned instead of
// creating a duplicate.
func (g *Gate) Require(ctx context.Context, workflowID, stepID, operation, environment, target string) (*models.ApprovalRequest, error) {
	level := g.assessor.Assess(operation, environment, target)
	tier := g.assessor.Tier(level)

	if tier.AutoApprove {
		return nil, nil
	}

	existing, err := g.approvals.PendingApprovalByStep(ctx, workflowID, stepID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending approval for step %s: %w", stepID, err)
	}

	if existing != nil {
		return existing, nil
	}

	request := models.NewApprovalRequest(workflowID, stepID, level, tier.Timeout)

	err = g.approvals.SaveApproval(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval request for step %s: %w", stepID, err)
	}

	g.logger.InfoContext(ctx, "Approval required",
		"workflow_id", workflowID, "step_id", stepID, "risk_level", level, "expires_at", request.ExpiresAt)

	return request, nil
}

// ListByStatus returns approval requests in the given status, oldest first.
func (g *Gate) ListByStatus(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error) {
	return g.approvals.ListApprovalsByStatus(ctx, status)
}

// Decide records a human decision. decision must be "approved" or
// "rejected". Late decisions fail with ErrApprovalExpired; repeated decisions
// with ErrApprovalDecided; ineligible roles with ErrIneligibleRole.
func (g *Gate) Decide(ctx context.Context, id, decision, approverID, approverRole, justification string) (*models.ApprovalRequest, error) {
	request, err := g.approvals.ApprovalByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if request.Status != models.ApprovalStatusPending {
		if request.Status == models.ApprovalStatusExpired {
			return nil, fmt.Errorf("approval %s: %w", id, ErrApprovalExpired)
		}

		return nil, fmt.Errorf("approval %s is %s: %w", id, request.Status, ErrApprovalDecided)
	}

	now := time.Now().UTC()

	if now.After(request.ExpiresAt) {
		// The sweep has not caught it yet; resolve it here so the request
		// still expires exactly once.
		_, err = g.approvals.MarkExpired(ctx, id, now)
		if err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("approval %s: %w", id, ErrApprovalExpired)
	}

	tier := g.assessor.Tier(request.RiskLevel)
	if len(tier.ApproverRoles) > 0 && !slices.Contains(tier.ApproverRoles, approverRole) {
		return nil, fmt.Errorf("role %q cannot decide %s-risk requests: %w", approverRole, request.RiskLevel, ErrIneligibleRole)
	}

	switch decision {
	case "approved":
		request.Status = models.ApprovalStatusApproved
	case "rejected":
		request.Status = models.ApprovalStatusRejected
	default:
		return nil, fmt.Errorf("unknown decision %q: must be approved or rejected", decision)
	}

	request.ApproverID = approverID
	request.ApproverRole = approverRole
	request.Justification = justification
	request.DecidedAt = &now

	err = g.approvals.SaveApproval(ctx, request)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "Approval decided",
		"approval_id", id, "decision", decision, "approver_id", approverID)

	return request, nil
}

// ExpireDue transitions every pending request past its deadline to expired
// and returns the requests this call transitioned. Requests resolved by a
// concurrent sweep are skipped, so each expiry happens exactly once.
func (g *Gate) ExpireDue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	pending, err := g.approvals.ListApprovalsByStatus(ctx, models.ApprovalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	expired := make([]*models.ApprovalRequest, 0)

	for _, request := range pending {
		if !now.After(request.ExpiresAt) {
			continue
		}

		transitioned, err := g.approvals.MarkExpired(ctx, request.ID, now)
		if err != nil {
			return nil, err
		}

		if !transitioned {
			continue
		}

		request.Status = models.ApprovalStatusExpired
		request.DecidedAt = &now
		expired = append(expired, request)

		g.logger.InfoContext(ctx, "Approval expired",
			"approval_id", request.ID, "workflow_id", request.WorkflowID, "step_id", request.StepID)
	}

	return expired, nil
}

// CancelPending marks every pending request of a workflow cancelled. Used
// during workflow cancellation cleanup.
func (g *Gate) CancelPending(ctx context.Context, workflowID string) (int, error) {
	pending, err := g.approvals.ListApprovalsByStatus(ctx, models.ApprovalStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	cancelled := 0
	now := time.Now().UTC()

	for _, request := range pending {
		if request.WorkflowID != workflowID {
			continue
		}

		request.Status = models.ApprovalStatusCancelled
		request.DecidedAt = &now

		err = g.approvals.SaveApproval(ctx, request)
		if err != nil {
			return cancelled, err
		}

		cancelled++
	}

	return cancelled, nil
}
