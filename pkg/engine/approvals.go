package engine

import (
	"context"

	"github.com/chroniclehq/chronicle/pkg/approval"
	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/notify"
)

// DecideApproval records a human decision on a pending request and appends
// the matching approve_gate or reject_gate event, so the decision is visible
// both in the request row and in the immutable log. Rejections route the
// workflow per onReject ("failed" or "cancelled", default failed).
func (e *Engine) DecideApproval(ctx context.Context, approvalID, decision, approverID, approverRole, justification, onReject string) (*models.ApprovalRequest, error) {
	request, err := e.gate.Decide(ctx, approvalID, decision, approverID, approverRole, justification)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"step_id":       request.StepID,
		"approval_id":   request.ID,
		"approver_id":   approverID,
		"approver_role": approverRole,
	}

	if justification != "" {
		payload["justification"] = justification
	}

	action := models.ActionApproveGate

	if request.Status == models.ApprovalStatusRejected {
		action = models.ActionRejectGate

		if onReject != "" {
			payload["on_reject"] = onReject
		}
	}

	_, err = e.Emit(ctx, request.WorkflowID, action, payload)
	if err != nil {
		return nil, err
	}

	err = e.notifier.ApprovalDecided(ctx, notify.FromRequest(notify.KindApprovalDecided, request))
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to notify approval decision",
			"approval_id", request.ID, "workflow_id", request.WorkflowID, "error", err)
	}

	return request, nil
}

// Gate exposes the engine's approval gate for read paths.
func (e *Engine) Gate() *approval.Gate {
	return e.gate
}
