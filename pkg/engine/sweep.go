package engine

import (
	"context"
	"errors"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/notify"
)

// ExpirySweep resolves every pending approval past its deadline as an
// expired rejection: the request is marked expired exactly once and a
// reject_gate event with expired=true lands on the workflow. Returns how
// many gate events this sweep actually landed; a mid-sweep failure reports
// the progress made before it.
//
// A workflow that reached a terminal state while its approval sat pending
// rejects the gate event with ValidationError; the request stays expired,
// the sweep moves on and does not count it.
func (e *Engine) ExpirySweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := e.gate.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}

	resolved := 0

	for _, request := range expired {
		_, err := e.Emit(ctx, request.WorkflowID, models.ActionRejectGate, map[string]any{
			"step_id":       request.StepID,
			"approval_id":   request.ID,
			"expired":       true,
			"on_reject":     "failed",
			"justification": "approval timed out",
		})
		if err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				e.logger.InfoContext(ctx, "Skipping expiry event for inactive workflow",
					"workflow_id", request.WorkflowID, "approval_id", request.ID, "reason", validationErr.Reason)

				continue
			}

			return resolved, err
		}

		resolved++

		err = e.notifier.ApprovalDecided(ctx, notify.FromRequest(notify.KindApprovalDecided, request))
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to notify approval expiry",
				"approval_id", request.ID, "workflow_id", request.WorkflowID, "error", err)
		}
	}

	return resolved, nil
}
