package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// resourceLockTTL caps how long an external resource lock outlives a crashed
// holder before Redis reclaims it.
const resourceLockTTL = 30 * time.Minute

// CleanupSummary reports what a cancellation actually cleaned up. Cleanup is
// best-effort: the cancel event lands first, and each failure is recorded
// rather than rolled back.
type CleanupSummary struct {
	Event              *models.WorkflowEvent `json:"event"`
	ChildrenCancelled  []string              `json:"children_cancelled,omitempty"`
	LocksReleased      []string              `json:"locks_released,omitempty"`
	ApprovalsCancelled int                   `json:"approvals_cancelled"`
	Failures           []string              `json:"failures,omitempty"`
}

// Cancel appends a cancel_workflow event and then runs cleanup: pending
// children are cancelled with the parent's reason, external resource locks
// are released and open approval requests are voided. The cleanup outcome is
// annotated back onto the log so the audit trail shows what happened.
func (e *Engine) Cancel(ctx context.Context, workflowID, reason, cancelledBy string) (*CleanupSummary, error) {
	state, err := e.Reconstruct(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	event, err := e.Emit(ctx, workflowID, models.ActionCancelWorkflow, map[string]any{
		"reason":       reason,
		"cancelled_by": cancelledBy,
	})
	if err != nil {
		return nil, err
	}

	summary := &CleanupSummary{Event: event}

	for childID := range state.PendingChildren {
		_, err := e.Emit(ctx, childID, models.ActionCancelWorkflow, map[string]any{
			"reason":       fmt.Sprintf("parent workflow %s cancelled: %s", workflowID, reason),
			"cancelled_by": cancelledBy,
		})
		if err != nil {
			summary.Failures = append(summary.Failures, fmt.Sprintf("cancel child %s: %v", childID, err))

			continue
		}

		summary.ChildrenCancelled = append(summary.ChildrenCancelled, childID)
	}

	summary.LocksReleased = e.releaseResources(ctx, state, summary)

	cancelled, err := e.gate.CancelPending(ctx, workflowID)
	if err != nil {
		summary.Failures = append(summary.Failures, fmt.Sprintf("cancel approvals: %v", err))
	}

	summary.ApprovalsCancelled = cancelled

	e.annotateCleanup(ctx, workflowID, event.ID, summary)

	return summary, nil
}

func (e *Engine) releaseResources(ctx context.Context, state *models.WorkflowState, summary *CleanupSummary) []string {
	if e.locker == nil {
		return nil
	}

	var released []string

	for _, resourceID := range resourceIDs(state) {
		err := e.locker.Release(ctx, resourceID)
		if err != nil {
			summary.Failures = append(summary.Failures, fmt.Sprintf("release lock %s: %v", resourceID, err))

			continue
		}

		released = append(released, resourceID)
	}

	return released
}

func (e *Engine) annotateCleanup(ctx context.Context, workflowID, eventID string, summary *CleanupSummary) {
	comment := fmt.Sprintf("cleanup: %d children cancelled, %d locks released, %d approvals cancelled, %d failures",
		len(summary.ChildrenCancelled), len(summary.LocksReleased), summary.ApprovalsCancelled, len(summary.Failures))

	_, err := e.Annotate(ctx, workflowID, eventID, comment, "engine")
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to annotate cancellation cleanup", "workflow_id", workflowID, "error", err)
	}
}

// AcquireResource takes a distributed lock on an external resource before a
// side-effecting step runs. Returns false when another holder owns the lock.
func (e *Engine) AcquireResource(ctx context.Context, resourceID string) (bool, error) {
	if e.locker == nil {
		return true, nil
	}

	return e.locker.Acquire(ctx, resourceID, resourceLockTTL)
}

// ReleaseResource releases a lock taken with AcquireResource.
func (e *Engine) ReleaseResource(ctx context.Context, resourceID string) error {
	if e.locker == nil {
		return nil
	}

	return e.locker.Release(ctx, resourceID)
}

// resourceIDs lists the external resources a workflow declared in its
// context at start time.
func resourceIDs(state *models.WorkflowState) []string {
	raw, ok := state.Context["resources"].([]any)
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(raw))

	for _, item := range raw {
		if id, ok := item.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}
