package engine

import (
	"context"
	"fmt"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// maxChainDepth bounds parent/child nesting so a miswired template cannot
// spawn unbounded hierarchies.
const maxChainDepth = 20

// ChildStart describes the child workflow to spawn.
type ChildStart struct {
	ChildWorkflowID string
	Template        string
	FirstStep       string
	Context         map[string]any
}

// StartChild records a child on the parent and starts the child workflow
// linked back to the parent. The parent does not complete while the child is
// pending; the child reports completion back through the engine.
func (e *Engine) StartChild(ctx context.Context, parentWorkflowID string, start ChildStart) (*models.WorkflowEvent, error) {
	if start.ChildWorkflowID == "" || start.FirstStep == "" {
		return nil, &ValidationError{
			WorkflowID: parentWorkflowID,
			Action:     models.ActionStartChildWorkflow,
			Reason:     "child_workflow_id and first_step are required",
		}
	}

	depth, err := e.chainDepth(ctx, parentWorkflowID)
	if err != nil {
		return nil, err
	}

	if depth+1 >= maxChainDepth {
		return nil, fmt.Errorf("%w: workflow %s is already %d levels deep", ErrChainTooDeep, parentWorkflowID, depth)
	}

	_, err = e.Emit(ctx, parentWorkflowID, models.ActionStartChildWorkflow, map[string]any{
		"child_workflow_id": start.ChildWorkflowID,
		"template":          start.Template,
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"first_step": start.FirstStep}

	if start.Template != "" {
		payload["template"] = start.Template
	}

	if start.Context != nil {
		payload["context"] = start.Context
	}

	lock := e.workflowLock(start.ChildWorkflowID)
	lock.Lock()
	event, _, err := e.emitLocked(ctx, start.ChildWorkflowID, parentWorkflowID, models.ActionStartWorkflow, payload)
	lock.Unlock()

	if err != nil {
		// The parent now waits on a child that never started; surface both
		// facts to the operator.
		e.logger.ErrorContext(ctx, "Child workflow failed to start",
			"parent_workflow_id", parentWorkflowID, "child_workflow_id", start.ChildWorkflowID, "error", err)

		return nil, err
	}

	return event, nil
}

// ChainLink is one workflow in a parent/child chain, root first.
type ChainLink struct {
	WorkflowID string                `json:"workflow_id"`
	Status     models.WorkflowStatus `json:"status"`
	Depth      int                   `json:"depth"`
}

// Chain walks from a workflow up to its root and returns the lineage, root
// first. A repeated workflow ID stops the walk: linkage is append-only, so a
// cycle means the log was tampered with or hand-edited.
func (e *Engine) Chain(ctx context.Context, workflowID string) ([]ChainLink, error) {
	lineage := make([]*models.WorkflowState, 0, 4)
	visited := make(map[string]bool)

	current := workflowID

	for current != "" {
		if visited[current] {
			return nil, fmt.Errorf("workflow chain contains a cycle at %s", current)
		}

		if len(lineage) >= maxChainDepth {
			return nil, fmt.Errorf("%w: walking up from %s", ErrChainTooDeep, workflowID)
		}

		visited[current] = true

		state, err := e.Reconstruct(ctx, current)
		if err != nil {
			return nil, err
		}

		lineage = append(lineage, state)
		current = state.ParentWorkflowID
	}

	// lineage is leaf-to-root; emit root first.
	links := make([]ChainLink, len(lineage))

	for i := range lineage {
		state := lineage[len(lineage)-1-i]
		links[i] = ChainLink{WorkflowID: state.WorkflowID, Status: state.Status, Depth: i}
	}

	return links, nil
}

func (e *Engine) chainDepth(ctx context.Context, workflowID string) (int, error) {
	chain, err := e.Chain(ctx, workflowID)
	if err != nil {
		return 0, err
	}

	return len(chain), nil
}
