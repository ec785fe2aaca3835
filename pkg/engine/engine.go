package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chroniclehq/chronicle/pkg/approval"
	"github.com/chroniclehq/chronicle/pkg/audit"
	"github.com/chroniclehq/chronicle/pkg/locks"
	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/notify"
	"github.com/chroniclehq/chronicle/pkg/otelhelper"
	"github.com/chroniclehq/chronicle/pkg/persistence"
	"github.com/chroniclehq/chronicle/pkg/reducer"
	"github.com/chroniclehq/chronicle/pkg/snapshot"
)

// Config wires the engine's collaborators. Persistence, Signer, Snapshots,
// Gate and Logger are required; Notifier defaults to a no-op sink, Locker and
// Tracer are optional.
type Config struct {
	Persistence persistence.Persistence
	Signer      *audit.Signer
	Snapshots   *snapshot.Manager
	Gate        *approval.Gate
	Notifier    notify.Notifier
	Locker      locks.Locker
	Tracer      trace.Tracer
	Logger      *slog.Logger

	// RetryBaseDelay is the base of the exponential retry backoff.
	RetryBaseDelay time.Duration
}

// Engine is the single writer for workflow event streams. Appends to one
// workflow are serialized by a keyed mutex; reads never block writers.
type Engine struct {
	store     persistence.Persistence
	signer    *audit.Signer
	snapshots *snapshot.Manager
	gate      *approval.Gate
	notifier  notify.Notifier
	locker    locks.Locker
	tracer    trace.Tracer
	logger    *slog.Logger

	retryBaseDelay time.Duration

	mu            sync.Mutex
	workflowLocks map[string]*sync.Mutex
}

// New validates the configuration and creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Persistence == nil || cfg.Signer == nil || cfg.Snapshots == nil || cfg.Gate == nil || cfg.Logger == nil {
		return nil, errors.New("engine requires persistence, signer, snapshots, gate and logger")
	}

	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoopNotifier{}
	}

	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}

	return &Engine{
		store:          cfg.Persistence,
		signer:         cfg.Signer,
		snapshots:      cfg.Snapshots,
		gate:           cfg.Gate,
		notifier:       cfg.Notifier,
		locker:         cfg.Locker,
		tracer:         cfg.Tracer,
		logger:         cfg.Logger.With("module", "engine"),
		retryBaseDelay: cfg.RetryBaseDelay,
		workflowLocks:  make(map[string]*sync.Mutex),
	}, nil
}

func (e *Engine) workflowLock(workflowID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.workflowLocks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		e.workflowLocks[workflowID] = lock
	}

	return lock
}

// Emit validates, reduces, signs and appends one event, then maintains the
// snapshot and metadata caches and requests approval for the step the
// workflow moved onto. The returned event carries its assigned sequence.
//
// ValidationError and ErrSequenceConflict are returned synchronously; the
// caller decides whether to reload and retry.
func (e *Engine) Emit(ctx context.Context, workflowID string, action models.Action, payload map[string]any) (*models.WorkflowEvent, error) {
	lock := e.workflowLock(workflowID)
	lock.Lock()
	event, state, err := e.emitLocked(ctx, workflowID, "", action, payload)
	lock.Unlock()

	if err != nil {
		return nil, err
	}

	// A completed child reports back to its parent. The parent's lock is
	// taken only after the child's is released.
	if action != models.ActionChildWorkflowComplete &&
		state.Status == models.WorkflowStatusCompleted && state.ParentWorkflowID != "" {
		_, err = e.Emit(ctx, state.ParentWorkflowID, models.ActionChildWorkflowComplete, map[string]any{
			"child_workflow_id": workflowID,
			"result":            map[string]any{"status": string(state.Status)},
		})
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to report child completion to parent",
				"workflow_id", workflowID, "parent_workflow_id", state.ParentWorkflowID, "error", err)
		}
	}

	return event, nil
}

// emitLocked runs the append pipeline under the workflow's write lock and
// returns the appended event plus the post-event state.
func (e *Engine) emitLocked(ctx context.Context, workflowID, parentWorkflowID string, action models.Action, payload map[string]any) (event *models.WorkflowEvent, state *models.WorkflowState, err error) {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "engine.emit",
			attribute.String(otelhelper.WorkflowIDKey, workflowID),
			attribute.String(otelhelper.ActionKey, string(action)))

		defer func() {
			if err != nil {
				otelhelper.SetError(span, err,
					attribute.String(otelhelper.WorkflowIDKey, workflowID),
					attribute.String(otelhelper.ActionKey, string(action)))
			}

			span.End()
		}()
	}

	if !action.Valid() {
		return nil, nil, &ValidationError{WorkflowID: workflowID, Action: action, Reason: "unknown action"}
	}

	stepID, data := splitPayload(payload)

	if action.RequiresStepID() && stepID == "" {
		return nil, nil, &ValidationError{WorkflowID: workflowID, Action: action, Reason: "payload is missing step_id"}
	}

	err = models.ValidatePayload(action, data)
	if err != nil {
		return nil, nil, &ValidationError{WorkflowID: workflowID, Action: action, Reason: err.Error()}
	}

	state, lastSequence, lastTimestamp, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	err = validateTransition(workflowID, state.Status, action)
	if err != nil {
		return nil, nil, err
	}

	// A step gated on a pending approval cannot complete until the gate
	// decides; the wait is non-blocking, so the illegal attempt surfaces here.
	if action == models.ActionCompleteStep {
		pending, err := e.store.Approvals().PendingApprovalByStep(ctx, workflowID, stepID)
		if err != nil {
			return nil, nil, err
		}

		if pending != nil {
			return nil, nil, &ValidationError{
				WorkflowID: workflowID,
				Action:     action,
				Status:     state.Status,
				Reason:     fmt.Sprintf("step %s awaits approval %s", stepID, pending.ID),
			}
		}
	}

	event = models.NewWorkflowEvent(workflowID, action, stepID, data)
	event.Sequence = lastSequence + 1

	if parentWorkflowID != "" {
		event.ParentWorkflowID = parentWorkflowID
	} else {
		event.ParentWorkflowID = state.ParentWorkflowID
	}

	// Timestamps are monotonic within a workflow even when the wall clock
	// stalls between high-frequency appends.
	if !event.Timestamp.After(lastTimestamp) {
		event.Timestamp = lastTimestamp.Add(time.Microsecond)
	}

	next, err := reducer.Apply(state, event)
	if err != nil {
		return nil, nil, err
	}

	signature, err := e.signer.Sign(event)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign event %s: %w", event.ID, err)
	}

	event.Signature = signature

	err = e.store.Events().Append(ctx, event, lastSequence)
	if err != nil {
		return nil, nil, err
	}

	e.logger.InfoContext(ctx, "Event appended",
		"workflow_id", workflowID, "event_id", event.ID, "action", action, "sequence", event.Sequence)

	latestSnapshotID := e.checkpoint(ctx, workflowID, next, event.Sequence)
	e.updateMetadata(ctx, next, event, latestSnapshotID)
	e.requestApprovalIfNeeded(ctx, action, next)

	return event, next, nil
}

// checkpoint creates a snapshot when one is due. Snapshot failures degrade
// replay cost, not correctness, so they are logged and swallowed.
func (e *Engine) checkpoint(ctx context.Context, workflowID string, state *models.WorkflowState, eventCount int64) string {
	if !e.snapshots.ShouldSnapshot(eventCount) {
		return ""
	}

	snap, err := e.snapshots.Create(ctx, workflowID, state, eventCount)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to create snapshot", "workflow_id", workflowID, "error", err)

		return ""
	}

	return snap.ID
}

func (e *Engine) updateMetadata(ctx context.Context, state *models.WorkflowState, event *models.WorkflowEvent, latestSnapshotID string) {
	if latestSnapshotID == "" {
		existing, err := e.store.Metadata().MetadataByID(ctx, event.WorkflowID)
		if err == nil && existing != nil {
			latestSnapshotID = existing.LatestSnapshotID
		}
	}

	err := e.store.Metadata().SaveMetadata(ctx, &models.WorkflowMetadata{
		WorkflowID:          event.WorkflowID,
		Status:              state.Status,
		TotalEvents:         event.Sequence,
		StepsCompletedCount: len(state.StepsCompleted),
		LatestSnapshotID:    latestSnapshotID,
		UpdatedAt:           event.Timestamp,
	})
	if err != nil {
		// Metadata is a rebuildable view; a failed update is repaired by the
		// next append or an explicit RebuildMetadata.
		e.logger.WarnContext(ctx, "Failed to update workflow metadata", "workflow_id", event.WorkflowID, "error", err)
	}
}

// requestApprovalIfNeeded gates the step the workflow just moved onto and
// notifies the external sink. The engine never parks a goroutine waiting for
// the decision: pending state is persisted and the emit returns.
func (e *Engine) requestApprovalIfNeeded(ctx context.Context, action models.Action, state *models.WorkflowState) {
	switch action {
	case models.ActionStartWorkflow, models.ActionCompleteStep, models.ActionRetryStep,
		models.ActionRollbackStep, models.ActionResumeWorkflow:
	default:
		return
	}

	if state.Status != models.WorkflowStatusRunning || state.CurrentStep == "" {
		return
	}

	environment, _ := state.Context["environment"].(string)
	target, _ := state.Context["target"].(string)

	request, err := e.gate.Require(ctx, state.WorkflowID, state.CurrentStep, state.CurrentStep, environment, target)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to evaluate approval gate",
			"workflow_id", state.WorkflowID, "step_id", state.CurrentStep, "error", err)

		return
	}

	if request == nil {
		return
	}

	err = e.notifier.ApprovalRequested(ctx, notify.FromRequest(notify.KindApprovalRequested, request))
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to notify approval sink",
			"workflow_id", state.WorkflowID, "approval_id", request.ID, "error", err)
	}
}

// loadState reconstructs current state from the latest snapshot plus the
// delta events past it, hot or archived, returning the last applied sequence
// and timestamp. Replay cost is O(events since snapshot), not O(total
// events).
func (e *Engine) loadState(ctx context.Context, workflowID string) (*models.WorkflowState, int64, time.Time, error) {
	snap, err := e.snapshots.Latest(ctx, workflowID)
	if err != nil {
		return nil, 0, time.Time{}, err
	}

	state := models.NewWorkflowState(workflowID)
	after := int64(0)
	lastTimestamp := time.Time{}

	if snap != nil {
		state = snap.State
		after = snap.EventCount
		lastTimestamp = snap.CreatedAt
	}

	// Terminal workflows are archived in full, so the tail past the latest
	// snapshot may live in cold storage. The archive is consulted on both
	// paths and filtered to events the snapshot does not cover.
	archived, err := e.store.Archive().ListArchivedEvents(ctx, workflowID)
	if err != nil {
		return nil, 0, time.Time{}, err
	}

	events := make([]*models.WorkflowEvent, 0, len(archived))

	for _, event := range archived {
		if event.Sequence > after {
			events = append(events, event)
		}
	}

	hot, err := e.store.Events().ListEvents(ctx, workflowID, after)
	if err != nil {
		return nil, 0, time.Time{}, err
	}

	events = append(events, hot...)

	state, err = reducer.Replay(state, events)
	if err != nil {
		return nil, 0, time.Time{}, err
	}

	lastSequence := after
	if len(events) > 0 {
		last := events[len(events)-1]
		lastSequence = last.Sequence
		lastTimestamp = last.Timestamp
	}

	return state, lastSequence, lastTimestamp, nil
}

// Reconstruct returns the current state of a workflow via snapshot + delta
// replay.
func (e *Engine) Reconstruct(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "engine.reconstruct",
			attribute.String(otelhelper.WorkflowIDKey, workflowID))
		defer span.End()
	}

	state, lastSequence, _, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if lastSequence == 0 {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}

	return state, nil
}

// StateAt reconstructs state as of a past instant by replaying every event
// with timestamp <= at, boundary inclusive. Used for time-travel debugging
// and incident forensics.
func (e *Engine) StateAt(ctx context.Context, workflowID string, at time.Time) (*models.WorkflowState, error) {
	events, err := e.fullHistory(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowEvent, 0, len(events))

	for _, event := range events {
		if !event.Timestamp.After(at) {
			filtered = append(filtered, event)
		}
	}

	return reducer.Replay(models.NewWorkflowState(workflowID), filtered)
}

// EventFilter narrows ListEvents results. Zero values match everything.
type EventFilter struct {
	Action          models.Action
	StepID          string
	From            time.Time
	To              time.Time
	IncludeArchived bool
}

// ListEvents returns a workflow's ordered events, optionally filtered.
func (e *Engine) ListEvents(ctx context.Context, workflowID string, filter EventFilter) ([]*models.WorkflowEvent, error) {
	var (
		events []*models.WorkflowEvent
		err    error
	)

	if filter.IncludeArchived {
		events, err = e.fullHistory(ctx, workflowID)
	} else {
		events, err = e.store.Events().ListEvents(ctx, workflowID, 0)
	}

	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowEvent, 0, len(events))

	for _, event := range events {
		if filter.Action != "" && event.Action != filter.Action {
			continue
		}

		if filter.StepID != "" && event.StepID != filter.StepID {
			continue
		}

		if !filter.From.IsZero() && event.Timestamp.Before(filter.From) {
			continue
		}

		if !filter.To.IsZero() && event.Timestamp.After(filter.To) {
			continue
		}

		filtered = append(filtered, event)
	}

	return filtered, nil
}

// Annotate attaches a free-form operator comment referencing an existing
// event. The annotation is itself a signed event and never alters execution.
func (e *Engine) Annotate(ctx context.Context, workflowID, eventID, comment, author string) (*models.WorkflowEvent, error) {
	if eventID != "" {
		found, err := e.eventExists(ctx, workflowID, eventID)
		if err != nil {
			return nil, err
		}

		if !found {
			return nil, persistence.NewEventError("Annotate", workflowID, eventID, persistence.ErrEventNotFound)
		}
	}

	return e.Emit(ctx, workflowID, models.ActionAnnotate, map[string]any{
		"event_id": eventID,
		"comment":  comment,
		"author":   author,
	})
}

// RebuildMetadata reconstructs the metadata index entry from the event log.
func (e *Engine) RebuildMetadata(ctx context.Context, workflowID string) (*models.WorkflowMetadata, error) {
	state, lastSequence, lastTimestamp, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	latestSnapshotID := ""

	snap, err := e.snapshots.Latest(ctx, workflowID)
	if err == nil && snap != nil {
		latestSnapshotID = snap.ID
	}

	metadata := &models.WorkflowMetadata{
		WorkflowID:          workflowID,
		Status:              state.Status,
		TotalEvents:         lastSequence,
		StepsCompletedCount: len(state.StepsCompleted),
		LatestSnapshotID:    latestSnapshotID,
		UpdatedAt:           lastTimestamp,
	}

	err = e.store.Metadata().SaveMetadata(ctx, metadata)
	if err != nil {
		return nil, err
	}

	return metadata, nil
}

// AuditReport verifies the workflow's full chain (hot + archived) and
// aggregates it. Tampering aborts the report.
func (e *Engine) AuditReport(ctx context.Context, workflowID string) (*audit.Report, error) {
	events, err := e.fullHistory(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return e.signer.BuildReport(workflowID, events)
}

func (e *Engine) fullHistory(ctx context.Context, workflowID string) ([]*models.WorkflowEvent, error) {
	archived, err := e.store.Archive().ListArchivedEvents(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	hot, err := e.store.Events().ListEvents(ctx, workflowID, 0)
	if err != nil {
		return nil, err
	}

	return append(archived, hot...), nil
}

func (e *Engine) eventExists(ctx context.Context, workflowID, eventID string) (bool, error) {
	events, err := e.fullHistory(ctx, workflowID)
	if err != nil {
		return false, err
	}

	for _, event := range events {
		if event.ID == eventID {
			return true, nil
		}
	}

	return false, nil
}

// splitPayload extracts the step identifier from the caller payload; the
// rest travels as the event data.
func splitPayload(payload map[string]any) (string, map[string]any) {
	if payload == nil {
		return "", map[string]any{}
	}

	stepID, _ := payload["step_id"].(string)

	data := make(map[string]any, len(payload))

	for key, value := range payload {
		if key == "step_id" {
			continue
		}

		data[key] = value
	}

	return stepID, data
}
