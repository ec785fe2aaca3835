package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence"
	"github.com/chroniclehq/chronicle/pkg/persistence/sqlbase"
)

const uniqueViolation = pq.ErrorCode("23505")

// EventRepository handles the append-only event log and its cold storage.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

const eventColumns = `
	event_id
  , workflow_id
  , parent_workflow_id
  , sequence
  , action
  , step_id
  , data
  , occurred_at
  , schema_version
  , signature
`

// Append inserts a signed event. The UNIQUE (workflow_id, sequence)
// constraint is the optimistic concurrency check: a stale writer collides on
// the sequence it computed and gets ErrSequenceConflict.
func (r *EventRepository) Append(ctx context.Context, event *models.WorkflowEvent, expectedSequence int64) error {
	if event.Sequence != expectedSequence+1 {
		return persistence.NewEventError("Append", event.WorkflowID, event.ID,
			fmt.Errorf("%w: event sequence %d does not follow expected %d", persistence.ErrSequenceConflict, event.Sequence, expectedSequence))
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return persistence.NewEventError("Append", event.WorkflowID, event.ID, fmt.Errorf("failed to marshal event data: %w", err))
	}

	query := `
		INSERT INTO workflow_events (` + eventColumns + `)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
	`

	// Connection-level failures are retried; a retry that raced its own
	// earlier success collides on the sequence constraint and surfaces as a
	// conflict the caller resolves by reloading.
	err = sqlbase.WithRetry(ctx, func() error {
		_, execErr := r.db.ExecContext(ctx, query,
			event.ID,
			event.WorkflowID,
			event.ParentWorkflowID,
			event.Sequence,
			string(event.Action),
			event.StepID,
			data,
			event.Timestamp,
			event.SchemaVersion,
			event.Signature,
		)

		return execErr
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewEventError("Append", event.WorkflowID, event.ID,
				fmt.Errorf("%w: sequence %d already appended", persistence.ErrSequenceConflict, event.Sequence))
		}

		return persistence.NewEventError("Append", event.WorkflowID, event.ID, err)
	}

	return nil
}

// ListEvents returns ordered events with sequence > afterSequence.
func (r *EventRepository) ListEvents(ctx context.Context, workflowID string, afterSequence int64) ([]*models.WorkflowEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM workflow_events
		WHERE workflow_id = $1 AND sequence > $2
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, afterSequence)
	if err != nil {
		return nil, persistence.NewEventError("ListEvents", workflowID, "", err)
	}

	return r.collectEvents(ctx, workflowID, "ListEvents", rows)
}

// ListEventsInRange returns ordered events with from <= occurred_at <= to.
func (r *EventRepository) ListEventsInRange(ctx context.Context, workflowID string, from, to time.Time) ([]*models.WorkflowEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM workflow_events
		WHERE workflow_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, from, to)
	if err != nil {
		return nil, persistence.NewEventError("ListEventsInRange", workflowID, "", err)
	}

	return r.collectEvents(ctx, workflowID, "ListEventsInRange", rows)
}

// CountEvents returns the number of hot events for a workflow.
func (r *EventRepository) CountEvents(ctx context.Context, workflowID string) (int64, error) {
	var count int64

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workflow_events WHERE workflow_id = $1", workflowID).Scan(&count)
	if err != nil {
		return 0, persistence.NewEventError("CountEvents", workflowID, "", err)
	}

	return count, nil
}

// WorkflowIDs lists every workflow with at least one hot event.
func (r *EventRepository) WorkflowIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT workflow_id FROM workflow_events ORDER BY workflow_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow ids: %w", err)
	}

	defer r.closeRows(ctx, rows)

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow ids: %w", err)
	}

	return ids, nil
}

// MoveToArchive relocates aged events into archived_events in one
// transaction, content unchanged, and reports how many moved.
func (r *EventRepository) MoveToArchive(ctx context.Context, workflowID string, maxSequence int64, cutoff time.Time) (int64, error) {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	insert := `
		INSERT INTO archived_events (` + eventColumns + `)
		SELECT ` + eventColumns + `
		FROM workflow_events
		WHERE workflow_id = $1 AND sequence <= $2 AND occurred_at < $3
		ON CONFLICT DO NOTHING
	`

	_, err = transaction.ExecContext(ctx, insert, workflowID, maxSequence, cutoff)
	if err != nil {
		_ = transaction.Rollback()

		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	result, err := transaction.ExecContext(ctx,
		"DELETE FROM workflow_events WHERE workflow_id = $1 AND sequence <= $2 AND occurred_at < $3",
		workflowID, maxSequence, cutoff)
	if err != nil {
		_ = transaction.Rollback()

		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	moved, err := result.RowsAffected()
	if err != nil {
		_ = transaction.Rollback()

		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	err = transaction.Commit()
	if err != nil {
		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	return moved, nil
}

// ListArchivedEvents returns the ordered cold-storage events of a workflow.
func (r *EventRepository) ListArchivedEvents(ctx context.Context, workflowID string) ([]*models.WorkflowEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM archived_events
		WHERE workflow_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewEventError("ListArchivedEvents", workflowID, "", err)
	}

	return r.collectEvents(ctx, workflowID, "ListArchivedEvents", rows)
}

func (r *EventRepository) collectEvents(ctx context.Context, workflowID, op string, rows *sql.Rows) ([]*models.WorkflowEvent, error) {
	defer r.closeRows(ctx, rows)

	events := make([]*models.WorkflowEvent, 0)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, persistence.NewEventError(op, workflowID, "", err)
		}

		events = append(events, event)
	}

	err := rows.Err()
	if err != nil {
		return nil, persistence.NewEventError(op, workflowID, "", err)
	}

	return events, nil
}

func (r *EventRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func scanEvent(rows *sql.Rows) (*models.WorkflowEvent, error) {
	var (
		event    models.WorkflowEvent
		parentID sql.NullString
		stepID   sql.NullString
		action   string
		data     []byte
	)

	err := rows.Scan(
		&event.ID,
		&event.WorkflowID,
		&parentID,
		&event.Sequence,
		&action,
		&stepID,
		&data,
		&event.Timestamp,
		&event.SchemaVersion,
		&event.Signature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.ParentWorkflowID = parentID.String
	event.StepID = stepID.String
	event.Action = models.Action(action)
	event.Timestamp = event.Timestamp.UTC()

	if len(data) > 0 {
		err = json.Unmarshal(data, &event.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
	}

	return &event, nil
}
