package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// SnapshotRepository handles snapshot storage.
type SnapshotRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, logger *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// SaveSnapshot persists a snapshot.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	state, err := json.Marshal(snapshot.State)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot state: %w", err)
	}

	query := `
		INSERT INTO workflow_snapshots (snapshot_id, workflow_id, state, event_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, snapshot.ID, snapshot.WorkflowID, state, snapshot.EventCount, snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snapshot.ID, err)
	}

	return nil
}

// LatestSnapshot returns the snapshot with the highest event count, or nil.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context, workflowID string) (*models.Snapshot, error) {
	query := `
		SELECT snapshot_id, workflow_id, state, event_count, created_at
		FROM workflow_snapshots
		WHERE workflow_id = $1
		ORDER BY event_count DESC
		LIMIT 1
	`

	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load latest snapshot for workflow %s: %w", workflowID, err)
	}

	return snapshot, nil
}

// ListSnapshots returns snapshots ordered by event count descending.
func (r *SnapshotRepository) ListSnapshots(ctx context.Context, workflowID string) ([]*models.Snapshot, error) {
	query := `
		SELECT snapshot_id, workflow_id, state, event_count, created_at
		FROM workflow_snapshots
		WHERE workflow_id = $1
		ORDER BY event_count DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for workflow %s: %w", workflowID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	snapshots := make([]*models.Snapshot, 0)

	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snapshots = append(snapshots, snapshot)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// DeleteSnapshot removes one snapshot. The event log is untouched.
func (r *SnapshotRepository) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM workflow_snapshots WHERE snapshot_id = $1", snapshotID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", snapshotID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var (
		snapshot models.Snapshot
		state    []byte
	)

	err := row.Scan(&snapshot.ID, &snapshot.WorkflowID, &state, &snapshot.EventCount, &snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(state, &snapshot.State)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot state: %w", err)
	}

	snapshot.CreatedAt = snapshot.CreatedAt.UTC()

	return &snapshot, nil
}
