package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// MetadataRepository handles the rebuildable per-workflow index.
type MetadataRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMetadataRepository creates a new metadata repository.
func NewMetadataRepository(db *sql.DB, logger *slog.Logger) *MetadataRepository {
	return &MetadataRepository{db: db, logger: logger}
}

// SaveMetadata upserts the index entry for a workflow.
func (r *MetadataRepository) SaveMetadata(ctx context.Context, metadata *models.WorkflowMetadata) error {
	query := `
		INSERT INTO workflow_metadata (workflow_id, status, total_events, steps_completed_count, latest_snapshot_id, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (workflow_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_events = EXCLUDED.total_events,
			steps_completed_count = EXCLUDED.steps_completed_count,
			latest_snapshot_id = EXCLUDED.latest_snapshot_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		metadata.WorkflowID,
		string(metadata.Status),
		metadata.TotalEvents,
		metadata.StepsCompletedCount,
		metadata.LatestSnapshotID,
		metadata.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save metadata for workflow %s: %w", metadata.WorkflowID, err)
	}

	return nil
}

// MetadataByID returns the index entry or nil when absent.
func (r *MetadataRepository) MetadataByID(ctx context.Context, workflowID string) (*models.WorkflowMetadata, error) {
	query := `
		SELECT workflow_id, status, total_events, steps_completed_count, latest_snapshot_id, updated_at
		FROM workflow_metadata
		WHERE workflow_id = $1
	`

	metadata, err := scanMetadata(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load metadata for workflow %s: %w", workflowID, err)
	}

	return metadata, nil
}

// ListMetadata returns all index entries ordered by most recently updated.
func (r *MetadataRepository) ListMetadata(ctx context.Context) ([]*models.WorkflowMetadata, error) {
	query := `
		SELECT workflow_id, status, total_events, steps_completed_count, latest_snapshot_id, updated_at
		FROM workflow_metadata
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow metadata: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.WorkflowMetadata, 0)

	for rows.Next() {
		metadata, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		entries = append(entries, metadata)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating metadata: %w", err)
	}

	return entries, nil
}

func scanMetadata(row rowScanner) (*models.WorkflowMetadata, error) {
	var (
		metadata   models.WorkflowMetadata
		status     string
		snapshotID sql.NullString
	)

	err := row.Scan(
		&metadata.WorkflowID,
		&status,
		&metadata.TotalEvents,
		&metadata.StepsCompletedCount,
		&snapshotID,
		&metadata.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	metadata.Status = models.WorkflowStatus(status)
	metadata.LatestSnapshotID = snapshotID.String
	metadata.UpdatedAt = metadata.UpdatedAt.UTC()

	return &metadata, nil
}
