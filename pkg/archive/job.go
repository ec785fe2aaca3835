// Package archive moves old events from hot storage into the archive tier.
// Archived events stay signed and replayable; only their storage location
// changes.
package archive

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/chroniclehq/chronicle/pkg/persistence"
)

// DefaultRetentionDays is how long events stay in hot storage before the job
// considers them for archival.
const DefaultRetentionDays = 90

// Job relocates cold events. For terminal workflows every event older than
// the cutoff moves; for active workflows only the prefix already covered by
// the latest snapshot moves, so current-state replay never needs the archive.
type Job struct {
	store     persistence.Persistence
	logger    *slog.Logger
	retention time.Duration
}

// NewJob creates an archival job with the given retention in days.
func NewJob(store persistence.Persistence, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	return &Job{
		store:     store,
		logger:    logger.With("module", "archive"),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Run archives eligible events across all workflows and returns how many
// were moved. The move is idempotent: a crash between copy and delete leaves
// duplicates that the next run resolves, never a gap.
func (j *Job) Run(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-j.retention)

	workflowIDs, err := j.store.Events().WorkflowIDs(ctx)
	if err != nil {
		return 0, err
	}

	var moved int64

	for _, workflowID := range workflowIDs {
		count, err := j.archiveWorkflow(ctx, workflowID, cutoff)
		if err != nil {
			j.logger.ErrorContext(ctx, "Failed to archive workflow events",
				"workflow_id", workflowID, "error", err)

			continue
		}

		moved += count
	}

	if moved > 0 {
		j.logger.InfoContext(ctx, "Archival run finished", "events_moved", moved, "cutoff", cutoff)
	}

	return moved, nil
}

func (j *Job) archiveWorkflow(ctx context.Context, workflowID string, cutoff time.Time) (int64, error) {
	maxSequence := int64(math.MaxInt64)

	metadata, err := j.store.Metadata().MetadataByID(ctx, workflowID)
	if err != nil {
		return 0, err
	}

	if metadata == nil || !metadata.Status.Terminal() {
		// Active workflow: never archive past the latest snapshot, otherwise
		// reconstructing current state would touch cold storage.
		latest, err := j.store.Snapshots().LatestSnapshot(ctx, workflowID)
		if err != nil {
			return 0, err
		}

		if latest == nil {
			return 0, nil
		}

		maxSequence = latest.EventCount
	}

	return j.store.Archive().MoveToArchive(ctx, workflowID, maxSequence, cutoff)
}
