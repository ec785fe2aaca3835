// Package snapshot bounds replay cost by checkpointing (state, event_count)
// pairs every N events and pruning old checkpoints.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence"
)

const (
	// DefaultInterval checkpoints every 10 events.
	DefaultInterval = 10
	// DefaultKeep retains the 3 most recent snapshots per workflow.
	DefaultKeep = 3
)

// Manager creates and prunes snapshots. Snapshots are a derived cache: losing
// them costs replay time, never correctness.
type Manager struct {
	snapshots persistence.SnapshotRepository
	logger    *slog.Logger
	interval  int64
	keep      int
}

// NewManager creates a manager. Non-positive interval or keep fall back to
// the defaults.
func NewManager(snapshots persistence.SnapshotRepository, logger *slog.Logger, interval int64, keep int) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if keep <= 0 {
		keep = DefaultKeep
	}

	return &Manager{
		snapshots: snapshots,
		logger:    logger,
		interval:  interval,
		keep:      keep,
	}
}

// ShouldSnapshot reports whether a checkpoint is due at eventCount.
func (m *Manager) ShouldSnapshot(eventCount int64) bool {
	return eventCount > 0 && eventCount%m.interval == 0
}

// Create persists a checkpoint of state as of eventCount replayed events,
// then prunes old checkpoints. Callers must hold the workflow's write lock so
// the (state, event_count) pair stays consistent with the log.
func (m *Manager) Create(ctx context.Context, workflowID string, state *models.WorkflowState, eventCount int64) (*models.Snapshot, error) {
	snap := models.NewSnapshot(workflowID, state, eventCount)

	err := m.snapshots.SaveSnapshot(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot for workflow %s at event %d: %w", workflowID, eventCount, err)
	}

	m.logger.InfoContext(ctx, "Snapshot created",
		"workflow_id", workflowID, "snapshot_id", snap.ID, "event_count", eventCount)

	err = m.PruneOld(ctx, workflowID)
	if err != nil {
		// Pruning failures leave extra cache entries behind; the checkpoint
		// itself succeeded.
		m.logger.WarnContext(ctx, "Failed to prune old snapshots", "workflow_id", workflowID, "error", err)
	}

	return snap, nil
}

// Latest returns the snapshot with the highest event_count, or nil.
func (m *Manager) Latest(ctx context.Context, workflowID string) (*models.Snapshot, error) {
	snap, err := m.snapshots.LatestSnapshot(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot for workflow %s: %w", workflowID, err)
	}

	return snap, nil
}

// PruneOld deletes all but the most recent keep snapshots.
func (m *Manager) PruneOld(ctx context.Context, workflowID string) error {
	snapshots, err := m.snapshots.ListSnapshots(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list snapshots for workflow %s: %w", workflowID, err)
	}

	if len(snapshots) <= m.keep {
		return nil
	}

	for _, snap := range snapshots[m.keep:] {
		err = m.snapshots.DeleteSnapshot(ctx, snap.ID)
		if err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", snap.ID, err)
		}

		m.logger.DebugContext(ctx, "Snapshot pruned", "workflow_id", workflowID, "snapshot_id", snap.ID)
	}

	return nil
}
