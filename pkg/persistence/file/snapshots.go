package file

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// SnapshotRepository stores all snapshots of a workflow in one JSON file.
type SnapshotRepository struct {
	p *Persistence
}

func (r *SnapshotRepository) path(workflowID string) string {
	return filepath.Join(r.p.root, "snapshots", workflowID+".json")
}

func (r *SnapshotRepository) load(workflowID string) ([]*models.Snapshot, error) {
	snapshots := make([]*models.Snapshot, 0)

	_, err := readJSON(r.path(workflowID), &snapshots)
	if err != nil {
		return nil, err
	}

	return snapshots, nil
}

// SaveSnapshot appends a snapshot to the workflow's snapshot file.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	lock := r.p.workflowLock(snapshot.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	snapshots, err := r.load(snapshot.WorkflowID)
	if err != nil {
		return err
	}

	snapshots = append(snapshots, snapshot)

	return writeJSON(r.path(snapshot.WorkflowID), snapshots)
}

// LatestSnapshot returns the snapshot with the highest event count, or nil.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context, workflowID string) (*models.Snapshot, error) {
	snapshots, err := r.ListSnapshots(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if len(snapshots) == 0 {
		return nil, nil
	}

	return snapshots[0], nil
}

// ListSnapshots returns snapshots ordered by event count descending.
func (r *SnapshotRepository) ListSnapshots(ctx context.Context, workflowID string) ([]*models.Snapshot, error) {
	snapshots, err := r.load(workflowID)
	if err != nil {
		return nil, err
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].EventCount > snapshots[j].EventCount
	})

	return snapshots, nil
}

// DeleteSnapshot removes one snapshot by ID. Snapshots are a derived cache,
// so deletion does not touch the event log.
func (r *SnapshotRepository) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	ids, err := r.p.events.WorkflowIDs(ctx)
	if err != nil {
		return err
	}

	for _, workflowID := range ids {
		lock := r.p.workflowLock(workflowID)
		lock.Lock()

		snapshots, err := r.load(workflowID)
		if err != nil {
			lock.Unlock()

			return err
		}

		remaining := make([]*models.Snapshot, 0, len(snapshots))
		found := false

		for _, snapshot := range snapshots {
			if snapshot.ID == snapshotID {
				found = true

				continue
			}

			remaining = append(remaining, snapshot)
		}

		if found {
			err = writeJSON(r.path(workflowID), remaining)
			lock.Unlock()

			return err
		}

		lock.Unlock()
	}

	return nil
}
