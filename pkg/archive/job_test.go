package archive

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence/file"
)

func newJob(t *testing.T, retentionDays int) (*Job, *file.Persistence) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return NewJob(store, logger, retentionDays), store
}

func seedEvents(t *testing.T, store *file.Persistence, workflowID string, n int, base time.Time) {
	t.Helper()

	for i := 1; i <= n; i++ {
		event := models.NewWorkflowEvent(workflowID, models.ActionAnnotate, "", map[string]any{"comment": "n"})
		event.Sequence = int64(i)
		event.Timestamp = base.Add(time.Duration(i) * time.Minute)

		require.NoError(t, store.Events().Append(context.Background(), event, int64(i-1)))
	}
}

func saveMetadata(t *testing.T, store *file.Persistence, workflowID string, status models.WorkflowStatus) {
	t.Helper()

	require.NoError(t, store.Metadata().SaveMetadata(context.Background(), &models.WorkflowMetadata{
		WorkflowID: workflowID,
		Status:     status,
		UpdatedAt:  time.Now().UTC(),
	}))
}

func TestRun_ArchivesTerminalWorkflowsPastCutoff(t *testing.T) {
	job, store := newJob(t, 90)
	ctx := context.Background()

	old := time.Now().UTC().Add(-120 * 24 * time.Hour)

	seedEvents(t, store, "wf-done", 5, old)
	saveMetadata(t, store, "wf-done", models.WorkflowStatusCompleted)

	moved, err := job.Run(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(5), moved)

	hot, err := store.Events().ListEvents(ctx, "wf-done", 0)
	require.NoError(t, err)
	assert.Empty(t, hot)

	archived, err := store.Archive().ListArchivedEvents(ctx, "wf-done")
	require.NoError(t, err)
	assert.Len(t, archived, 5)
}

func TestRun_LeavesRecentEventsHot(t *testing.T) {
	job, store := newJob(t, 90)
	ctx := context.Background()

	seedEvents(t, store, "wf-done", 5, time.Now().UTC().Add(-time.Hour))
	saveMetadata(t, store, "wf-done", models.WorkflowStatusCompleted)

	moved, err := job.Run(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestRun_ActiveWorkflowKeepsPostSnapshotTail(t *testing.T) {
	job, store := newJob(t, 90)
	ctx := context.Background()

	old := time.Now().UTC().Add(-120 * 24 * time.Hour)

	seedEvents(t, store, "wf-active", 15, old)
	saveMetadata(t, store, "wf-active", models.WorkflowStatusRunning)

	// Snapshot covers the first 10 events; only that prefix may move.
	state := models.NewWorkflowState("wf-active")
	require.NoError(t, store.Snapshots().SaveSnapshot(ctx, models.NewSnapshot("wf-active", state, 10)))

	moved, err := job.Run(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(10), moved)

	hot, err := store.Events().ListEvents(ctx, "wf-active", 0)
	require.NoError(t, err)
	require.Len(t, hot, 5)
	assert.Equal(t, int64(11), hot[0].Sequence)
}

func TestRun_ActiveWorkflowWithoutSnapshotIsUntouched(t *testing.T) {
	job, store := newJob(t, 90)
	ctx := context.Background()

	seedEvents(t, store, "wf-active", 5, time.Now().UTC().Add(-120*24*time.Hour))
	saveMetadata(t, store, "wf-active", models.WorkflowStatusRunning)

	moved, err := job.Run(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestRun_IsIdempotent(t *testing.T) {
	job, store := newJob(t, 90)
	ctx := context.Background()

	seedEvents(t, store, "wf-done", 3, time.Now().UTC().Add(-120*24*time.Hour))
	saveMetadata(t, store, "wf-done", models.WorkflowStatusCancelled)

	moved, err := job.Run(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)

	again, err := job.Run(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, again)
}
