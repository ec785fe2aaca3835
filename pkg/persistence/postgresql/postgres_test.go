package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence"
	"github.com/chroniclehq/chronicle/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_events", "archived_events", "workflow_snapshots", "approval_requests", "workflow_metadata", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("chronicle_test"),
			postgres.WithUsername("chronicle"),
			postgres.WithPassword("chronicle"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func appendEvents(ctx context.Context, t *testing.T, p *postgresql.Persistence, workflowID string, n int, base time.Time) {
	t.Helper()

	for i := 1; i <= n; i++ {
		event := models.NewWorkflowEvent(workflowID, models.ActionAnnotate, "step", map[string]any{"n": i})
		event.Sequence = int64(i)
		event.Timestamp = base.Add(time.Duration(i) * time.Minute)
		event.Signature = "sig"

		require.NoError(t, p.Events().Append(ctx, event, int64(i-1)))
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'workflow_events')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "workflow_events table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'archived_events')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "archived_events table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestEventRepository_AppendAndList(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	appendEvents(ctx, t, p, "wf-1", 3, base)

	events, err := p.Events().ListEvents(ctx, "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for i, event := range events {
		assert.Equal(t, int64(i+1), event.Sequence)
		assert.Equal(t, models.ActionAnnotate, event.Action)
		assert.Equal(t, "sig", event.Signature)
	}

	delta, err := p.Events().ListEvents(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.Equal(t, int64(3), delta[0].Sequence)

	count, err := p.Events().CountEvents(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestEventRepository_SequenceConflict(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	appendEvents(ctx, t, p, "wf-1", 2, time.Now().UTC())

	stale := models.NewWorkflowEvent("wf-1", models.ActionAnnotate, "step", nil)
	stale.Sequence = 2
	stale.Timestamp = time.Now().UTC()
	stale.Signature = "sig"

	err := p.Events().Append(ctx, stale, 1)
	require.Error(t, err)
	assert.True(t, persistence.IsSequenceConflict(err))
}

func TestEventRepository_ListEventsInRange(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	appendEvents(ctx, t, p, "wf-1", 5, base)

	events, err := p.Events().ListEventsInRange(ctx, "wf-1", base.Add(2*time.Minute), base.Add(4*time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].Sequence)
	assert.Equal(t, int64(4), events[2].Sequence)
}

func TestEventRepository_WorkflowIDs(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	base := time.Now().UTC()

	appendEvents(ctx, t, p, "wf-1", 1, base)
	appendEvents(ctx, t, p, "wf-2", 1, base)

	ids, err := p.Events().WorkflowIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wf-1", "wf-2"}, ids)
}

func TestEventRepository_MoveToArchive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	appendEvents(ctx, t, p, "wf-1", 5, base)

	cutoff := base.Add(3*time.Minute + time.Second)

	moved, err := p.Archive().MoveToArchive(ctx, "wf-1", 5, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)

	hot, err := p.Events().ListEvents(ctx, "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, hot, 2)
	assert.Equal(t, int64(4), hot[0].Sequence)

	archived, err := p.Archive().ListArchivedEvents(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, archived, 3)
	assert.Equal(t, int64(1), archived[0].Sequence)

	// Re-running finds nothing left below the cutoff.
	moved, err = p.Archive().MoveToArchive(ctx, "wf-1", 5, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved)
}

func TestSnapshotRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	state := models.NewWorkflowState("wf-1")
	state.Status = models.WorkflowStatusRunning
	state.CurrentStep = "deploy"

	first := models.NewSnapshot("wf-1", state, 10)
	second := models.NewSnapshot("wf-1", state, 20)

	require.NoError(t, p.Snapshots().SaveSnapshot(ctx, first))
	require.NoError(t, p.Snapshots().SaveSnapshot(ctx, second))

	latest, err := p.Snapshots().LatestSnapshot(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, int64(20), latest.EventCount)
	assert.Equal(t, models.WorkflowStatusRunning, latest.State.Status)
	assert.Equal(t, "deploy", latest.State.CurrentStep)

	all, err := p.Snapshots().ListSnapshots(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(20), all[0].EventCount)

	require.NoError(t, p.Snapshots().DeleteSnapshot(ctx, second.ID))

	latest, err = p.Snapshots().LatestSnapshot(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.ID, latest.ID)

	none, err := p.Snapshots().LatestSnapshot(ctx, "wf-absent")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestApprovalRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	request := models.NewApprovalRequest("wf-1", "deploy", models.RiskLevelHigh, time.Hour)
	require.NoError(t, p.Approvals().SaveApproval(ctx, request))

	byID, err := p.Approvals().ApprovalByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, byID.Status)
	assert.Equal(t, models.RiskLevelHigh, byID.RiskLevel)

	pending, err := p.Approvals().PendingApprovalByStep(ctx, "wf-1", "deploy")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, request.ID, pending.ID)

	none, err := p.Approvals().PendingApprovalByStep(ctx, "wf-1", "other-step")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = p.Approvals().ApprovalByID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsApprovalNotFound(err))

	byStatus, err := p.Approvals().ListApprovalsByStatus(ctx, models.ApprovalStatusPending)
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)
}

func TestApprovalRepository_MarkExpired(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	request := models.NewApprovalRequest("wf-1", "deploy", models.RiskLevelHigh, time.Hour)
	require.NoError(t, p.Approvals().SaveApproval(ctx, request))

	now := time.Now().UTC()

	expired, err := p.Approvals().MarkExpired(ctx, request.ID, now)
	require.NoError(t, err)
	assert.True(t, expired)

	// Only one caller wins.
	expired, err = p.Approvals().MarkExpired(ctx, request.ID, now)
	require.NoError(t, err)
	assert.False(t, expired)

	byID, err := p.Approvals().ApprovalByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusExpired, byID.Status)
}

func TestMetadataRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	metadata := &models.WorkflowMetadata{
		WorkflowID:          "wf-1",
		Status:              models.WorkflowStatusRunning,
		TotalEvents:         7,
		StepsCompletedCount: 2,
		LatestSnapshotID:    uuid.NewString(),
		UpdatedAt:           time.Now().UTC(),
	}

	require.NoError(t, p.Metadata().SaveMetadata(ctx, metadata))

	stored, err := p.Metadata().MetadataByID(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(7), stored.TotalEvents)
	assert.Equal(t, 2, stored.StepsCompletedCount)
	assert.Equal(t, metadata.LatestSnapshotID, stored.LatestSnapshotID)

	metadata.Status = models.WorkflowStatusCompleted
	metadata.TotalEvents = 9
	require.NoError(t, p.Metadata().SaveMetadata(ctx, metadata))

	stored, err = p.Metadata().MetadataByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, stored.Status)
	assert.Equal(t, int64(9), stored.TotalEvents)

	all, err := p.Metadata().ListMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	absent, err := p.Metadata().MetadataByID(ctx, "wf-absent")
	require.NoError(t, err)
	assert.Nil(t, absent)
}
