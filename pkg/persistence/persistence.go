// Package persistence provides the storage abstraction for the event log and
// its derived caches (snapshots, approvals, metadata).
package persistence

import (
	"context"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// EventRepository is the append-only event log. Within a workflow, events are
// strictly ordered by the engine-assigned sequence number.
type EventRepository interface {
	// Append persists a signed event. expectedSequence is the optimistic
	// concurrency precondition: the caller's view of the current event count.
	// A stale precondition fails with ErrSequenceConflict and the event is
	// not persisted.
	Append(ctx context.Context, event *models.WorkflowEvent, expectedSequence int64) error

	// ListEvents returns the ordered events of a workflow with
	// sequence > afterSequence. afterSequence 0 means the full log.
	ListEvents(ctx context.Context, workflowID string, afterSequence int64) ([]*models.WorkflowEvent, error)

	// ListEventsInRange returns ordered events with from <= timestamp <= to.
	ListEventsInRange(ctx context.Context, workflowID string, from, to time.Time) ([]*models.WorkflowEvent, error)

	// CountEvents returns the number of hot (non-archived) events.
	CountEvents(ctx context.Context, workflowID string) (int64, error)

	// WorkflowIDs lists every workflow with at least one hot event.
	WorkflowIDs(ctx context.Context) ([]string, error)
}

// ArchiveRepository moves aged events to cold storage, signatures untouched.
type ArchiveRepository interface {
	// MoveToArchive relocates events of a workflow with
	// timestamp < cutoff AND sequence <= maxSequence, returning how many
	// moved. Running it twice moves nothing the second time.
	MoveToArchive(ctx context.Context, workflowID string, maxSequence int64, cutoff time.Time) (int64, error)

	// ListArchivedEvents returns the ordered cold-storage events of a workflow.
	ListArchivedEvents(ctx context.Context, workflowID string) ([]*models.WorkflowEvent, error)
}

// SnapshotRepository stores (state, event_count) checkpoints.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error

	// LatestSnapshot returns the snapshot with the highest event_count, or
	// (nil, nil) when the workflow has none.
	LatestSnapshot(ctx context.Context, workflowID string) (*models.Snapshot, error)

	// ListSnapshots returns snapshots ordered by event_count descending.
	ListSnapshots(ctx context.Context, workflowID string) ([]*models.Snapshot, error)

	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

// ApprovalRepository stores approval requests. Rows are never deleted.
type ApprovalRepository interface {
	SaveApproval(ctx context.Context, request *models.ApprovalRequest) error
	ApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// PendingApprovalByStep returns the pending request gating a step, or
	// (nil, nil) when there is none.
	PendingApprovalByStep(ctx context.Context, workflowID, stepID string) (*models.ApprovalRequest, error)

	// ListApprovalsByStatus returns requests in the given status, oldest first.
	ListApprovalsByStatus(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error)

	// MarkExpired transitions a request from pending to expired. It reports
	// whether this call performed the transition, so concurrent sweeps expire
	// a request exactly once.
	MarkExpired(ctx context.Context, id string, decidedAt time.Time) (bool, error)
}

// MetadataRepository stores the rebuildable per-workflow index.
type MetadataRepository interface {
	SaveMetadata(ctx context.Context, metadata *models.WorkflowMetadata) error

	// MetadataByID returns (nil, nil) when the workflow has no metadata row.
	MetadataByID(ctx context.Context, workflowID string) (*models.WorkflowMetadata, error)

	ListMetadata(ctx context.Context) ([]*models.WorkflowMetadata, error)
}

// Persistence aggregates the repositories behind one lifecycle.
type Persistence interface {
	Events() EventRepository
	Archive() ArchiveRepository
	Snapshots() SnapshotRepository
	Approvals() ApprovalRepository
	Metadata() MetadataRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
