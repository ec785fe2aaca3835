package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence"
)

// EventRepository stores each workflow's hot events as one ordered JSON array
// and archived events as a second array under archive/. It implements both
// persistence.EventRepository and persistence.ArchiveRepository.
type EventRepository struct {
	p *Persistence
}

func (r *EventRepository) eventsPath(workflowID string) string {
	return filepath.Join(r.p.root, "events", workflowID+".json")
}

func (r *EventRepository) archivePath(workflowID string) string {
	return filepath.Join(r.p.root, "archive", workflowID+".json")
}

func (r *EventRepository) load(path string) ([]*models.WorkflowEvent, error) {
	events := make([]*models.WorkflowEvent, 0)

	_, err := readJSON(path, &events)
	if err != nil {
		return nil, err
	}

	return events, nil
}

// Append persists a signed event under the workflow's write lock. The stored
// log length is the authoritative sequence counter: a mismatch against
// expectedSequence fails with ErrSequenceConflict.
func (r *EventRepository) Append(ctx context.Context, event *models.WorkflowEvent, expectedSequence int64) error {
	lock := r.p.workflowLock(event.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	events, err := r.load(r.eventsPath(event.WorkflowID))
	if err != nil {
		return persistence.NewEventError("Append", event.WorkflowID, event.ID, err)
	}

	archived, err := r.archivedCount(event.WorkflowID)
	if err != nil {
		return persistence.NewEventError("Append", event.WorkflowID, event.ID, err)
	}

	current := archived + int64(len(events))
	if current != expectedSequence {
		return persistence.NewEventError("Append", event.WorkflowID, event.ID,
			fmt.Errorf("%w: expected sequence %d, log has %d events", persistence.ErrSequenceConflict, expectedSequence, current))
	}

	events = append(events, event.Clone())

	err = writeJSON(r.eventsPath(event.WorkflowID), events)
	if err != nil {
		return persistence.NewEventError("Append", event.WorkflowID, event.ID, err)
	}

	return nil
}

func (r *EventRepository) archivedCount(workflowID string) (int64, error) {
	archived, err := r.load(r.archivePath(workflowID))
	if err != nil {
		return 0, err
	}

	return int64(len(archived)), nil
}

// ListEvents returns ordered hot events with sequence > afterSequence.
func (r *EventRepository) ListEvents(ctx context.Context, workflowID string, afterSequence int64) ([]*models.WorkflowEvent, error) {
	events, err := r.load(r.eventsPath(workflowID))
	if err != nil {
		return nil, persistence.NewEventError("ListEvents", workflowID, "", err)
	}

	filtered := make([]*models.WorkflowEvent, 0, len(events))

	for _, event := range events {
		if event.Sequence > afterSequence {
			filtered = append(filtered, event)
		}
	}

	return filtered, nil
}

// ListEventsInRange returns ordered hot events with from <= ts <= to.
func (r *EventRepository) ListEventsInRange(ctx context.Context, workflowID string, from, to time.Time) ([]*models.WorkflowEvent, error) {
	events, err := r.load(r.eventsPath(workflowID))
	if err != nil {
		return nil, persistence.NewEventError("ListEventsInRange", workflowID, "", err)
	}

	filtered := make([]*models.WorkflowEvent, 0, len(events))

	for _, event := range events {
		if !event.Timestamp.Before(from) && !event.Timestamp.After(to) {
			filtered = append(filtered, event)
		}
	}

	return filtered, nil
}

// CountEvents returns the number of hot events.
func (r *EventRepository) CountEvents(ctx context.Context, workflowID string) (int64, error) {
	events, err := r.load(r.eventsPath(workflowID))
	if err != nil {
		return 0, persistence.NewEventError("CountEvents", workflowID, "", err)
	}

	return int64(len(events)), nil
}

// WorkflowIDs lists every workflow with at least one hot event.
func (r *EventRepository) WorkflowIDs(ctx context.Context) ([]string, error) {
	root := os.DirFS(filepath.Join(r.p.root, "events"))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list event logs: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

// MoveToArchive relocates aged events to the archive file, content unchanged.
func (r *EventRepository) MoveToArchive(ctx context.Context, workflowID string, maxSequence int64, cutoff time.Time) (int64, error) {
	lock := r.p.workflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	events, err := r.load(r.eventsPath(workflowID))
	if err != nil {
		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	archived, err := r.load(r.archivePath(workflowID))
	if err != nil {
		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	remaining := make([]*models.WorkflowEvent, 0, len(events))
	moved := int64(0)

	for _, event := range events {
		if event.Sequence <= maxSequence && event.Timestamp.Before(cutoff) {
			archived = append(archived, event)
			moved++
		} else {
			remaining = append(remaining, event)
		}
	}

	if moved == 0 {
		return 0, nil
	}

	err = writeJSON(r.archivePath(workflowID), archived)
	if err != nil {
		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	err = writeJSON(r.eventsPath(workflowID), remaining)
	if err != nil {
		return 0, persistence.NewEventError("MoveToArchive", workflowID, "", err)
	}

	return moved, nil
}

// ListArchivedEvents returns the ordered cold-storage events of a workflow.
func (r *EventRepository) ListArchivedEvents(ctx context.Context, workflowID string) ([]*models.WorkflowEvent, error) {
	events, err := r.load(r.archivePath(workflowID))
	if err != nil {
		return nil, persistence.NewEventError("ListArchivedEvents", workflowID, "", err)
	}

	return events, nil
}
