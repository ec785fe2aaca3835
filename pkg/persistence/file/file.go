// Package file provides JSON file-based persistence for development and tests.
// Events are stored one file per workflow; appends are serialized per workflow
// and written atomically via rename.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chroniclehq/chronicle/pkg/persistence"
)

// Persistence implements the persistence layer on the local filesystem.
type Persistence struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	events    *EventRepository
	snapshots *SnapshotRepository
	approvals *ApprovalRepository
	metadata  *MetadataRepository
}

// NewPersistence creates the directory layout under root.
func NewPersistence(root string) (*Persistence, error) {
	p := &Persistence{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}

	for _, dir := range []string{"events", "archive", "snapshots", "approvals", "metadata"} {
		err := os.MkdirAll(filepath.Join(root, dir), 0o755)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	p.events = &EventRepository{p: p}
	p.snapshots = &SnapshotRepository{p: p}
	p.approvals = &ApprovalRepository{p: p}
	p.metadata = &MetadataRepository{p: p}

	return p, nil
}

func (p *Persistence) Events() persistence.EventRepository {
	return p.events
}

func (p *Persistence) Archive() persistence.ArchiveRepository {
	return p.events
}

func (p *Persistence) Snapshots() persistence.SnapshotRepository {
	return p.snapshots
}

func (p *Persistence) Approvals() persistence.ApprovalRepository {
	return p.approvals
}

func (p *Persistence) Metadata() persistence.MetadataRepository {
	return p.metadata
}

// HealthCheck verifies the root directory is accessible.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

// workflowLock returns the mutex serializing writes for one workflow.
func (p *Persistence) workflowLock(workflowID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[workflowID] = lock
	}

	return lock
}

// readJSON loads a JSON file into out. Missing files leave out untouched and
// report found=false.
func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return true, nil
}

// writeJSON writes atomically: marshal, write temp file, rename.
func writeJSON(path string, in any) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp := path + ".tmp"

	err = os.WriteFile(tmp, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}

	return nil
}
