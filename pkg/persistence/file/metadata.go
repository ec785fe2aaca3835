package file

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// MetadataRepository stores one JSON file per workflow index entry.
type MetadataRepository struct {
	p *Persistence
}

func (r *MetadataRepository) path(workflowID string) string {
	return filepath.Join(r.p.root, "metadata", workflowID+".json")
}

// SaveMetadata upserts the rebuildable index entry for a workflow.
func (r *MetadataRepository) SaveMetadata(ctx context.Context, metadata *models.WorkflowMetadata) error {
	lock := r.p.workflowLock(metadata.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	return writeJSON(r.path(metadata.WorkflowID), metadata)
}

// MetadataByID returns the index entry or nil when absent.
func (r *MetadataRepository) MetadataByID(ctx context.Context, workflowID string) (*models.WorkflowMetadata, error) {
	metadata := &models.WorkflowMetadata{}

	found, err := readJSON(r.path(workflowID), metadata)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return metadata, nil
}

// ListMetadata returns all index entries ordered by workflow ID.
func (r *MetadataRepository) ListMetadata(ctx context.Context) ([]*models.WorkflowMetadata, error) {
	root := os.DirFS(filepath.Join(r.p.root, "metadata"))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	entries := make([]*models.WorkflowMetadata, 0, len(files))

	for _, file := range files {
		metadata := &models.WorkflowMetadata{}

		found, err := readJSON(filepath.Join(r.p.root, "metadata", file), metadata)
		if err != nil {
			return nil, err
		}

		if found {
			entries = append(entries, metadata)
		}
	}

	return entries, nil
}
