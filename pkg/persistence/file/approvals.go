package file

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence"
)

// ApprovalRepository stores one JSON file per approval request.
type ApprovalRepository struct {
	p  *Persistence
	mu sync.Mutex
}

func (r *ApprovalRepository) path(id string) string {
	return filepath.Join(r.p.root, "approvals", id+".json")
}

// SaveApproval upserts an approval request.
func (r *ApprovalRepository) SaveApproval(ctx context.Context, request *models.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.path(request.ID), request)
}

// ApprovalByID returns a request or ErrApprovalNotFound.
func (r *ApprovalRepository) ApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request := &models.ApprovalRequest{}

	found, err := readJSON(r.path(id), request)
	if err != nil {
		return nil, &persistence.ApprovalError{Op: "ApprovalByID", ApprovalID: id, Err: err}
	}

	if !found {
		return nil, &persistence.ApprovalError{Op: "ApprovalByID", ApprovalID: id, Err: persistence.ErrApprovalNotFound}
	}

	return request, nil
}

func (r *ApprovalRepository) list(ctx context.Context) ([]*models.ApprovalRequest, error) {
	root := os.DirFS(filepath.Join(r.p.root, "approvals"))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, err
	}

	requests := make([]*models.ApprovalRequest, 0, len(files))

	for _, file := range files {
		request := &models.ApprovalRequest{}

		found, err := readJSON(filepath.Join(r.p.root, "approvals", file), request)
		if err != nil {
			return nil, err
		}

		if found {
			requests = append(requests, request)
		}
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})

	return requests, nil
}

// PendingApprovalByStep returns the pending request gating a step, or nil.
func (r *ApprovalRepository) PendingApprovalByStep(ctx context.Context, workflowID, stepID string) (*models.ApprovalRequest, error) {
	requests, err := r.list(ctx)
	if err != nil {
		return nil, &persistence.ApprovalError{Op: "PendingApprovalByStep", Err: err}
	}

	for _, request := range requests {
		if request.WorkflowID == workflowID && request.StepID == stepID && request.Status == models.ApprovalStatusPending {
			return request, nil
		}
	}

	return nil, nil
}

// ListApprovalsByStatus returns requests in the given status, oldest first.
func (r *ApprovalRepository) ListApprovalsByStatus(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error) {
	requests, err := r.list(ctx)
	if err != nil {
		return nil, &persistence.ApprovalError{Op: "ListApprovalsByStatus", Err: err}
	}

	filtered := make([]*models.ApprovalRequest, 0, len(requests))

	for _, request := range requests {
		if request.Status == status {
			filtered = append(filtered, request)
		}
	}

	return filtered, nil
}

// MarkExpired transitions a pending request to expired exactly once.
func (r *ApprovalRepository) MarkExpired(ctx context.Context, id string, decidedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request := &models.ApprovalRequest{}

	found, err := readJSON(r.path(id), request)
	if err != nil {
		return false, &persistence.ApprovalError{Op: "MarkExpired", ApprovalID: id, Err: err}
	}

	if !found {
		return false, &persistence.ApprovalError{Op: "MarkExpired", ApprovalID: id, Err: persistence.ErrApprovalNotFound}
	}

	if request.Status != models.ApprovalStatusPending {
		return false, nil
	}

	request.Status = models.ApprovalStatusExpired
	request.DecidedAt = &decidedAt

	err = writeJSON(r.path(id), request)
	if err != nil {
		return false, &persistence.ApprovalError{Op: "MarkExpired", ApprovalID: id, Err: err}
	}

	return true, nil
}
