package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence"
)

// ApprovalRepository handles approval request storage. Rows are never
// deleted; terminal requests are retained for audit.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

const approvalColumns = `
	id
  , workflow_id
  , step_id
  , risk_level
  , status
  , approver_id
  , approver_role
  , justification
  , created_at
  , expires_at
  , decided_at
`

// SaveApproval upserts an approval request.
func (r *ApprovalRepository) SaveApproval(ctx context.Context, request *models.ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			approver_id = EXCLUDED.approver_id,
			approver_role = EXCLUDED.approver_role,
			justification = EXCLUDED.justification,
			decided_at = EXCLUDED.decided_at
	`

	_, err := r.db.ExecContext(ctx, query,
		request.ID,
		request.WorkflowID,
		request.StepID,
		string(request.RiskLevel),
		string(request.Status),
		request.ApproverID,
		request.ApproverRole,
		request.Justification,
		request.CreatedAt,
		request.ExpiresAt,
		request.DecidedAt,
	)
	if err != nil {
		return &persistence.ApprovalError{Op: "SaveApproval", ApprovalID: request.ID, Err: err}
	}

	return nil
}

// ApprovalByID returns a request or ErrApprovalNotFound.
func (r *ApprovalRepository) ApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`

	request, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ApprovalError{Op: "ApprovalByID", ApprovalID: id, Err: persistence.ErrApprovalNotFound}
		}

		return nil, &persistence.ApprovalError{Op: "ApprovalByID", ApprovalID: id, Err: err}
	}

	return request, nil
}

// PendingApprovalByStep returns the pending request gating a step, or nil.
func (r *ApprovalRepository) PendingApprovalByStep(ctx context.Context, workflowID, stepID string) (*models.ApprovalRequest, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests
		WHERE workflow_id = $1 AND step_id = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`

	request, err := scanApproval(r.db.QueryRowContext(ctx, query, workflowID, stepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, &persistence.ApprovalError{Op: "PendingApprovalByStep", Err: err}
	}

	return request, nil
}

// ListApprovalsByStatus returns requests in the given status, oldest first.
func (r *ApprovalRepository) ListApprovalsByStatus(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests
		WHERE status = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, &persistence.ApprovalError{Op: "ListApprovalsByStatus", Err: err}
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	requests := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		request, err := scanApproval(rows)
		if err != nil {
			return nil, &persistence.ApprovalError{Op: "ListApprovalsByStatus", Err: err}
		}

		requests = append(requests, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, &persistence.ApprovalError{Op: "ListApprovalsByStatus", Err: err}
	}

	return requests, nil
}

// MarkExpired transitions a pending request to expired. The conditional
// UPDATE guarantees the transition happens exactly once even under
// concurrent sweeps.
func (r *ApprovalRepository) MarkExpired(ctx context.Context, id string, decidedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE approval_requests SET status = 'expired', decided_at = $2 WHERE id = $1 AND status = 'pending'",
		id, decidedAt)
	if err != nil {
		return false, &persistence.ApprovalError{Op: "MarkExpired", ApprovalID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, &persistence.ApprovalError{Op: "MarkExpired", ApprovalID: id, Err: err}
	}

	return affected > 0, nil
}

func scanApproval(row rowScanner) (*models.ApprovalRequest, error) {
	var (
		request       models.ApprovalRequest
		risk          string
		status        string
		approverID    sql.NullString
		approverRole  sql.NullString
		justification sql.NullString
		decidedAt     sql.NullTime
	)

	err := row.Scan(
		&request.ID,
		&request.WorkflowID,
		&request.StepID,
		&risk,
		&status,
		&approverID,
		&approverRole,
		&justification,
		&request.CreatedAt,
		&request.ExpiresAt,
		&decidedAt,
	)
	if err != nil {
		return nil, err
	}

	request.RiskLevel = models.RiskLevel(risk)
	request.Status = models.ApprovalStatus(status)
	request.ApproverID = approverID.String
	request.ApproverRole = approverRole.String
	request.Justification = justification.String
	request.CreatedAt = request.CreatedAt.UTC()
	request.ExpiresAt = request.ExpiresAt.UTC()

	if decidedAt.Valid {
		at := decidedAt.Time.UTC()
		request.DecidedAt = &at
	}

	return &request, nil
}
