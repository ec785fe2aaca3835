package approval_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclehq/chronicle/pkg/approval"
	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence/file"
)

func newGate(t *testing.T) *approval.Gate {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	assessor, err := approval.NewAssessor(approval.DefaultPolicy())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return approval.NewGate(store.Approvals(), assessor, logger)
}

func TestRequire_AutoApprovesLowRisk(t *testing.T) {
	gate := newGate(t)

	request, err := gate.Require(context.Background(), "wf-1", "build", "build", "dev", "")
	require.NoError(t, err)
	assert.Nil(t, request)
}

func TestRequire_GatesProductionStep(t *testing.T) {
	gate := newGate(t)

	request, err := gate.Require(context.Background(), "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)
	require.NotNil(t, request)

	assert.Equal(t, models.ApprovalStatusPending, request.Status)
	assert.Equal(t, models.RiskLevelHigh, request.RiskLevel)
	assert.Equal(t, "deploy", request.StepID)
	assert.WithinDuration(t, time.Now().UTC().Add(60*time.Minute), request.ExpiresAt, 5*time.Second)
}

func TestRequire_DeduplicatesPendingRequests(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	first, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	second, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestDecide_Approve(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	request, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	decided, err := gate.Decide(ctx, request.ID, "approved", "alice", "sre", "change window open")
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)
	assert.Equal(t, "alice", decided.ApproverID)
	assert.Equal(t, "sre", decided.ApproverRole)
	require.NotNil(t, decided.DecidedAt)
}

func TestDecide_RejectsIneligibleRole(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	// delete* maps to critical, which only lead and director may decide.
	request, err := gate.Require(ctx, "wf-1", "wipe", "delete_index", "production", "")
	require.NoError(t, err)

	_, err = gate.Decide(ctx, request.ID, "approved", "alice", "sre", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, approval.ErrIneligibleRole)
}

func TestDecide_TerminalRequestsNeverTransitionAgain(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	request, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	_, err = gate.Decide(ctx, request.ID, "rejected", "alice", "sre", "not in change window")
	require.NoError(t, err)

	_, err = gate.Decide(ctx, request.ID, "approved", "bob", "lead", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, approval.ErrApprovalDecided)
}

func TestDecide_LateDecisionExpiresRequest(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	request, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	// Sweep it past its deadline first.
	expired, err := gate.ExpireDue(ctx, request.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	_, err = gate.Decide(ctx, request.ID, "approved", "alice", "sre", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, approval.ErrApprovalExpired)
}

func TestDecide_UnknownDecision(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	request, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	_, err = gate.Decide(ctx, request.ID, "maybe", "alice", "sre", "")
	require.Error(t, err)
}

func TestExpireDue_TransitionsExactlyOnce(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	request, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	deadline := request.ExpiresAt.Add(time.Second)

	first, err := gate.ExpireDue(ctx, deadline)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, models.ApprovalStatusExpired, first[0].Status)

	// A second sweep finds nothing to transition.
	second, err := gate.ExpireDue(ctx, deadline)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestExpireDue_LeavesFreshRequestsAlone(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	_, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	expired, err := gate.ExpireDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestCancelPending_OnlyTouchesOneWorkflow(t *testing.T) {
	gate := newGate(t)
	ctx := context.Background()

	_, err := gate.Require(ctx, "wf-1", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	other, err := gate.Require(ctx, "wf-2", "deploy", "deploy", "production", "")
	require.NoError(t, err)

	cancelled, err := gate.CancelPending(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	pending, err := gate.ListByStatus(ctx, models.ApprovalStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other.ID, pending[0].ID)
}
