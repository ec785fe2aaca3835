package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclehq/chronicle/pkg/approval"
	"github.com/chroniclehq/chronicle/pkg/audit"
	"github.com/chroniclehq/chronicle/pkg/engine"
	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/persistence/file"
	"github.com/chroniclehq/chronicle/pkg/snapshot"
	"github.com/chroniclehq/chronicle/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *engine.Engine) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	signer, err := audit.NewSigner([]byte("test-signing-key"))
	require.NoError(t, err)

	assessor, err := approval.NewAssessor(approval.DefaultPolicy())
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Persistence: store,
		Signer:      signer,
		Snapshots:   snapshot.NewManager(store.Snapshots(), logger, 10, 3),
		Gate:        approval.NewGate(store.Approvals(), assessor, logger),
		Logger:      logger,
	})
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(eng, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return app, eng
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func getJSON(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func startViaAPI(t *testing.T, app *fiber.App, workflowID string) {
	t.Helper()

	resp := postJSON(t, app, "/workflows/"+workflowID+"/events", web.EmitEventRequest{
		Action: "start_workflow",
		Payload: map[string]any{
			"first_step": "build",
			"context":    map[string]any{"environment": "dev"},
		},
	})
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestEmitEvent(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/wf-1/events", web.EmitEventRequest{
		Action: "start_workflow",
		Payload: map[string]any{
			"first_step": "build",
			"context":    map[string]any{"environment": "dev"},
		},
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created web.EventResponse
	decodeBody(t, resp, &created)
	assert.Equal(t, int64(1), created.Sequence)
	assert.Equal(t, "start_workflow", created.Action)
	assert.NotEmpty(t, created.EventID)
}

func TestEmitEvent_ValidatesBody(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/wf-1/events", map[string]any{"payload": map[string]any{}})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmitEvent_IllegalTransitionIs422(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/wf-1/events", web.EmitEventRequest{
		Action:  "complete_step",
		Payload: map[string]any{"step_id": "build"},
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetState(t *testing.T) {
	app, _ := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	resp := getJSON(t, app, "/workflows/wf-1/state")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var state models.WorkflowState
	decodeBody(t, resp, &state)
	assert.Equal(t, models.WorkflowStatusRunning, state.Status)
	assert.Equal(t, "build", state.CurrentStep)
}

func TestGetState_UnknownWorkflowIs404(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := getJSON(t, app, "/workflows/wf-ghost/state")
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetState_TimeTravel(t *testing.T) {
	app, eng := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	events, err := eng.ListEvents(context.Background(), "wf-1", engine.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	before := events[0].Timestamp.Add(-time.Second).Format(time.RFC3339)

	resp := getJSON(t, app, "/workflows/wf-1/state?at="+before)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var state models.WorkflowState
	decodeBody(t, resp, &state)
	assert.Equal(t, models.WorkflowStatusPending, state.Status)
}

func TestGetState_RejectsBadTimestamp(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := getJSON(t, app, "/workflows/wf-1/state?at=yesterday")
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListEvents(t *testing.T) {
	app, _ := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	resp := getJSON(t, app, "/workflows/wf-1/events?action=start_workflow")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Count  int                     `json:"count"`
		Events []*models.WorkflowEvent `json:"events"`
	}

	decodeBody(t, resp, &result)
	assert.Equal(t, 1, result.Count)
}

func TestCancelWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	resp := postJSON(t, app, "/workflows/wf-1/cancel", web.CancelRequest{
		Reason:      "superseded",
		CancelledBy: "alice",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary engine.CleanupSummary
	decodeBody(t, resp, &summary)
	assert.NotNil(t, summary.Event)

	state := getJSON(t, app, "/workflows/wf-1/state")

	var current models.WorkflowState
	decodeBody(t, state, &current)
	assert.Equal(t, models.WorkflowStatusCancelled, current.Status)
}

func TestRetryStep(t *testing.T) {
	app, _ := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	fail := postJSON(t, app, "/workflows/wf-1/events", web.EmitEventRequest{
		Action:  "fail_step",
		Payload: map[string]any{"step_id": "build", "error": "timeout"},
	})
	defer func() { _ = fail.Body.Close() }()
	require.Equal(t, http.StatusCreated, fail.StatusCode)

	resp := postJSON(t, app, "/workflows/wf-1/steps/build/retry", web.RetryRequest{})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status engine.RetryStatus
	decodeBody(t, resp, &status)
	assert.Equal(t, 1, status.Attempt)
	assert.Equal(t, engine.DefaultMaxRetries, status.MaxRetries)
}

func TestAnnotate(t *testing.T) {
	app, _ := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	resp := postJSON(t, app, "/workflows/wf-1/annotations", web.AnnotateRequest{
		Comment: "reviewed before resume",
		Author:  "alice",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAnnotate_UnknownEventIs404(t *testing.T) {
	app, _ := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	resp := postJSON(t, app, "/workflows/wf-1/annotations", web.AnnotateRequest{
		EventID: "no-such-event",
		Comment: "dangling reference",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditReport(t *testing.T) {
	app, _ := setupTestApp(t)

	startViaAPI(t, app, "wf-1")

	resp := getJSON(t, app, "/workflows/wf-1/audit")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report audit.Report
	decodeBody(t, resp, &report)
	assert.Equal(t, "wf-1", report.WorkflowID)
	assert.Equal(t, 1, report.TotalEvents)
}

func TestApprovalEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	// A production step is gated on the high tier.
	resp := postJSON(t, app, "/workflows/wf-1/events", web.EmitEventRequest{
		Action: "start_workflow",
		Payload: map[string]any{
			"first_step": "deploy",
			"context":    map[string]any{"environment": "production"},
		},
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	list := getJSON(t, app, "/approvals?status=pending")
	require.Equal(t, http.StatusOK, list.StatusCode)

	var pending struct {
		Count     int                       `json:"count"`
		Approvals []*models.ApprovalRequest `json:"approvals"`
	}

	decodeBody(t, list, &pending)
	require.Equal(t, 1, pending.Count)

	decision := postJSON(t, app, "/approvals/"+pending.Approvals[0].ID+"/decision", web.DecisionRequest{
		Decision:     "approved",
		ApproverID:   "alice",
		ApproverRole: "sre",
	})
	assert.Equal(t, http.StatusOK, decision.StatusCode)

	var decided models.ApprovalRequest
	decodeBody(t, decision, &decided)
	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)

	// Deciding again conflicts.
	repeat := postJSON(t, app, "/approvals/"+pending.Approvals[0].ID+"/decision", web.DecisionRequest{
		Decision:     "rejected",
		ApproverID:   "bob",
		ApproverRole: "lead",
	})
	defer func() { _ = repeat.Body.Close() }()

	assert.Equal(t, http.StatusConflict, repeat.StatusCode)
}

func TestDecideApproval_IneligibleRoleIs403(t *testing.T) {
	app, eng := setupTestApp(t)

	_, err := eng.Emit(context.Background(), "wf-1", models.ActionStartWorkflow, map[string]any{
		"first_step": "wipe",
		"context":    map[string]any{"environment": "production"},
	})
	require.NoError(t, err)

	list := getJSON(t, app, "/approvals?status=pending")

	var pending struct {
		Approvals []*models.ApprovalRequest `json:"approvals"`
	}

	decodeBody(t, list, &pending)
	require.Len(t, pending.Approvals, 1)

	resp := postJSON(t, app, "/approvals/"+pending.Approvals[0].ID+"/decision", web.DecisionRequest{
		Decision:     "approved",
		ApproverID:   "alice",
		ApproverRole: "intern",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
