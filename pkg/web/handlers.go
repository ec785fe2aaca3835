// Package web exposes the workflow engine over a REST API: event submission,
// state and time-travel queries, approvals, audit reports and chain lookups.
package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/chroniclehq/chronicle/pkg/engine"
	"github.com/chroniclehq/chronicle/pkg/models"
)

type APIHandlers struct {
	engine    *engine.Engine
	validator *validator.Validate
}

func NewAPIHandlers(eng *engine.Engine, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    eng,
		validator: validate,
	}
}

// Register mounts every route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Post("/workflows/:id/events", h.EmitEvent)
	app.Get("/workflows/:id/state", h.GetState)
	app.Get("/workflows/:id/events", h.ListEvents)
	app.Get("/workflows/:id/audit", h.GetAuditReport)
	app.Get("/workflows/:id/chain", h.GetChain)
	app.Post("/workflows/:id/children", h.StartChild)
	app.Post("/workflows/:id/cancel", h.CancelWorkflow)
	app.Post("/workflows/:id/steps/:stepID/retry", h.RetryStep)
	app.Post("/workflows/:id/annotations", h.Annotate)
	app.Get("/approvals", h.ListApprovals)
	app.Post("/approvals/:id/decision", h.DecideApproval)
}

// EmitEvent appends one event to a workflow's log.
func (h *APIHandlers) EmitEvent(c fiber.Ctx) error {
	workflowID := c.Params("id")

	var req EmitEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	event, err := h.engine.Emit(c.Context(), workflowID, models.Action(req.Action), req.Payload)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(eventResponse(event))
}

// GetState returns the current state, or a past state when the "at" query
// parameter carries an RFC3339 timestamp.
func (h *APIHandlers) GetState(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if atStr := c.Query("at"); atStr != "" {
		at, err := time.Parse(time.RFC3339, atStr)
		if err != nil {
			return badRequest(c, "Invalid 'at' timestamp: "+err.Error())
		}

		state, err := h.engine.StateAt(c.Context(), workflowID, at)
		if err != nil {
			return handleEngineError(c, err)
		}

		return c.JSON(state)
	}

	state, err := h.engine.Reconstruct(c.Context(), workflowID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(state)
}

// ListEvents returns a workflow's events, filterable by action, step and
// time range.
func (h *APIHandlers) ListEvents(c fiber.Ctx) error {
	workflowID := c.Params("id")

	filter := engine.EventFilter{
		Action:          models.Action(c.Query("action")),
		StepID:          c.Query("step_id"),
		IncludeArchived: c.Query("include_archived") == "true",
	}

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return badRequest(c, "Invalid 'from' timestamp: "+err.Error())
		}

		filter.From = from
	}

	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return badRequest(c, "Invalid 'to' timestamp: "+err.Error())
		}

		filter.To = to
	}

	events, err := h.engine.ListEvents(c.Context(), workflowID, filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_id": workflowID,
		"events":      events,
		"count":       len(events),
	})
}

// GetAuditReport verifies the signature chain and returns the aggregate
// report. A tampered chain answers 409.
func (h *APIHandlers) GetAuditReport(c fiber.Ctx) error {
	workflowID := c.Params("id")

	report, err := h.engine.AuditReport(c.Context(), workflowID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(report)
}

// GetChain returns the workflow's parent/child lineage, root first.
func (h *APIHandlers) GetChain(c fiber.Ctx) error {
	workflowID := c.Params("id")

	chain, err := h.engine.Chain(c.Context(), workflowID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"chain": chain})
}

// StartChild spawns a child workflow linked to the parent.
func (h *APIHandlers) StartChild(c fiber.Ctx) error {
	parentID := c.Params("id")

	var req StartChildRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	event, err := h.engine.StartChild(c.Context(), parentID, engine.ChildStart{
		ChildWorkflowID: req.ChildWorkflowID,
		Template:        req.Template,
		FirstStep:       req.FirstStep,
		Context:         req.Context,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(eventResponse(event))
}

// CancelWorkflow cancels a workflow and reports the cleanup outcome.
func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")

	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	summary, err := h.engine.Cancel(c.Context(), workflowID, req.Reason, req.CancelledBy)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(summary)
}

// RetryStep schedules another attempt for a failed step.
func (h *APIHandlers) RetryStep(c fiber.Ctx) error {
	workflowID := c.Params("id")
	stepID := c.Params("stepID")

	var req RetryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	status, err := h.engine.RetryFromStep(c.Context(), workflowID, stepID, req.MaxRetries)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(status)
}

// Annotate attaches an operator comment to the log.
func (h *APIHandlers) Annotate(c fiber.Ctx) error {
	workflowID := c.Params("id")

	var req AnnotateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	event, err := h.engine.Annotate(c.Context(), workflowID, req.EventID, req.Comment, req.Author)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(eventResponse(event))
}

// ListApprovals lists approval requests by status (default pending).
func (h *APIHandlers) ListApprovals(c fiber.Ctx) error {
	status := models.ApprovalStatus(c.Query("status", string(models.ApprovalStatusPending)))

	requests, err := h.engine.Gate().ListByStatus(c.Context(), status)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"approvals": requests,
		"count":     len(requests),
	})
}

// DecideApproval records a human decision on a pending approval request.
func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	approvalID := c.Params("id")

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.engine.DecideApproval(
		c.Context(), approvalID, req.Decision, req.ApproverID, req.ApproverRole, req.Justification, req.OnReject)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(request)
}
