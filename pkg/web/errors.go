package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/chroniclehq/chronicle/pkg/approval"
	"github.com/chroniclehq/chronicle/pkg/audit"
	"github.com/chroniclehq/chronicle/pkg/engine"
	"github.com/chroniclehq/chronicle/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine and persistence errors onto problem+json
// responses.
func handleEngineError(c fiber.Ctx, err error) error {
	var tampered *audit.TamperedEventError

	switch {
	case engine.IsValidationError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("illegal_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case engine.IsRetryExhausted(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("retry_exhausted").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsSequenceConflict(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("sequence_conflict").
			WithDetail("another writer appended first; reload and retry")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, engine.ErrWorkflowNotFound):
		return notFound(c, "workflow not found")

	case persistence.IsEventNotFound(err):
		return notFound(c, "event not found")

	case persistence.IsApprovalNotFound(err):
		return notFound(c, "approval request not found")

	case errors.Is(err, approval.ErrApprovalExpired):
		problem := problems.NewStatusProblem(410).
			WithInstance(c.Path()).
			WithType("approval_expired").
			WithDetail(err.Error())

		return c.Status(fiber.StatusGone).JSON(problem)

	case errors.Is(err, approval.ErrApprovalDecided):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("approval_decided").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, approval.ErrIneligibleRole):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("ineligible_role").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case errors.As(err, &tampered):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("chain_tampered").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		return internalError(c, err)
	}
}
