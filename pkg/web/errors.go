package web

import (
	"errors"

	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/services"
	"github.com/dukex/conduit/pkg/triggers/webhook"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps service, persistence and trigger errors to problems.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, webhook.ErrMissingSignature), errors.Is(err, webhook.ErrInvalidSignature):
		return problem(c, fiber.StatusUnauthorized, "invalid_signature", err.Error())

	case errors.Is(err, webhook.ErrInvalidPayload):
		return badRequest(c, err.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err), errors.Is(err, engine.ErrScenarioNotActive):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case errors.Is(err, persistence.ErrScenarioNotFound):
		return problem(c, fiber.StatusNotFound, "scenario_not_found", "scenario not found")

	case errors.Is(err, persistence.ErrConnectionNotFound):
		return problem(c, fiber.StatusNotFound, "connection_not_found", "connection not found")

	case errors.Is(err, persistence.ErrNodeDefinitionNotFound):
		return problem(c, fiber.StatusNotFound, "node_not_found", "node definition not found")

	default:
		return internalError(c, err)
	}
}
