package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/docstream/queryengine/pkg/canvas"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/services"
	"github.com/docstream/queryengine/pkg/usage"
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

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("missing_identity").
		WithDetail(detail)

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func unprocessable(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(422).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// rejectionResponse renders a deletion guard rejection. In-use rejections
// are conflicts the caller can resolve; access denials and data
// inconsistencies get their own statuses so clients do not retry them as if
// removing a reference would help.
func rejectionResponse(c fiber.Ctx, rejection *services.RejectionError) error {
	status := fiber.StatusConflict
	problemType := "entity_in_use"

	switch rejection.Code {
	case services.CodeAccessDenied:
		status = fiber.StatusForbidden
		problemType = "access_denied"
	case services.CodeDataInconsistency:
		status = fiber.StatusInternalServerError
		problemType = "data_inconsistency"
	}

	return c.Status(status).JSON(fiber.Map{
		"type":             problemType,
		"status":           status,
		"detail":           rejection.Message,
		"instance":         c.Path(),
		"code":             rejection.Code,
		"locations":        rejection.Locations,
		"required_actions": rejection.RequiredActions,
	})
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	if rejection, ok := services.IsRejection(err); ok {
		return rejectionResponse(c, rejection)
	}

	var (
		parseErr   *canvas.ParseError
		unreadable *usage.UnreadableCanvasError
	)

	switch {
	case errors.As(err, &unreadable):
		return unprocessable(c, "canvas_unreadable", unreadable.Error())

	case errors.As(err, &parseErr):
		return unprocessable(c, "canvas_unreadable", parseErr.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsDuplicateName(err):
		return conflict(c, "duplicate_name", err.Error())

	case persistence.IsVersionConflict(err):
		return conflict(c, "version_conflict", "the entity changed since it was read, reload and retry")

	case errors.Is(err, services.ErrQueryArchived):
		return conflict(c, "query_archived", err.Error())

	case persistence.IsQueryNotFound(err):
		return notFound(c, "query not found")

	case persistence.IsConstantNotFound(err):
		return notFound(c, "constant not found")

	case persistence.IsOutputNotFound(err):
		return notFound(c, "output not found")

	case persistence.IsCanvasNotFound(err):
		return notFound(c, "canvas not found")

	case persistence.IsFieldNotFound(err):
		return notFound(c, "field not found")

	default:
		return internalError(c, err)
	}
}
