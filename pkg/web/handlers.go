package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/services"
	"github.com/docstream/queryengine/pkg/token"
	"github.com/docstream/queryengine/pkg/usage"
)

// Caller identity headers. Every mutating request must say who is acting;
// the engine does no authentication itself, it trusts the gateway in front.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

type APIHandlers struct {
	queries    *services.QueryService
	constants  *services.ConstantService
	outputs    *services.OutputService
	canvases   *services.CanvasService
	activation *services.ActivationService
	guard      *services.DeletionGuard
	usage      *services.UsageService
	store      persistence.Persistence
	validator  *validator.Validate
}

func NewAPIHandlers(
	queries *services.QueryService,
	constants *services.ConstantService,
	outputs *services.OutputService,
	canvases *services.CanvasService,
	activation *services.ActivationService,
	guard *services.DeletionGuard,
	usageService *services.UsageService,
	store persistence.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		queries:    queries,
		constants:  constants,
		outputs:    outputs,
		canvases:   canvases,
		activation: activation,
		guard:      guard,
		usage:      usageService,
		store:      store,
		validator:  validate,
	}
}

// Register mounts every route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	q := app.Group("/queries")
	q.Get("/", h.GetQueries)
	q.Post("/", h.CreateQuery)
	q.Get("/:id", h.GetQuery)
	q.Patch("/:id", h.UpdateQuery)
	q.Delete("/:id", h.DeleteQuery)
	q.Post("/:id/validate", h.ValidateQuery)
	q.Post("/:id/activate", h.ActivateQuery)
	q.Post("/:id/archive", h.ArchiveQuery)

	q.Get("/:id/constants", h.GetQueryConstants)
	q.Post("/:id/constants", h.SaveQueryConstant)
	q.Delete("/:id/constants/:constantId", h.DeleteQueryConstant)

	q.Get("/:id/outputs", h.GetOutputs)
	q.Post("/:id/outputs", h.SaveOutput)
	q.Delete("/:id/outputs/:outputId", h.DeleteOutput)
	q.Get("/:id/execution-plan", h.GetExecutionPlan)

	q.Get("/:id/canvas", h.GetCanvas)
	q.Put("/:id/canvas", h.UpdateCanvas)

	g := app.Group("/constants")
	g.Get("/", h.GetGlobalConstants)
	g.Post("/", h.SaveGlobalConstant)
	g.Delete("/:constantId", h.DeleteGlobalConstant)

	app.Get("/usage/:kind/:entityId", h.GetUsage)
	app.Post("/fields/:fieldId/deletion-check", h.CheckFieldDeletion)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) identity(c fiber.Ctx) (models.Identity, error) {
	userID := c.Get(HeaderUserID)
	if userID == "" {
		return models.Identity{}, errors.New(HeaderUserID + " header is required")
	}

	return models.Identity{UserID: userID, Name: c.Get(HeaderUserName)}, nil
}

func (h *APIHandlers) GetQueries(c fiber.Ctx) error {
	status := models.QueryStatus(c.Query("status"))

	queries, err := h.queries.List(c.Context(), status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(queries)
}

func (h *APIHandlers) CreateQuery(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	var req CreateQueryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	query, err := h.queries.Create(c.Context(), identity, services.CreateQueryRequest{
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		TemplateID:  req.TemplateID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(query)
}

func (h *APIHandlers) GetQuery(c fiber.Ctx) error {
	query, err := h.queries.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(query)
}

func (h *APIHandlers) UpdateQuery(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	var req UpdateQueryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	query, err := h.queries.Update(c.Context(), identity, c.Params("id"), services.UpdateQueryRequest{
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		TemplateID:  req.TemplateID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(query)
}

func (h *APIHandlers) DeleteQuery(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	if err := h.queries.Delete(c.Context(), identity, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateQuery(c fiber.Ctx) error {
	result, err := h.activation.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// ActivateQuery returns the validation result either way: 200 when the
// query went active, 422 with the errors when it did not.
func (h *APIHandlers) ActivateQuery(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	result, err := h.activation.Activate(c.Context(), identity, c.Params("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotActivatable) && result != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
		}

		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ArchiveQuery(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	if err := h.activation.Archive(c.Context(), identity, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetQueryConstants(c fiber.Ctx) error {
	constants, err := h.constants.ListForQuery(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(constants)
}

func (h *APIHandlers) SaveQueryConstant(c fiber.Ctx) error {
	return h.saveConstant(c, c.Params("id"))
}

func (h *APIHandlers) SaveGlobalConstant(c fiber.Ctx) error {
	return h.saveConstant(c, "")
}

func (h *APIHandlers) saveConstant(c fiber.Ctx, queryID string) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	var req SaveConstantRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if queryID == "" && !req.IsGlobal {
		return badRequest(c, "a local constant must be saved through its query")
	}

	constant, err := h.constants.Save(c.Context(), identity, queryID, services.SaveConstantRequest{
		ID:           req.ID,
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		DefaultValue: req.DefaultValue,
		DataType:     req.DataType,
		IsGlobal:     req.IsGlobal,
		Required:     req.Required,
		Description:  req.Description,
		Version:      req.Version,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	status := fiber.StatusOK
	if req.ID == nil {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(constant)
}

func (h *APIHandlers) GetGlobalConstants(c fiber.Ctx) error {
	constants, err := h.constants.ListGlobal(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(constants)
}

func (h *APIHandlers) DeleteQueryConstant(c fiber.Ctx) error {
	return h.deleteConstant(c, c.Params("id"))
}

func (h *APIHandlers) DeleteGlobalConstant(c fiber.Ctx) error {
	return h.deleteConstant(c, "")
}

func (h *APIHandlers) deleteConstant(c fiber.Ctx, queryID string) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	constantID, err := parseID(c.Params("constantId"))
	if err != nil {
		return badRequest(c, "Invalid constant ID")
	}

	request, err := h.constants.Delete(c.Context(), identity, queryID, constantID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) GetOutputs(c fiber.Ctx) error {
	outputs, err := h.outputs.List(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(outputs)
}

func (h *APIHandlers) SaveOutput(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	var req SaveOutputRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	output, err := h.outputs.Save(c.Context(), identity, c.Params("id"), services.SaveOutputRequest{
		ID:              req.ID,
		Name:            req.Name,
		DisplayName:     req.DisplayName,
		Formula:         req.Formula,
		ExecutionOrder:  req.ExecutionOrder,
		DisplayOrder:    req.DisplayOrder,
		Active:          req.Active,
		Required:        req.Required,
		Visible:         req.Visible,
		IncludeInOutput: req.IncludeInOutput,
		DataType:        req.DataType,
		DefaultValue:    req.DefaultValue,
		Version:         req.Version,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	status := fiber.StatusOK
	if req.ID == nil {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(output)
}

func (h *APIHandlers) DeleteOutput(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	outputID, err := parseID(c.Params("outputId"))
	if err != nil {
		return badRequest(c, "Invalid output ID")
	}

	request, err := h.outputs.Delete(c.Context(), identity, c.Params("id"), outputID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) GetExecutionPlan(c fiber.Ctx) error {
	queryID := c.Params("id")

	plan, err := h.outputs.ExecutionPlan(c.Context(), queryID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ExecutionPlanResponse{QueryID: queryID, Plan: plan})
}

func (h *APIHandlers) GetCanvas(c fiber.Ctx) error {
	record, err := h.canvases.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

// UpdateCanvas takes the canvas document as the raw request body and stores
// it byte for byte, so whatever the visual editor sent comes back
// unchanged.
func (h *APIHandlers) UpdateCanvas(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	record, err := h.canvases.Update(c.Context(), identity, c.Params("id"), string(c.Body()))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetUsage(c fiber.Ctx) error {
	entityID, err := parseID(c.Params("entityId"))
	if err != nil {
		return badRequest(c, "Invalid entity ID")
	}

	scope := usage.GlobalScope()
	if queryID := c.Query("query_id"); queryID != "" {
		scope = usage.QueryScope(queryID)
	}

	report, err := h.usage.Details(c.Context(), token.Kind(c.Params("kind")), entityID, scope)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

// CheckFieldDeletion answers whether the template catalog may remove a
// field. The engine never deletes fields itself.
func (h *APIHandlers) CheckFieldDeletion(c fiber.Ctx) error {
	identity, err := h.identity(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	fieldID, err := parseID(c.Params("fieldId"))
	if err != nil {
		return badRequest(c, "Invalid field ID")
	}

	request, err := h.guard.CheckField(c.Context(), identity, fieldID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck := h.store.HealthCheck(c.Context())

	status := "healthy"
	message := "Query Engine API is healthy"
	httpStatus := http.StatusOK

	if repositoryCheck != nil {
		status = "unhealthy"
		message = "Query Engine API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
