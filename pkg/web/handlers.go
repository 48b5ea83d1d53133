package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/services"
	"github.com/dukex/conduit/pkg/triggers/webhook"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Runner starts and cancels scenario runs.
type Runner interface {
	RunScenario(ctx context.Context, scenarioID string, data map[string]any) (*models.RunResult, error)
	Cancel(runID string) bool
}

// Dependencies are the collaborators the handlers call into.
type Dependencies struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Connections *services.Connections
	Scenarios   *services.Scenarios
	Runner      Runner
	Caller      services.Caller
	Receiver    *webhook.Receiver
}

type APIHandlers struct {
	deps     Dependencies
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAPIHandlers(logger *slog.Logger, deps Dependencies, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		deps:     deps,
		validate: validate,
		logger:   logger.With("module", "api"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	repository := "ok"

	err := h.deps.Persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		repository = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repository,
			"nodes":      len(h.deps.Registry.Registered()),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListNodes(c fiber.Ctx) error {
	filter := persistence.NodeDefinitionFilter{
		Category:        models.CategoryType(c.Query("category")),
		IntegrationType: c.Query("integration_type"),
	}

	if raw := c.Query("include_deprecated"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "Invalid include_deprecated: "+err.Error())
		}

		filter.IncludeDeprecated = include
	}

	defs, err := h.deps.Registry.Definitions(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	if defs == nil {
		defs = []*models.IntegrationNodeDefinition{}
	}

	return c.JSON(fiber.Map{"nodes": defs, "total": len(defs)})
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	def, err := h.deps.Registry.Definition(c.Context(), c.Params("identifier"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) CreateConnection(c fiber.Ctx) error {
	var req CreateConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	conn, err := h.deps.Connections.Create(c.Context(), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *APIHandlers) ListConnections(c fiber.Ctx) error {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		return badRequest(c, "owner_id is required")
	}

	conns, err := h.deps.Connections.List(c.Context(), ownerID)
	if err != nil {
		return handleServiceError(c, err)
	}

	if conns == nil {
		conns = []*models.ConnectionDefinition{}
	}

	return c.JSON(fiber.Map{"connections": conns, "total": len(conns)})
}

func (h *APIHandlers) GetConnection(c fiber.Ctx) error {
	conn, err := h.deps.Connections.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(conn)
}

func (h *APIHandlers) UpdateConnection(c fiber.Ctx) error {
	var req UpdateConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	conn, err := h.deps.Connections.Update(c.Context(), c.Params("id"), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(conn)
}

func (h *APIHandlers) DeleteConnection(c fiber.Ctx) error {
	err := h.deps.Connections.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) TestConnection(c fiber.Ctx) error {
	conn, err := h.deps.Connections.Test(c.Context(), c.Params("id"), h.deps.Caller)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(conn)
}

func (h *APIHandlers) DisconnectConnection(c fiber.Ctx) error {
	id := c.Params("id")

	err := h.deps.Connections.Disconnect(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	conn, err := h.deps.Connections.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(conn)
}

func (h *APIHandlers) CreateScenario(c fiber.Ctx) error {
	var req CreateScenarioRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	serviceReq, err := req.toService()
	if err != nil {
		return badRequest(c, "Invalid run_timeout: "+err.Error())
	}

	sc, err := h.deps.Scenarios.Create(c.Context(), serviceReq)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sc)
}

func (h *APIHandlers) ListScenarios(c fiber.Ctx) error {
	scenarios, err := h.deps.Scenarios.List(c.Context(), c.Query("owner_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if scenarios == nil {
		scenarios = []*models.Scenario{}
	}

	return c.JSON(fiber.Map{"scenarios": scenarios, "total": len(scenarios)})
}

func (h *APIHandlers) GetScenario(c fiber.Ctx) error {
	sc, err := h.deps.Scenarios.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(sc)
}

func (h *APIHandlers) DeleteScenario(c fiber.Ctx) error {
	err := h.deps.Scenarios.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddScenarioNode(c fiber.Ctx) error {
	var node models.ScenarioNode
	if err := c.Bind().JSON(&node); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	sc, err := h.deps.Scenarios.AddNode(c.Context(), c.Params("id"), &node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sc)
}

func (h *APIHandlers) RemoveScenarioNode(c fiber.Ctx) error {
	sc, err := h.deps.Scenarios.RemoveNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(sc)
}

func (h *APIHandlers) ConnectScenarioNodes(c fiber.Ctx) error {
	var req CreateEdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sc, err := h.deps.Scenarios.Connect(c.Context(), c.Params("id"), req.Source, req.Target)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sc)
}

func (h *APIHandlers) ActivateScenario(c fiber.Ctx) error {
	sc, err := h.deps.Scenarios.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(sc)
}

func (h *APIHandlers) PauseScenario(c fiber.Ctx) error {
	sc, err := h.deps.Scenarios.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(sc)
}

func (h *APIHandlers) RunScenario(c fiber.Ctx) error {
	var req RunScenarioRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if req.Data == nil {
		req.Data = map[string]any{}
	}

	result, err := h.deps.Runner.RunScenario(c.Context(), c.Params("id"), req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ScenarioLogs(c fiber.Ctx) error {
	limit := 0

	if raw := c.Query("limit"); raw != "" {
		var err error

		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(c, "Invalid limit")
		}
	}

	query, err := logQuery(c.Query("status"), c.Query("action"), c.Query("since"), c.Query("until"), limit)
	if err != nil {
		return badRequest(c, "Invalid time filter: "+err.Error())
	}

	entries, err := h.deps.Scenarios.Logs(c.Context(), c.Params("id"), query)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newLogsResponse(entries))
}

func (h *APIHandlers) RunLogs(c fiber.Ctx) error {
	entries, err := h.deps.Persistence.LogRepository().ListLogsByRun(c.Context(), c.Params("runId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if len(entries) == 0 {
		return notFound(c, "run not found")
	}

	return c.JSON(newLogsResponse(entries))
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	runID := c.Params("runId")

	if !h.deps.Runner.Cancel(runID) {
		return notFound(c, "run is not in progress")
	}

	h.logger.InfoContext(c.Context(), "Run cancellation requested", "run_id", runID)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": runID, "cancelled": true})
}

// ReceiveWebhook verifies and dispatches an inbound trigger. Queued triggers
// answer 202, inline runs 200 with their results.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	receipt, err := h.deps.Receiver.Receive(
		c.Context(),
		c.Params("integration"),
		c.Params("triggerType"),
		c.Body(),
		c.Get(webhook.SignatureHeader),
	)
	if err != nil {
		return handleServiceError(c, err)
	}

	if receipt.Queued {
		return c.Status(fiber.StatusAccepted).JSON(receipt)
	}

	return c.JSON(receipt)
}
