package web

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application with every route registered.
func NewApp(log *slog.Logger, deps Dependencies) *fiber.App {
	handlers := NewAPIHandlers(log, deps, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Conduit API")
	})

	app.Get("/health", handlers.HealthCheck)

	n := app.Group("/nodes")
	n.Get("/", handlers.ListNodes)
	n.Get("/:identifier", handlers.GetNode)

	cn := app.Group("/connections")
	cn.Get("/", handlers.ListConnections)
	cn.Post("/", handlers.CreateConnection)
	cn.Get("/:id", handlers.GetConnection)
	cn.Patch("/:id", handlers.UpdateConnection)
	cn.Delete("/:id", handlers.DeleteConnection)
	cn.Post("/:id/test", handlers.TestConnection)
	cn.Post("/:id/disconnect", handlers.DisconnectConnection)

	s := app.Group("/scenarios")
	s.Get("/", handlers.ListScenarios)
	s.Post("/", handlers.CreateScenario)
	s.Get("/:id", handlers.GetScenario)
	s.Delete("/:id", handlers.DeleteScenario)
	s.Post("/:id/nodes", handlers.AddScenarioNode)
	s.Delete("/:id/nodes/:nodeId", handlers.RemoveScenarioNode)
	s.Post("/:id/edges", handlers.ConnectScenarioNodes)
	s.Post("/:id/activate", handlers.ActivateScenario)
	s.Post("/:id/pause", handlers.PauseScenario)
	s.Post("/:id/run", handlers.RunScenario)
	s.Get("/:id/logs", handlers.ScenarioLogs)

	r := app.Group("/runs")
	r.Get("/:runId/logs", handlers.RunLogs)
	r.Post("/:runId/cancel", handlers.CancelRun)

	app.Post("/webhooks/:integration/:triggerType", handlers.ReceiveWebhook)

	return app
}
