package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/otelhelper"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/services"
	"github.com/docstream/queryengine/pkg/web"
)

type API struct {
	logger  *slog.Logger
	store   persistence.Persistence
	bus     eventbus.EventBus
	tracing bool
}

func NewAPI(logger *slog.Logger, store persistence.Persistence, bus eventbus.EventBus, tracing bool) *API {
	return &API{
		logger:  logger,
		store:   store,
		bus:     bus,
		tracing: tracing,
	}
}

func (a *API) App(ctx context.Context) (*fiber.App, error) {
	guard := services.NewDeletionGuard(a.store, a.bus, a.logger)
	activation := services.NewActivationService(a.store, a.bus, a.logger)

	if a.tracing {
		tracer, err := otelhelper.NewTracer(ctx, "queryengine-api")
		if err != nil {
			return nil, err
		}

		guard.WithTracer(tracer)
		activation.WithTracer(tracer)
	}

	handlers := web.NewAPIHandlers(
		services.NewQueryService(a.store, a.bus, a.logger),
		services.NewConstantService(a.store, a.bus, guard, a.logger),
		services.NewOutputService(a.store, a.bus, guard, a.logger),
		services.NewCanvasService(a.store, a.bus, a.logger),
		activation,
		guard,
		services.NewUsageService(a.store, a.logger),
		a.store,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Query Engine API")
	})

	handlers.Register(app)

	return app, nil
}

func (a *API) Start(ctx context.Context, port int) error {
	app, err := a.App(ctx)
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
