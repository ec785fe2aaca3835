// Package main provides the Chronicle API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/robfig/cron/v3"

	"github.com/chroniclehq/chronicle/pkg/engine"
	"github.com/chroniclehq/chronicle/pkg/web"
)

type API struct {
	logger   *slog.Logger
	engine   *engine.Engine
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, eng *engine.Engine) *API {
	return &API{
		logger:   logger,
		engine:   eng,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Chronicle API")
	})

	handlers.Register(app)

	return app
}

// StartSweep schedules the approval expiry sweep. Each run resolves overdue
// pending approvals as expired rejections.
func (a *API) StartSweep(ctx context.Context, schedule string) (*cron.Cron, error) {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(schedule, func() {
		resolved, err := a.engine.ExpirySweep(ctx, time.Now().UTC())
		if err != nil {
			a.logger.ErrorContext(ctx, "Approval expiry sweep failed", "error", err)

			return
		}

		if resolved > 0 {
			a.logger.InfoContext(ctx, "Approval expiry sweep finished", "resolved", resolved)
		}
	})
	if err != nil {
		return nil, err
	}

	scheduler.Start()

	return scheduler, nil
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
