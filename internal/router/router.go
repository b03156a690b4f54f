package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/config"
	"github.com/noah-isme/codegrade-api/internal/handler"
	"github.com/noah-isme/codegrade-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	PaymentHandler    *handler.PaymentHandler
	TaskHandler       *handler.TaskHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
	EvaluateLimiter   fiber.Handler
	Logger            zerolog.Logger
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes, deps.Logger))
	api.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	secured := api.Group("", jwtMiddleware)

	if deps.EvaluationHandler != nil {
		var guards []fiber.Handler
		if deps.EvaluateLimiter != nil {
			guards = append(guards, deps.EvaluateLimiter)
		}
		deps.EvaluationHandler.Register(secured, guards...)
	}

	if deps.PaymentHandler != nil {
		deps.PaymentHandler.Register(secured)
	}

	if deps.TaskHandler != nil {
		deps.TaskHandler.Register(secured)
	}
}
