package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/proprep-api/internal/config"
	"github.com/noah-isme/proprep-api/internal/handler"
	"github.com/noah-isme/proprep-api/internal/middleware"
	"github.com/noah-isme/proprep-api/internal/observability"
	"github.com/noah-isme/proprep-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	InterviewHandler *handler.InterviewHandler
	SessionHandler   *handler.SessionHandler
	DashboardHandler *handler.DashboardHandler
	JWTMiddleware    fiber.Handler
	HealthProbes     map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	api.Get("/metrics", observability.MetricsHandler())

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/auth"))
	}

	protected := []fiber.Handler{func(c *fiber.Ctx) error { return c.Next() }}
	if deps.JWTMiddleware != nil {
		protected = []fiber.Handler{deps.JWTMiddleware, middleware.RequireRole(service.CandidateRole)}
	}

	if deps.InterviewHandler != nil {
		interviews := api.Group("/interviews", protected...)
		var respondLimit fiber.Handler
		if cfg.ResponsesPerMinute > 0 {
			respondLimit = middleware.RateLimit("interview-responses", cfg.ResponsesPerMinute, time.Minute)
		}
		deps.InterviewHandler.Register(interviews, respondLimit)
	}

	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(api.Group("/sessions", protected...))
	}

	if deps.DashboardHandler != nil {
		deps.DashboardHandler.Register(api.Group("/dashboard", protected...))
	}
}
