package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/judging-portal/internal/config"
	"github.com/noah-isme/judging-portal/internal/handler"
	"github.com/noah-isme/judging-portal/internal/middleware"
	"github.com/noah-isme/judging-portal/internal/observability"
	"github.com/noah-isme/judging-portal/internal/store"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StoreHandler *handler.StoreHandler
	Probe        handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Probe))

	app.Get("/metrics", observability.MetricsHandler())

	if deps.StoreHandler != nil {
		documents := app.Group("/store",
			middleware.RateLimit("store", cfg.RateLimit, cfg.RateWindow),
		)
		deps.StoreHandler.Register(documents, middleware.AdminKeyGuard(cfg.JWTSecret, store.AdminKey))
	}
}
