package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/judging-portal/internal/config"
	"github.com/noah-isme/judging-portal/internal/utils"
)

const healthProbeTimeout = 2 * time.Second

// HealthProbe reports whether the document backend is reachable.
type HealthProbe func(ctx context.Context) error

// HealthResponse is the payload of the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Backend   string    `json:"backend"`
	Reachable bool      `json:"reachable"`
	Error     string    `json:"error,omitempty"`
}

// HealthCheck answers 200 while the backend answers probe and 503 otherwise.
// A nil probe skips the backend check.
func HealthCheck(cfg config.Config, probe HealthProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Service:   cfg.AppName,
			Backend:   cfg.StoreBackend,
			Reachable: true,
		}
		if probe == nil {
			return utils.SendSuccess(c, "service healthy", payload)
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), healthProbeTimeout)
		defer cancel()
		if err := probe(ctx); err != nil {
			payload.Status = "degraded"
			payload.Reachable = false
			payload.Error = err.Error()
			return utils.SendFailure(c, fiber.StatusServiceUnavailable, "store backend unreachable", payload)
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
