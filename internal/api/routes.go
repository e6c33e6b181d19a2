package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RegisterRoutes mounts /metrics, /health and the v1 asset API.
// checks maps a component name ("store", "events") to its health probe.
func RegisterRoutes(app *fiber.App, checks map[string]HealthChecker, assets *AssetHandler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.HealthCheck(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/assets", assets.ListAssets)
	v1.Get("/assets/last-update", assets.LastUpdate)
	v1.Post("/assets/snapshot", assets.SaveSnapshot)
	v1.Delete("/assets/snapshot", assets.InvalidateSnapshot)
	v1.Get("/assets/:id", assets.GetAsset)
}
