// Package routes defines the API routing configuration.
package routes

import (
	"qrpay/internal/handlers"
	"qrpay/internal/middleware"
	"qrpay/internal/services/session"

	"github.com/gofiber/fiber/v2"
)

type Deps struct {
	Sessions  *session.Sessions
	Health    *handlers.HealthHandler
	JWTSecret string
}

// SetupRoutes mounts the health check and the authenticated scan API.
func SetupRoutes(app *fiber.App, deps Deps) {
	if deps.Health != nil {
		app.Get("/health", deps.Health.HealthCheck)
		app.Get("/health/cache", deps.Health.CacheStats)
	}

	auth := middleware.NewAuthMiddleware(deps.JWTSecret)
	scanHandler := handlers.NewScanHandler(deps.Sessions)

	scan := app.Group("/api/scan", auth.Handler)
	scan.Get("/state", scanHandler.GetState)

	scan.Post("/camera/start", scanHandler.StartCamera)
	scan.Post("/camera/stop", scanHandler.StopCamera)
	scan.Post("/manual", scanHandler.SubmitManual)

	draft := scan.Group("/draft")
	draft.Post("/quantity/increment", scanHandler.IncrementQuantity)
	draft.Post("/quantity/decrement", scanHandler.DecrementQuantity)
	draft.Put("/quantity", scanHandler.SetQuantity)
	draft.Put("/amount", scanHandler.SetAmount)
	draft.Post("/cancel", scanHandler.CancelDraft)
	draft.Post("/confirm", scanHandler.ConfirmDraft)

	scan.Get("/history", scanHandler.GetHistory)
	scan.Get("/wallet", scanHandler.GetWallet)
	scan.Post("/wallet/refresh", scanHandler.RefreshWallet)
}
