package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/velvetpages/chatroom-api/internal/config"
	"github.com/velvetpages/chatroom-api/internal/handler"
	"github.com/velvetpages/chatroom-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatroomHandler *handler.ChatroomHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	if deps.ChatroomHandler != nil {
		chatroom := app.Group("/api/v1/chatroom")
		deps.ChatroomHandler.Register(chatroom)
	}
}
