package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/api/handlers"
	"github.com/deepchat/deepchat-backend/internal/pubsub"
	"github.com/deepchat/deepchat-backend/internal/repository"
	"github.com/deepchat/deepchat-backend/internal/services"
)

// Brokers carries the change-notification feeds exposed over the
// websocket endpoint.
type Brokers struct {
	Sessions *pubsub.Broker[repository.Session]
	Messages *pubsub.Broker[repository.Message]
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services, brokers Brokers, logger *logrus.Logger) {
	api := app.Group("/api/v1")

	// Session management
	api.Post("/sessions", handlers.CreateSession(svc))
	api.Get("/sessions", handlers.GetSessions(svc))
	api.Get("/sessions/:id", handlers.GetSession(svc))
	api.Delete("/sessions/:id", handlers.DeleteSession(svc))
	api.Put("/sessions/:id/system-prompt", handlers.SetSystemPrompt(svc))
	api.Put("/sessions/:id/compression", handlers.SetCompression(svc))
	api.Get("/sessions/:id/messages", handlers.GetSessionMessages(svc))
	api.Get("/sessions/:id/usage", handlers.GetSessionUsage(svc))

	// Chat
	api.Post("/chat", handlers.SendMessage(svc, logger))

	// WebSocket change feed
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(handlers.EventFeed(brokers.Sessions, brokers.Messages, logger)))

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "deepchat-backend",
		})
	})
}
