package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deepchat/deepchat-backend/internal/repository"
	"github.com/deepchat/deepchat-backend/internal/services"
)

// CreateSession creates a new chat session
func CreateSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Title string `json:"title"`
		}

		if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		session, err := svc.Chat.CreateSession(c.Context(), req.Title)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// GetSessions returns all sessions
func GetSessions(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessions, err := svc.Chat.ListSessions(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"sessions": sessions,
		})
	}
}

// GetSession returns a specific session
func GetSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := svc.Chat.GetSession(c.Context(), c.Params("id"))
		if err != nil {
			if err == repository.ErrSessionNotFound {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(session)
	}
}

// DeleteSession deletes a session and its messages
func DeleteSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Chat.DeleteSession(c.Context(), c.Params("id")); err != nil {
			if err == repository.ErrSessionNotFound {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message": "Session deleted successfully",
		})
	}
}

// SetSystemPrompt sets or clears a session's system prompt
func SetSystemPrompt(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			SystemPrompt string `json:"system_prompt"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if err := svc.Chat.SetSystemPrompt(c.Context(), c.Params("id"), req.SystemPrompt); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message": "System prompt updated",
		})
	}
}

// SetCompression toggles context compression for a session
func SetCompression(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Enabled bool `json:"enabled"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if err := svc.Chat.SetCompressionEnabled(c.Context(), c.Params("id"), req.Enabled); err != nil {
			if err == repository.ErrSessionNotFound {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message": "Compression setting updated",
		})
	}
}

// GetSessionMessages returns messages for a session
func GetSessionMessages(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		messages, err := svc.Chat.ListMessages(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"messages": messages,
		})
	}
}

// GetSessionUsage returns the token usage and cost report for a session
func GetSessionUsage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		usage, err := svc.Usage.SessionUsage(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(usage)
	}
}
