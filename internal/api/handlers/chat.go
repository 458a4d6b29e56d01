package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/services"
)

// SendMessage handles POST /api/v1/chat. The response is an SSE stream
// of cumulative assistant text frames, terminated by a [DONE] sentinel.
// Errors mid-stream arrive as an error event before the sentinel.
func SendMessage(svc *services.Services, logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			SessionID string `json:"session_id"`
			Content   string `json:"content"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if strings.TrimSpace(req.Content) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "content is required",
			})
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Session-Id", sessionID)

		stream := svc.Chat.SendMessage(c.Context(), sessionID, req.Content)

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			failed := false
			for event := range stream {
				if event.Err != nil {
					failed = true
					payload, _ := json.Marshal(fiber.Map{"error": event.Err.Error()})
					fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
					w.Flush()
					continue
				}

				payload, _ := json.Marshal(fiber.Map{"content": event.Content})
				fmt.Fprintf(w, "data: %s\n\n", payload)
				w.Flush()
			}

			fmt.Fprintf(w, "data: [DONE]\n\n")
			w.Flush()

			if !failed {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
					defer cancel()

					if err := svc.Summarizer.RunIfNeeded(ctx, sessionID); err != nil {
						logger.WithField("session_id", sessionID).
							WithError(err).Warn("post-send summarization failed")
					}
				}()
			}
		})

		return nil
	}
}
