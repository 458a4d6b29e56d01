package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/pubsub"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

// feedFrame is one message on the websocket change feed.
type feedFrame struct {
	Kind    string      `json:"kind"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventFeed streams session and message change events over a
// websocket connection until the client disconnects.
func EventFeed(
	sessions pubsub.Subscriber[repository.Session],
	messages pubsub.Subscriber[repository.Message],
	logger *logrus.Logger,
) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sessionEvents := sessions.Subscribe(ctx)
		messageEvents := messages.Subscribe(ctx)

		// Drain reads so close frames are processed; cancel on error.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			var frame feedFrame
			select {
			case event, ok := <-sessionEvents:
				if !ok {
					return
				}
				frame = feedFrame{Kind: "session", Type: string(event.Type), Payload: event.Payload}
			case event, ok := <-messageEvents:
				if !ok {
					return
				}
				frame = feedFrame{Kind: "message", Type: string(event.Type), Payload: event.Payload}
			case <-ctx.Done():
				return
			}

			if err := conn.WriteJSON(frame); err != nil {
				logger.WithError(err).Debug("event feed write failed")
				return
			}
		}
	}
}
