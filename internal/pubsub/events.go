package pubsub

import "context"

// EventType identifies the kind of change carried by an Event.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event is a change notification with a typed payload.
type Event[T any] struct {
	Type    EventType `json:"type"`
	Payload T         `json:"payload"`
}

// Subscriber exposes a broker's subscription side.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}
