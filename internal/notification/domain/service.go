package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Event is an outbound notification payload.
type Event struct {
	Type     EventType
	Title    string
	Body     string
	Metadata map[string]any
}

// Pusher delivers an event over a transport. Delivery itself lives outside
// this service; implementations may simply log.
type Pusher interface {
	Push(ctx context.Context, userID snowflake.ID, ev Event) error
}

type Service interface {
	// Notify persists the event and hands it to the pusher. Callers treat a
	// returned error as a secondary effect, never rolling back their own work.
	Notify(ctx context.Context, userID snowflake.ID, ev Event) error
	List(ctx context.Context, userID snowflake.ID, limit int) ([]*Notification, error)
}
