package events

import (
	"context"
	"time"
)

const (
	// SessionExpired fires when the refresh token is found expired.
	SessionExpired = "SESSION_EXPIRED"
	// SessionStateChanged fires on every streaming session transition.
	SessionStateChanged = "SESSION_STATE_CHANGED"
	// TurnCompleted fires when an assistant message is finalized.
	TurnCompleted = "TURN_COMPLETED"
	// TurnFailed carries a user-visible error for a failed chat turn.
	TurnFailed = "TURN_FAILED"
	UserLoggedIn  = "USER_LOGGED_IN"
	UserLoggedOut = "USER_LOGGED_OUT"
)

// Event defines the contract for all client events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_EXPIRED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Publisher is anything events can be handed to: the in-process Bus or a NATS publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
