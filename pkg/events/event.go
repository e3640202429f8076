package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/ssohub/pkg/observability"
)

// EventType identifies what happened
type EventType string

const (
	// EventSessionTerminated is published once per single logout execution
	EventSessionTerminated EventType = "session.terminated"
)

// Event is a notification about the SSO server's state
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent stamps an event with a fresh ID and the current time
func NewEvent(t EventType, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Publisher receives events. Publish must not block on remote delivery.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, event Event) error { return f(ctx, event) }

// MultiPublisher fans an event out to every publisher, returning their joined errors
type MultiPublisher []Publisher

// Publish delivers event to every publisher even if some fail
func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the structured log
type LogPublisher struct {
	Logger *observability.Logger
}

// Publish logs the event at info level
func (p LogPublisher) Publish(ctx context.Context, event Event) error {
	p.Logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	}).Info("event published")
	return nil
}
