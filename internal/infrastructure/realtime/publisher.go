package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"tallybook/internal/domain/events"
)

// EventPublisher pushes domain events straight to the gateway.
// Used by the memory driver, which has no outbox.
type EventPublisher struct {
	client *Client
}

var _ events.Publisher = (*EventPublisher)(nil)

// NewEventPublisher wraps a client.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// Publish implements events.Publisher.
func (p *EventPublisher) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.client.Publish(ctx, Message{Type: event.Type, Payload: payload})
}

// Deliver sends an already serialized event. It serves the outbox relay.
func (c *Client) Deliver(ctx context.Context, eventType string, payload []byte) error {
	return c.Publish(ctx, Message{Type: eventType, Payload: payload})
}
