// Package events defines the domain events emitted after document and ledger operations.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	DocumentCreated   = "document.created"
	DocumentUpdated   = "document.updated"
	DocumentDeleted   = "document.deleted"
	DocumentCancelled = "document.cancelled"
	PaymentRecorded   = "payment.recorded"
	LedgerEntryPosted = "ledger.entry_posted"
)

// Aggregate types.
const (
	AggregateDocument = "document"
	AggregateLedger   = "ledger_entry"
)

// Event is a fact that already happened. Payload is JSON-marshalled by the adapters.
type Event struct {
	Type          string    `json:"type"`
	AggregateType string    `json:"aggregateType"`
	AggregateID   string    `json:"aggregateId"`
	Payload       any       `json:"payload"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// New builds an event stamped with the current time.
func New(eventType, aggregateType, aggregateID string, payload any) Event {
	return Event{
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

//go:generate mockgen -source=event.go -destination=publisher_mock.go -package=events

// Publisher delivers events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
