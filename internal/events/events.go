// Package events publishes ticket lifecycle events to Kafka so downstream
// systems (notifications, analytics) can react without polling the API.
// Publish failures are logged and never propagate to request handling.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TicketCreated        = "ticket.created"
	InteractionProcessed = "interaction.processed"
	TicketEscalated      = "ticket.escalated"
	TicketResolved       = "ticket.resolved"
)

// Event is the envelope written to the topic. Key is the ticket external
// ID so all events for a ticket land in the same partition, in order.
type Event struct {
	Type       string         `json:"type"`
	TicketID   uuid.UUID      `json:"ticket_id"`
	ExternalID string         `json:"external_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher emits ticket lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher discards events. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NoopPublisher) Close() error                                   { return nil }

var _ Publisher = NoopPublisher{}
