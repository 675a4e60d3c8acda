package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (standalone) or NATS (cluster).
type EventBus interface {
	// Publish sends an event on a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe registers a handler for a subject.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, subject string, handler EventHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EventHandler processes incoming events.
type EventHandler func(ctx context.Context, event *Event) error

// Event represents one bus message.
type Event struct {
	ID        string            `json:"id"`
	Subject   string            `json:"subject"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving events.
	Unsubscribe() error

	// Subject returns the subscribed subject.
	Subject() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (standalone profile)
	ChannelBufferSize int

	// NATS settings (cluster profile)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard subjects for the integration pipeline.
const (
	SubjectQueryExecuted   = "finch.query.executed"
	SubjectEnrichRequested = "finch.enrich.requested"
	SubjectEnrichCompleted = "finch.enrich.completed"
)
