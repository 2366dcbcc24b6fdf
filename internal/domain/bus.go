package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (standalone) or NATS (distributed).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `env:"MAGPIE_BUS_TYPE"`

	// Channel settings (standalone profile)
	ChannelBufferSize int `env:"MAGPIE_BUS_BUFFER_SIZE"`

	// NATS settings (distributed profile)
	NATSUrl           string `env:"MAGPIE_NATS_URL"`
	NATSToken         string `env:"MAGPIE_NATS_TOKEN"`
	NATSMaxReconnects int    `env:"MAGPIE_NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `env:"MAGPIE_NATS_RECONNECT_WAIT"` // seconds
}

// Standard topic names for the segmentation pipeline.
const (
	TopicDatasetLoaded      = "magpie.dataset.loaded"
	TopicRefreshRequested   = "magpie.refresh.requested"
	TopicSnapshotRefreshed  = "magpie.snapshot.refreshed"
	TopicSimulationComplete = "magpie.simulation.completed"
)
