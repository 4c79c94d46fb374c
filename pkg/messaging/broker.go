package messaging

import (
	"context"
	"time"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Queue hands messages to durable consumers. Unlike Publish, the message is
// retained until a consumer group reads it.
type Queue interface {
	Enqueue(ctx context.Context, stream string, message interface{}) (string, error)
}

// Message is the envelope written to every channel.
type Message struct {
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}
