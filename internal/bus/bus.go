// Package bus is the notification bus: topics fan out to subscribed queues,
// consumers poll queues and settle each message explicitly.
package bus

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is one delivery received from a queue
type Message struct {
	ID          string
	Body        []byte
	Receipt     uint64
	Redelivered bool

	headers amqp.Table
}

// Queue is a consumer's view of one subscribed queue
type Queue interface {
	// Receive returns up to max messages, waiting at most wait for the first one
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	// Delete acknowledges the message; it is never delivered again
	Delete(ctx context.Context, msg Message) error
	// Release returns the message to the queue for redelivery
	Release(ctx context.Context, msg Message) error
	// Reject dead-letters the message
	Reject(ctx context.Context, msg Message) error
}

// Sender delivers a raw body to every queue subscribed to topic
type Sender interface {
	Send(ctx context.Context, topic string, body []byte) error
}

// Publisher publishes a payload to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}
