package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/genomics-pipeline/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultPollInterval = 200 * time.Millisecond

	// releaseCountHeader counts how often a message went through the retry queue
	releaseCountHeader = "x-release-count"
)

// RabbitSender sends envelopes to the RabbitMQ topic exchange
type RabbitSender struct {
	client *rabbitmq.Client
}

// NewRabbitSender creates a RabbitSender
func NewRabbitSender(client *rabbitmq.Client) *RabbitSender {
	return &RabbitSender{client: client}
}

// Send publishes body with topic as the routing key
func (s *RabbitSender) Send(ctx context.Context, topic string, body []byte) error {
	return s.client.Publish(ctx, topic, body, "application/json")
}

// Broker is the part of the RabbitMQ client a RabbitQueue drives
type Broker interface {
	Get(queue string) (amqp.Delivery, bool, error)
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
	PublishToQueue(ctx context.Context, queue string, msg amqp.Publishing) error
}

var _ Broker = (*rabbitmq.Client)(nil)

// RabbitQueue long-polls a RabbitMQ queue with basic.get
type RabbitQueue struct {
	broker       Broker
	name         string
	retryQueue   string
	pollInterval time.Duration
}

// NewRabbitQueue creates a RabbitQueue for the named queue. Released
// messages are parked on retryQueue; an empty retryQueue requeues them
// immediately.
func NewRabbitQueue(broker Broker, name, retryQueue string) *RabbitQueue {
	return &RabbitQueue{
		broker:       broker,
		name:         name,
		retryQueue:   retryQueue,
		pollInterval: defaultPollInterval,
	}
}

// Receive gets up to max messages. When the queue is empty it polls until
// wait has elapsed; a non-empty batch is returned as soon as one is found.
func (q *RabbitQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)

	for {
		var batch []Message
		for len(batch) < max {
			d, ok, err := q.broker.Get(q.name)
			if err != nil {
				if len(batch) > 0 {
					return batch, nil
				}
				return nil, err
			}
			if !ok {
				break
			}
			batch = append(batch, Message{
				ID:          d.MessageId,
				Body:        d.Body,
				Receipt:     d.DeliveryTag,
				Redelivered: d.Redelivered || releaseCount(d.Headers) > 0,
				headers:     d.Headers,
			})
		}

		if len(batch) > 0 || !time.Now().Before(deadline) {
			return batch, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// Delete acks the message
func (q *RabbitQueue) Delete(_ context.Context, msg Message) error {
	return q.broker.Ack(msg.Receipt)
}

// Release parks the message on the retry queue, where it waits out the
// retry delay before returning to this queue. The copy is published before
// the original is acked, so a failure in between only duplicates it.
func (q *RabbitQueue) Release(ctx context.Context, msg Message) error {
	if q.retryQueue == "" {
		return q.broker.Nack(msg.Receipt, true)
	}

	headers := amqp.Table{}
	for k, v := range msg.headers {
		headers[k] = v
	}
	headers[releaseCountHeader] = releaseCount(msg.headers) + 1

	err := q.broker.PublishToQueue(ctx, q.retryQueue, amqp.Publishing{
		MessageId:    msg.ID,
		ContentType:  "application/json",
		Headers:      headers,
		Body:         msg.Body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		if nackErr := q.broker.Nack(msg.Receipt, true); nackErr != nil {
			return fmt.Errorf("failed to park message: %w (requeue: %v)", err, nackErr)
		}
		return fmt.Errorf("failed to park message: %w", err)
	}
	return q.broker.Ack(msg.Receipt)
}

// Reject dead-letters the message
func (q *RabbitQueue) Reject(_ context.Context, msg Message) error {
	return q.broker.Nack(msg.Receipt, false)
}

func releaseCount(headers amqp.Table) int32 {
	switch v := headers[releaseCountHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	default:
		return 0
	}
}
