package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// TopicPublisher wraps payloads in envelopes and hands them to a Sender
type TopicPublisher struct {
	sender Sender
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a TopicPublisher over sender
func NewPublisher(sender Sender, logger *slog.Logger) *TopicPublisher {
	return &TopicPublisher{
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// Publish wraps payload and sends it to topic
func (p *TopicPublisher) Publish(ctx context.Context, topic string, payload any) error {
	env, err := Wrap(topic, payload, p.now())
	if err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := p.sender.Send(ctx, topic, body); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug("Published message",
		slog.String("topic", topic),
		slog.String("message_id", env.MessageID),
	)
	return nil
}
