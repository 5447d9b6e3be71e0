package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/google/uuid"
)

// Envelope message types and the header webhooks dispatch on
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"

	HeaderMessageType = "x-amz-sns-message-type"
)

// Envelope wraps every published payload. Message holds the payload JSON
// as a string, the same shape SNS delivers to its subscribers.
type Envelope struct {
	Type         string    `json:"Type"`
	MessageID    string    `json:"MessageId"`
	Topic        string    `json:"TopicArn"`
	Message      string    `json:"Message"`
	Timestamp    time.Time `json:"Timestamp"`
	SubscribeURL string    `json:"SubscribeURL,omitempty"`
	Token        string    `json:"Token,omitempty"`
}

// Wrap builds a notification envelope around payload
func Wrap(topic string, payload any, now time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return Envelope{
		Type:      TypeNotification,
		MessageID: uuid.NewString(),
		Topic:     topic,
		Message:   string(data),
		Timestamp: now.UTC(),
	}, nil
}

// ParseEnvelope decodes an envelope from body
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: invalid envelope: %v", domain.ErrMalformedMessage, err)
	}
	return env, nil
}

// Unwrap decodes and validates the payload carried by body. Bodies that are
// not envelopes (no Type and no Message) are decoded as the payload itself.
func Unwrap[T interface{ Validate() error }](body []byte) (T, error) {
	env, err := ParseEnvelope(body)
	if err != nil {
		var zero T
		return zero, err
	}

	if env.Type == "" && env.Message == "" {
		return domain.Decode[T](body)
	}
	if env.Type != TypeNotification {
		var zero T
		return zero, fmt.Errorf("%w: unexpected envelope type %q", domain.ErrMalformedMessage, env.Type)
	}

	return domain.Decode[T]([]byte(env.Message))
}
