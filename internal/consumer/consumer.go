// Package consumer runs the batched poll loop shared by every queue consumer
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// Handler processes one message. The returned error decides its disposition.
type Handler interface {
	Handle(ctx context.Context, msg bus.Message) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, msg bus.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg bus.Message) error {
	return f(ctx, msg)
}

// Disposition is what happens to a message after handling
type Disposition int

const (
	// Delete acknowledges the message
	Delete Disposition = iota
	// Release leaves the message for redelivery
	Release
	// Reject dead-letters the message
	Reject
)

func (d Disposition) String() string {
	switch d {
	case Delete:
		return "delete"
	case Release:
		return "release"
	default:
		return "reject"
	}
}

// Classify maps a handler error to a disposition. A failed condition means
// the work was already done by an earlier delivery.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return Delete
	case domain.KindOf(err) == domain.KindConditionFailed:
		return Delete
	case domain.IsPermanent(err):
		return Reject
	default:
		return Release
	}
}

// Config holds poll loop configuration
type Config struct {
	Name         string
	BatchSize    int
	WaitTime     time.Duration
	ErrorBackoff time.Duration
}

// Result counts what one poll did
type Result struct {
	Received int
	Deleted  int
	Released int
	Rejected int
}

// Loop polls a queue and hands each message to a handler
type Loop struct {
	queue   bus.Queue
	handler Handler
	config  Config
	logger  *slog.Logger
}

// New creates a Loop
func New(queue bus.Queue, handler Handler, config Config, logger *slog.Logger) *Loop {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = time.Second
	}
	return &Loop{
		queue:   queue,
		handler: handler,
		config:  config,
		logger:  logger.With(slog.String("consumer", config.Name)),
	}
}

// Run polls until ctx is canceled. Receive errors are logged and retried.
// A batch in which every message was released also waits ErrorBackoff.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Consumer started",
		slog.Int("batch_size", l.config.BatchSize),
		slog.Duration("wait_time", l.config.WaitTime),
	)

	for {
		if ctx.Err() != nil {
			l.logger.Info("Consumer stopped - context canceled")
			return nil
		}

		result, err := l.PollOnce(ctx)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				continue
			}
			l.logger.Error("Failed to receive messages",
				slog.Any("error", err),
				slog.Duration("retry_after", l.config.ErrorBackoff),
			)
		case result.Received > 0 && result.Released == result.Received:
			l.logger.Warn("Every message in batch released, backing off",
				slog.Int("released", result.Released),
				slog.Duration("retry_after", l.config.ErrorBackoff),
			)
		default:
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(l.config.ErrorBackoff):
		}
	}
}

// PollOnce receives one batch and settles every message in it
func (l *Loop) PollOnce(ctx context.Context) (Result, error) {
	msgs, err := l.queue.Receive(ctx, l.config.BatchSize, l.config.WaitTime)
	if err != nil {
		return Result{}, err
	}

	result := Result{Received: len(msgs)}
	for _, msg := range msgs {
		switch l.process(ctx, msg) {
		case Delete:
			result.Deleted++
		case Release:
			result.Released++
		case Reject:
			result.Rejected++
		}
	}

	if len(msgs) > 0 {
		l.logger.Debug("Batch processed",
			slog.Int("received", result.Received),
			slog.Int("deleted", result.Deleted),
			slog.Int("released", result.Released),
			slog.Int("rejected", result.Rejected),
		)
	}
	return result, nil
}

func (l *Loop) process(ctx context.Context, msg bus.Message) Disposition {
	err := l.handler.Handle(ctx, msg)
	disposition := Classify(err)

	if err != nil {
		level := slog.LevelError
		if disposition == Delete {
			level = slog.LevelInfo
		}
		l.logger.Log(ctx, level, "Message handling failed",
			slog.String("message_id", msg.ID),
			slog.String("kind", domain.KindOf(err).String()),
			slog.String("disposition", disposition.String()),
			slog.Any("error", err),
		)
	}

	var settleErr error
	switch disposition {
	case Delete:
		settleErr = l.queue.Delete(ctx, msg)
	case Release:
		settleErr = l.queue.Release(ctx, msg)
	case Reject:
		settleErr = l.queue.Reject(ctx, msg)
	}
	if settleErr != nil {
		l.logger.Error("Failed to settle message",
			slog.String("message_id", msg.ID),
			slog.String("disposition", disposition.String()),
			slog.Any("error", settleErr),
		)
	}

	return disposition
}
