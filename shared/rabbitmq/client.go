package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when the client has no open channel
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	Queues             []QueueConfig
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// QueueConfig declares one queue and its bindings on the exchange
type QueueConfig struct {
	Name        string
	RoutingKeys []string
	Durable     bool

	// DeadLetterQueue receives rejected messages through the default exchange
	DeadLetterQueue string

	// MessageTTL with ForwardTo turns the queue into a delay line: expired
	// messages are re-published on the exchange under the ForwardTo key.
	MessageTTL time.Duration
	ForwardTo  string

	// RetryQueue holds released messages for RetryDelay, then returns them
	// to this queue through the default exchange
	RetryQueue string
	RetryDelay time.Duration
}

func (q QueueConfig) arguments(exchange string) amqp.Table {
	args := amqp.Table{}
	if q.DeadLetterQueue != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = q.DeadLetterQueue
	}
	if q.ForwardTo != "" {
		args["x-dead-letter-exchange"] = exchange
		args["x-dead-letter-routing-key"] = q.ForwardTo
	}
	if q.MessageTTL > 0 {
		args["x-message-ttl"] = q.MessageTTL.Milliseconds()
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

func (q QueueConfig) retryArguments() amqp.Table {
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.Name,
	}
	if q.RetryDelay > 0 {
		args["x-message-ttl"] = q.RetryDelay.Milliseconds()
	}
	return args
}

// Client represents a RabbitMQ client
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	mu          sync.Mutex

	// stateMu guards closeChan draining and isConnected; Publish and Get
	// check the state before taking mu
	stateMu     sync.Mutex
	closeChan   chan *amqp.Error
	isConnected bool
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:    config,
		logger:    logger,
		closeChan: make(chan *amqp.Error),
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := max(c.config.RetryAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queues: %w", err)
	}

	c.stateMu.Lock()
	c.closeChan = make(chan *amqp.Error, 1)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true
	c.stateMu.Unlock()

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.Int("queues", len(c.config.Queues)),
	)

	return nil
}

// setup declares the exchange, every configured queue, and their bindings
func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.config.ExchangeName,       // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, q := range c.config.Queues {
		if q.DeadLetterQueue != "" {
			if _, err := c.channel.QueueDeclare(q.DeadLetterQueue, q.Durable, false, false, false, nil); err != nil {
				return fmt.Errorf("failed to declare dead-letter queue %s: %w", q.DeadLetterQueue, err)
			}
		}

		_, err := c.channel.QueueDeclare(
			q.Name,                             // name
			q.Durable,                          // durable
			false,                              // auto-delete
			false,                              // exclusive
			false,                              // no-wait
			q.arguments(c.config.ExchangeName), // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
		}

		if q.RetryQueue != "" {
			if _, err := c.channel.QueueDeclare(q.RetryQueue, q.Durable, false, false, false, q.retryArguments()); err != nil {
				return fmt.Errorf("failed to declare retry queue %s: %w", q.RetryQueue, err)
			}
		}

		for _, key := range q.RoutingKeys {
			if err := c.channel.QueueBind(q.Name, key, c.config.ExchangeName, false, nil); err != nil {
				return fmt.Errorf("failed to bind queue %s to %s: %w", q.Name, key, err)
			}
		}

		c.logger.Debug("Queue declared",
			slog.String("queue", q.Name),
			slog.Any("routing_keys", q.RoutingKeys),
		)
	}

	return nil
}

// Publish publishes body under routingKey with retry and exponential backoff
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult <= 0 {
		backoffMult = 2.0
	}

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.mu.Lock()
		err := c.channel.PublishWithContext(
			ctx,
			c.config.ExchangeName, // exchange
			routingKey,            // routing key
			false,                 // mandatory
			false,                 // immediate
			amqp.Publishing{
				ContentType:  contentType,
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
		c.mu.Unlock()

		if err == nil {
			c.logger.Debug("Message published to RabbitMQ",
				slog.String("routing_key", routingKey),
				slog.Int("body_size", len(body)),
				slog.Int("attempt", attempt+1),
			)
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.String("routing_key", routingKey),
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * backoffMult)
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.String("routing_key", routingKey),
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// PublishToQueue publishes msg straight to queue through the default exchange
func (c *Client) PublishToQueue(ctx context.Context, queue string, msg amqp.Publishing) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.channel.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queue, err)
	}
	return nil
}

// Get fetches a single message from queue without auto-ack. ok is false when
// the queue is empty.
func (c *Client) Get(queue string) (amqp.Delivery, bool, error) {
	if !c.IsConnected() {
		return amqp.Delivery{}, false, ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delivery, ok, err := c.channel.Get(queue, false)
	if err != nil {
		return amqp.Delivery{}, false, fmt.Errorf("failed to get from %s: %w", queue, err)
	}
	return delivery, ok, nil
}

// Ack acknowledges a delivery
func (c *Client) Ack(tag uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.channel.Ack(tag, false); err != nil {
		return fmt.Errorf("failed to ack delivery %d: %w", tag, err)
	}
	return nil
}

// Nack negatively acknowledges a delivery. Without requeue the message goes
// to the queue's dead-letter target, if any.
func (c *Client) Nack(tag uint64, requeue bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.channel.Nack(tag, false, requeue); err != nil {
		return fmt.Errorf("failed to nack delivery %d: %w", tag, err)
	}
	return nil
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.stateMu.Lock()
	c.isConnected = false
	c.stateMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	select {
	case err := <-c.closeChan:
		if err != nil {
			c.logger.Error("RabbitMQ channel closed", slog.Any("error", err))
		}
		c.isConnected = false
	default:
	}
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}
