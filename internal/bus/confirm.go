package bus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// Confirmer completes the subscription handshake by fetching SubscribeURL.
// Each URL is fetched at most once per process.
type Confirmer struct {
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	confirmed map[string]bool
}

// NewConfirmer creates a Confirmer. A nil client uses http.DefaultClient.
func NewConfirmer(client *http.Client, logger *slog.Logger) *Confirmer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Confirmer{
		client:    client,
		logger:    logger,
		confirmed: make(map[string]bool),
	}
}

// Confirm fetches the envelope's SubscribeURL
func (c *Confirmer) Confirm(ctx context.Context, env Envelope) error {
	if env.SubscribeURL == "" {
		return fmt.Errorf("subscription confirmation without SubscribeURL")
	}

	c.mu.Lock()
	done := c.confirmed[env.SubscribeURL]
	c.mu.Unlock()
	if done {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.SubscribeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build confirmation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("subscription confirmation returned status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.confirmed[env.SubscribeURL] = true
	c.mu.Unlock()

	c.logger.Info("Subscription confirmed",
		slog.String("topic", env.Topic),
	)
	return nil
}
