// Package sqlite opens an embedded database for local runs and tests. It
// exposes the same sqlx handle as the PostgreSQL client so stores are shared.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Client wraps an sqlite-backed sqlx.DB
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient opens (creating if needed) the database file at path
func NewClient(path string, logger *slog.Logger) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent consumers
	db.SetMaxOpenConns(1)

	logger.Info("Opened sqlite database", slog.String("path", path))

	return &Client{db: db, logger: logger}, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
