// Package account resolves a user's subscription tier
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/jmoiron/sqlx"
)

// TierProvider answers which tier a user is on
type TierProvider interface {
	Tier(ctx context.Context, userID string) (domain.Tier, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id    TEXT PRIMARY KEY,
		role       TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

// Store keeps user tiers in the accounts table
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new account Store
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// EnsureSchema creates the accounts table
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply accounts schema: %w", err)
		}
	}
	return nil
}

// Tier returns the user's tier. Users without an account row are free.
func (s *Store) Tier(ctx context.Context, userID string) (domain.Tier, error) {
	var role string
	err := s.db.GetContext(ctx, &role, s.db.Rebind(`SELECT role FROM accounts WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get tier for %s: %w", userID, err)
	}
	return domain.Tier(role), nil
}

// SetTier records the user's tier
func (s *Store) SetTier(ctx context.Context, userID string, tier domain.Tier) error {
	query := s.db.Rebind(`
		INSERT INTO accounts (user_id, role, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
	`)
	if _, err := s.db.ExecContext(ctx, query, userID, string(tier), s.now().Unix()); err != nil {
		return fmt.Errorf("failed to set tier for %s: %w", userID, err)
	}

	s.logger.Info("Account tier updated",
		slog.String("user_id", userID),
		slog.String("tier", string(tier)),
	)
	return nil
}
