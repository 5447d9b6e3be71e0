// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/genomics-pipeline/internal/account"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/cuongbtq/genomics-pipeline/shared/logger"
	"github.com/cuongbtq/genomics-pipeline/shared/sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewDB opens a fresh sqlite database in the test's temp dir
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	client, err := sqlite.NewClient(filepath.Join(t.TempDir(), "pipeline.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client.GetDB()
}

// NewJobStore returns a migrated job store on a fresh database
func NewJobStore(t *testing.T) *jobstore.Store {
	t.Helper()

	store := jobstore.NewStore(NewDB(t), logger.Discard())
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

// NewStores returns a job store and an account store sharing one database
func NewStores(t *testing.T) (*jobstore.Store, *account.Store) {
	t.Helper()

	db := NewDB(t)
	jobs := jobstore.NewStore(db, logger.Discard())
	require.NoError(t, jobs.EnsureSchema(context.Background()))
	accounts := account.NewStore(db, logger.Discard())
	require.NoError(t, accounts.EnsureSchema(context.Background()))
	return jobs, accounts
}
