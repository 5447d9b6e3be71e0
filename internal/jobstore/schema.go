package jobstore

import (
	"context"
	"fmt"
)

// schema is portable between PostgreSQL and sqlite
var schema = []string{
	`CREATE TABLE IF NOT EXISTS annotations (
		job_id                  TEXT PRIMARY KEY,
		user_id                 TEXT NOT NULL,
		input_file_name         TEXT NOT NULL,
		s3_inputs_bucket        TEXT NOT NULL,
		s3_key_input_file       TEXT NOT NULL,
		submit_time             BIGINT NOT NULL,
		job_status              TEXT NOT NULL,
		complete_time           BIGINT,
		s3_results_bucket       TEXT,
		s3_key_result_file      TEXT,
		s3_key_log_file         TEXT,
		results_file_archive_id TEXT,
		CONSTRAINT result_xor_archive CHECK (s3_key_result_file IS NULL OR results_file_archive_id IS NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS annotations_user_id_idx ON annotations (user_id, submit_time)`,
}

// EnsureSchema creates the annotations table and its index if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply job store schema: %w", err)
		}
	}
	return nil
}
