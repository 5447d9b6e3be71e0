package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `job_id, user_id, input_file_name, s3_inputs_bucket, s3_key_input_file,
	submit_time, job_status, complete_time, s3_results_bucket, s3_key_result_file,
	s3_key_log_file, results_file_archive_id`

// Store is the job store. It is the single source of truth for job state;
// callers re-read instead of caching records across calls.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store over a PostgreSQL or sqlite handle
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Put inserts a new job. An existing record with the same job_id is never
// overwritten; ErrConditionFailed is returned instead.
func (s *Store) Put(ctx context.Context, job *domain.Job) error {
	query := s.db.Rebind(`
		INSERT INTO annotations (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO NOTHING
	`)

	result, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.UserID,
		job.InputFileName,
		job.InputBucket,
		job.InputKey,
		job.SubmitTime,
		job.Status,
		job.CompleteTime,
		job.ResultsBucket,
		job.ResultKey,
		job.LogKey,
		job.ArchiveID,
	)
	if err != nil {
		return fmt.Errorf("failed to put job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s already exists: %w", job.JobID, domain.ErrConditionFailed)
	}

	return nil
}

// Get retrieves a job by its ID
func (s *Store) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM annotations WHERE job_id = ?`)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrJobNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// Update applies u to the job atomically. It returns ErrJobNotFound when the
// job does not exist and ErrConditionFailed when a condition does not hold.
func (s *Store) Update(ctx context.Context, jobID string, u Update) error {
	query, args, err := u.build(jobID)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT 1 FROM annotations WHERE job_id = ?`), jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check job existence: %w", err)
	}

	return fmt.Errorf("job %s: %w", jobID, domain.ErrConditionFailed)
}

// QueryByUser returns every job owned by userID, newest first
func (s *Store) QueryByUser(ctx context.Context, userID string) ([]domain.Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM annotations
		WHERE user_id = ? ORDER BY submit_time DESC, job_id DESC`)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to query jobs by user: %w", err)
	}
	return jobs, nil
}

// Cursor marks the last job of a page
type Cursor struct {
	SubmitTime int64
	JobID      string
}

// ListFilter selects one page of a user's jobs
type ListFilter struct {
	UserID   string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// ListByUser returns up to PageSize+1 jobs so callers can detect a next page
func (s *Store) ListByUser(ctx context.Context, filter ListFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM annotations WHERE user_id = ?`
	args := []any{filter.UserID}

	if filter.Status != "" {
		query += " AND job_status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (submit_time, job_id) < (?, ?)"
		args = append(args, filter.Cursor.SubmitTime, filter.Cursor.JobID)
	}

	query += " ORDER BY submit_time DESC, job_id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
