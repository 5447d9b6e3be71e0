package jobstore

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// MarkRunning moves a job PENDING -> RUNNING. ErrConditionFailed means the job
// already left PENDING, i.e. a duplicate delivery.
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	err := s.Update(ctx, jobID, Update{
		Set:        map[Field]any{FieldStatus: domain.JobStatusRunning},
		Conditions: []Condition{BeginsWith(FieldStatus, domain.JobStatusPending)},
	})
	if err == nil {
		s.logger.Info("Job status updated",
			slog.String("job_id", jobID),
			slog.String("status", domain.JobStatusRunning),
		)
	}
	return err
}

// Completion is the terminal result metadata of a job
type Completion struct {
	CompleteTime  int64
	ResultsBucket string
	ResultKey     string
	LogKey        string
}

// MarkCompleted writes COMPLETED together with the result metadata. It is
// guarded only against an already-archived result, which would otherwise
// hold both a hot reference and an archive id.
func (s *Store) MarkCompleted(ctx context.Context, jobID string, c Completion) error {
	err := s.Update(ctx, jobID, Update{
		Set: map[Field]any{
			FieldStatus:        domain.JobStatusCompleted,
			FieldCompleteTime:  c.CompleteTime,
			FieldResultsBucket: c.ResultsBucket,
			FieldResultKey:     c.ResultKey,
			FieldLogKey:        c.LogKey,
		},
		Conditions: []Condition{NotExists(FieldArchiveID)},
	})
	if err == nil {
		s.logger.Info("Job status updated",
			slog.String("job_id", jobID),
			slog.String("status", domain.JobStatusCompleted),
		)
	}
	return err
}

// MarkArchived records the archive handle and drops the hot reference, only
// while the hot reference still exists
func (s *Store) MarkArchived(ctx context.Context, jobID, archiveID string) error {
	return s.Update(ctx, jobID, Update{
		Set:        map[Field]any{FieldArchiveID: archiveID},
		Remove:     []Field{FieldResultKey},
		Conditions: []Condition{Exists(FieldResultKey)},
	})
}

// MarkRestored records the restored hot reference and drops the archive
// handle, only while the archive handle still exists
func (s *Store) MarkRestored(ctx context.Context, jobID, resultsBucket, resultKey string) error {
	return s.Update(ctx, jobID, Update{
		Set: map[Field]any{
			FieldResultsBucket: resultsBucket,
			FieldResultKey:     resultKey,
		},
		Remove:     []Field{FieldArchiveID},
		Conditions: []Condition{Exists(FieldArchiveID)},
	})
}
