// Package submitter turns an upload-completion signal into a PENDING job
// and announces it on the job-request topic.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// JobStore is the subset of the job store the submitter writes through
type JobStore interface {
	Put(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
}

// Submitter creates jobs from uploaded inputs
type Submitter struct {
	jobs      JobStore
	publisher bus.Publisher
	topic     string
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Submitter publishing to requestTopic
func New(jobs JobStore, publisher bus.Publisher, requestTopic string, logger *slog.Logger) *Submitter {
	return &Submitter{
		jobs:      jobs,
		publisher: publisher,
		topic:     requestTopic,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit records a PENDING job for the object at bucket/key and publishes
// its job request. The record is written before the request is published.
// A repeated signal for an existing job never rewrites it; a still-PENDING
// job has its request published again.
func (s *Submitter) Submit(ctx context.Context, bucket, key string) (*domain.Job, error) {
	userID, jobID, fileName, err := domain.ParseInputKey(key)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		JobID:         jobID,
		UserID:        userID,
		InputFileName: fileName,
		InputBucket:   bucket,
		InputKey:      key,
		SubmitTime:    s.now().Unix(),
		Status:        domain.JobStatusPending,
	}

	err = s.jobs.Put(ctx, job)
	switch {
	case errors.Is(err, domain.ErrConditionFailed):
		existing, getErr := s.jobs.Get(ctx, jobID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load existing job: %w", getErr)
		}
		if existing.Status != domain.JobStatusPending {
			s.logger.Info("Job already submitted",
				slog.String("job_id", jobID),
				slog.String("job_status", existing.Status),
			)
			return existing, nil
		}
		job = existing
	case err != nil:
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := s.publisher.Publish(ctx, s.topic, job.Request()); err != nil {
		return job, fmt.Errorf("failed to publish job request: %w", err)
	}

	s.logger.Info("Job submitted",
		slog.String("job_id", job.JobID),
		slog.String("user_id", job.UserID),
		slog.String("input_file_name", job.InputFileName),
	)
	return job, nil
}
