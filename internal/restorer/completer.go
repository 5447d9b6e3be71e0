package restorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// JobStore is the subset of the job store the completer uses
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	MarkRestored(ctx context.Context, jobID, resultsBucket, resultKey string) error
}

// CompleterConfig holds completer configuration
type CompleterConfig struct {
	ResultsBucket string
	KeyPrefix     string
}

// Completer moves retrieved bytes back to the hot tier
type Completer struct {
	jobs   JobStore
	hot    artifact.HotStore
	cold   artifact.ColdStore
	config CompleterConfig
	logger *slog.Logger
}

// NewCompleter creates a Completer
func NewCompleter(jobs JobStore, hot artifact.HotStore, cold artifact.ColdStore, config CompleterConfig, logger *slog.Logger) *Completer {
	return &Completer{
		jobs:   jobs,
		hot:    hot,
		cold:   cold,
		config: config,
		logger: logger,
	}
}

// Handle processes one retrieval-completion message
func (c *Completer) Handle(ctx context.Context, msg bus.Message) error {
	completion, err := bus.Unwrap[domain.RetrievalCompletion](msg.Body)
	if err != nil {
		return err
	}
	return c.Complete(ctx, completion)
}

// Complete restores the retrieved result: upload it to the hot tier, point
// the job at it, then delete the archive. A completion whose job was already
// restored only finishes the archive deletion.
func (c *Completer) Complete(ctx context.Context, completion domain.RetrievalCompletion) error {
	logger := c.logger.With(
		slog.String("job_id", completion.JobDescription),
		slog.String("retrieval_job_id", completion.RetrievalJobID),
	)

	if !completion.Succeeded() {
		logger.Error("Retrieval did not succeed",
			slog.String("status_code", completion.StatusCode),
		)
		return nil
	}

	job, err := c.jobs.Get(ctx, completion.JobDescription)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if !job.IsArchived() {
		logger.Info("Job already restored, finishing archive deletion")
		return c.deleteArchive(ctx, completion.ArchiveID)
	}
	if *job.ArchiveID != completion.ArchiveID {
		logger.Warn("Completion refers to an archive the job no longer uses",
			slog.String("archive_id", completion.ArchiveID),
			slog.String("current_archive_id", *job.ArchiveID),
		)
		return nil
	}

	bucket := c.config.ResultsBucket
	if job.ResultsBucket != nil && *job.ResultsBucket != "" {
		bucket = *job.ResultsBucket
	}
	key := domain.ArtifactKey(c.config.KeyPrefix, job.UserID, job.JobID, domain.ResultFileName(job.InputFileName))

	data, err := c.cold.FetchRetrieved(ctx, completion.RetrievalJobID)
	if err != nil {
		return fmt.Errorf("failed to fetch retrieved archive: %w", err)
	}

	if err := c.hot.Put(ctx, bucket, key, data); err != nil {
		return fmt.Errorf("failed to upload restored result: %w", err)
	}

	err = c.jobs.MarkRestored(ctx, job.JobID, bucket, key)
	if err != nil && !errors.Is(err, domain.ErrConditionFailed) {
		return fmt.Errorf("failed to record restore: %w", err)
	}

	if err := c.deleteArchive(ctx, completion.ArchiveID); err != nil {
		return err
	}

	logger.Info("Result restored",
		slog.String("result_key", key),
		slog.Int("size", len(data)),
	)
	return nil
}

func (c *Completer) deleteArchive(ctx context.Context, archiveID string) error {
	err := c.cold.Delete(ctx, archiveID)
	if err != nil && domain.KindOf(err) != domain.KindNotFound {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}
