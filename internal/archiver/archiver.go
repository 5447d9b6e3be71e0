// Package archiver moves free-tier results from the hot tier to the cold
// tier once their free access window has passed.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/genomics-pipeline/internal/account"
	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// JobStore is the subset of the job store the archiver uses
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	MarkArchived(ctx context.Context, jobID, archiveID string) error
}

// Archiver handles archival-eligible messages
type Archiver struct {
	jobs   JobStore
	tiers  account.TierProvider
	hot    artifact.HotStore
	cold   artifact.ColdStore
	logger *slog.Logger
}

// New creates an Archiver
func New(jobs JobStore, tiers account.TierProvider, hot artifact.HotStore, cold artifact.ColdStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		jobs:   jobs,
		tiers:  tiers,
		hot:    hot,
		cold:   cold,
		logger: logger,
	}
}

// Handle archives one job's result. Premium users keep their results hot.
// The job record is re-read first so a redelivered request only finishes
// what an earlier attempt left undone.
func (a *Archiver) Handle(ctx context.Context, msg bus.Message) error {
	req, err := bus.Unwrap[domain.ArchivalRequest](msg.Body)
	if err != nil {
		return err
	}

	logger := a.logger.With(
		slog.String("job_id", req.JobID),
		slog.String("user_id", req.UserID),
	)

	tier, err := a.tiers.Tier(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve tier: %w", err)
	}
	if tier.IsPremium() {
		logger.Info("Premium user, keeping result in hot storage")
		return nil
	}

	job, err := a.jobs.Get(ctx, req.JobID)
	if err != nil {
		return err
	}

	if job.IsArchived() {
		logger.Info("Job already archived, finishing hot deletion",
			slog.String("archive_id", *job.ArchiveID),
		)
		return a.deleteHot(ctx, req.ResultsBucket, req.ResultKey)
	}
	if !job.HasHotResult() {
		logger.Warn("Job has no result to archive",
			slog.String("job_status", job.Status),
		)
		return nil
	}

	bucket := req.ResultsBucket
	if job.ResultsBucket != nil && *job.ResultsBucket != "" {
		bucket = *job.ResultsBucket
	}
	key := *job.ResultKey

	data, err := a.hot.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("failed to read result: %w", err)
	}

	archiveID, err := a.cold.Archive(ctx, data, job.JobID)
	if err != nil {
		return fmt.Errorf("failed to archive result: %w", err)
	}

	if err := a.jobs.MarkArchived(ctx, job.JobID, archiveID); err != nil {
		// the new archive is referenced by nothing
		if delErr := a.cold.Delete(ctx, archiveID); delErr != nil {
			logger.Error("Failed to delete orphaned archive",
				slog.String("archive_id", archiveID),
				slog.Any("error", delErr),
			)
		}
		if errors.Is(err, domain.ErrConditionFailed) {
			logger.Info("Result reference changed concurrently, archive discarded",
				slog.String("archive_id", archiveID),
			)
			return nil
		}
		return fmt.Errorf("failed to record archive: %w", err)
	}

	if err := a.deleteHot(ctx, bucket, key); err != nil {
		return err
	}

	logger.Info("Result archived",
		slog.String("archive_id", archiveID),
		slog.Int("size", len(data)),
	)
	return nil
}

func (a *Archiver) deleteHot(ctx context.Context, bucket, key string) error {
	if err := a.hot.Delete(ctx, bucket, key); err != nil {
		return fmt.Errorf("failed to delete hot result: %w", err)
	}
	return nil
}
