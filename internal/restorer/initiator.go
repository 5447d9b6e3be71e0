// Package restorer brings archived results back to the hot tier after a
// user upgrades to premium.
package restorer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// UserJobs lists a user's jobs
type UserJobs interface {
	QueryByUser(ctx context.Context, userID string) ([]domain.Job, error)
}

// Initiator starts a retrieval for every archived job of an upgraded user
type Initiator struct {
	jobs   UserJobs
	cold   artifact.ColdStore
	logger *slog.Logger
}

// NewInitiator creates an Initiator
func NewInitiator(jobs UserJobs, cold artifact.ColdStore, logger *slog.Logger) *Initiator {
	return &Initiator{jobs: jobs, cold: cold, logger: logger}
}

// Handle processes one upgrade event. Expedited retrieval is tried first and
// falls back to standard when expedited capacity is exhausted. Any other
// failure fails the whole event; retrievals already started stay started.
func (i *Initiator) Handle(ctx context.Context, msg bus.Message) error {
	event, err := bus.Unwrap[domain.UpgradeEvent](msg.Body)
	if err != nil {
		return err
	}
	return i.Restore(ctx, event.UserID)
}

// Restore initiates retrievals for userID's archived jobs
func (i *Initiator) Restore(ctx context.Context, userID string) error {
	jobs, err := i.jobs.QueryByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	initiated := 0
	for _, job := range jobs {
		if !job.IsArchived() {
			continue
		}

		retrievalID, tier, err := i.initiate(ctx, *job.ArchiveID, job.JobID)
		if err != nil {
			return fmt.Errorf("job %s: %w", job.JobID, err)
		}
		initiated++

		i.logger.Info("Retrieval initiated",
			slog.String("job_id", job.JobID),
			slog.String("archive_id", *job.ArchiveID),
			slog.String("retrieval_job_id", retrievalID),
			slog.String("tier", tier),
		)
	}

	i.logger.Info("Upgrade processed",
		slog.String("user_id", userID),
		slog.Int("jobs", len(jobs)),
		slog.Int("retrievals", initiated),
	)
	return nil
}

func (i *Initiator) initiate(ctx context.Context, archiveID, jobID string) (string, string, error) {
	retrievalID, err := i.cold.InitiateRetrieval(ctx, archiveID, domain.RetrievalExpedited, jobID)
	if err == nil {
		return retrievalID, domain.RetrievalExpedited, nil
	}
	if domain.KindOf(err) != domain.KindCapacity {
		return "", "", fmt.Errorf("expedited retrieval: %w", err)
	}

	i.logger.Warn("Expedited capacity exhausted, falling back to standard retrieval",
		slog.String("job_id", jobID),
	)
	retrievalID, err = i.cold.InitiateRetrieval(ctx, archiveID, domain.RetrievalStandard, jobID)
	if err != nil {
		return "", "", fmt.Errorf("standard retrieval: %w", err)
	}
	return retrievalID, domain.RetrievalStandard, nil
}
