package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
)

// FinalizerConfig holds result finalizer configuration
type FinalizerConfig struct {
	ResultsBucket string
	KeyPrefix     string
	// ArchiveTopic receives the archival request once the job is COMPLETED
	ArchiveTopic string
}

// Finalizer publishes an annotation's outputs: upload, mark the job
// COMPLETED, announce archival eligibility, then clean the staging area.
type Finalizer struct {
	jobs      JobStore
	artifacts artifact.HotStore
	publisher bus.Publisher
	config    FinalizerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewFinalizer creates a Finalizer
func NewFinalizer(jobs JobStore, artifacts artifact.HotStore, publisher bus.Publisher, config FinalizerConfig, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		jobs:      jobs,
		artifacts: artifacts,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Finalize completes a task whose annotation has run
func (f *Finalizer) Finalize(ctx context.Context, task *Task) error {
	logger := f.logger.With(slog.String("job_id", task.JobID))

	resultName := domain.ResultFileName(task.InputFileName)
	logName := domain.LogFileName(task.InputFileName)
	resultPath := filepath.Join(task.Dir, resultName)
	logPath := filepath.Join(task.Dir, logName)

	if !isFile(resultPath) || !isFile(logPath) {
		logger.Error("Annotation produced no results",
			slog.String("result_file", resultPath),
			slog.String("log_file", logPath),
		)
		return fmt.Errorf("job %s: %w", task.JobID, domain.ErrResultsMissing)
	}

	resultKey := domain.ArtifactKey(f.config.KeyPrefix, task.UserID, task.JobID, resultName)
	logKey := domain.ArtifactKey(f.config.KeyPrefix, task.UserID, task.JobID, logName)

	if err := f.artifacts.Upload(ctx, logPath, f.config.ResultsBucket, logKey); err != nil {
		return fmt.Errorf("failed to upload log file: %w", err)
	}
	if err := f.artifacts.Upload(ctx, resultPath, f.config.ResultsBucket, resultKey); err != nil {
		return fmt.Errorf("failed to upload result file: %w", err)
	}

	err := f.jobs.MarkCompleted(ctx, task.JobID, jobstore.Completion{
		CompleteTime:  f.now().Unix(),
		ResultsBucket: f.config.ResultsBucket,
		ResultKey:     resultKey,
		LogKey:        logKey,
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		// an earlier run already completed and archived this job
		logger.Warn("Job already archived, discarding duplicate result")
		if delErr := f.artifacts.Delete(ctx, f.config.ResultsBucket, resultKey); delErr != nil {
			logger.Warn("Failed to delete duplicate result", slog.Any("error", delErr))
		}
		f.cleanup(task)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	archival := domain.ArchivalRequest{
		UserID:        task.UserID,
		JobID:         task.JobID,
		ResultsBucket: f.config.ResultsBucket,
		ResultKey:     resultKey,
	}
	if err := f.publisher.Publish(ctx, f.config.ArchiveTopic, archival); err != nil {
		return fmt.Errorf("failed to publish archival request: %w", err)
	}

	logger.Info("Job completed",
		slog.String("result_key", resultKey),
		slog.String("log_key", logKey),
	)

	f.cleanup(task)
	return nil
}

// cleanup removes the staged files and the job directory. Failures are logged only.
func (f *Finalizer) cleanup(task *Task) {
	if err := os.RemoveAll(task.Dir); err != nil {
		f.logger.Warn("Failed to remove job directory",
			slog.String("job_id", task.JobID),
			slog.String("dir", task.Dir),
			slog.Any("error", err),
		)
		return
	}
	// the user directory goes once its last job is gone
	_ = os.Remove(filepath.Dir(task.Dir))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
