package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/google/uuid"
)

// ErrStopping is returned when a request arrives while the worker shuts down
var ErrStopping = errors.New("worker is stopping")

// Handle processes one job-request message: stage the input, claim the
// job (PENDING -> RUNNING), then queue it for the pool. Handle returns once
// the job is queued and never waits for a free pool goroutine. A request
// that loses the claim leaves nothing behind in the staging area.
func (w *Worker) Handle(ctx context.Context, msg bus.Message) error {
	req, err := bus.Unwrap[domain.JobRequest](msg.Body)
	if err != nil {
		return err
	}

	logger := w.logger.With(
		slog.String("job_id", req.JobID),
		slog.String("user_id", req.UserID),
	)

	fileName := filepath.Base(req.InputFileName)
	if fileName == "." || fileName == string(filepath.Separator) {
		return fmt.Errorf("%w: invalid input file name %q", domain.ErrMalformedMessage, req.InputFileName)
	}

	select {
	case <-w.stopChan:
		return ErrStopping
	default:
	}

	userDir := filepath.Join(w.jobsDir, filepath.Base(req.UserID))
	jobDir := filepath.Join(userDir, filepath.Base(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	inputPath := filepath.Join(jobDir, fileName)
	partial, err := w.stageInput(ctx, req, inputPath)
	if err != nil {
		removeEmptyDirs(jobDir, userDir)
		return err
	}

	if err := w.jobs.MarkRunning(ctx, req.JobID); err != nil {
		os.Remove(partial)
		removeEmptyDirs(jobDir, userDir)
		if errors.Is(err, domain.ErrConditionFailed) {
			logger.Info("Job already claimed, skipping duplicate request")
			return nil
		}
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	if err := os.Rename(partial, inputPath); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to stage input: %w", err)
	}

	w.tasks.push(&Task{
		JobID:         req.JobID,
		UserID:        req.UserID,
		InputFileName: fileName,
		Dir:           jobDir,
		InputPath:     inputPath,
	})
	logger.Info("Job claimed and queued", slog.Int("queued", w.tasks.size()))
	return nil
}

// stageInput downloads the input next to its final path. The caller renames
// it in only after winning the claim, so a duplicate request never touches a
// file being annotated.
func (w *Worker) stageInput(ctx context.Context, req domain.JobRequest, inputPath string) (string, error) {
	partial := inputPath + ".part-" + uuid.NewString()[:8]
	if err := w.artifacts.Download(ctx, req.InputBucket, req.InputKey, partial); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to download input: %w", err)
	}
	return partial, nil
}

// removeEmptyDirs removes each directory in order, stopping at the first one
// that still has entries
func removeEmptyDirs(dirs ...string) {
	for _, dir := range dirs {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
