package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// processTask runs the annotation under the job timeout and finalizes the
// results. A failure leaves the job RUNNING with its staged files in place.
func (w *Worker) processTask(ctx context.Context, task *Task) error {
	logger := w.logger.With(
		slog.String("job_id", task.JobID),
		slog.String("worker_id", w.workerID),
	)
	logger.Info("Annotating job", slog.String("input", task.InputPath))

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := w.annotator.Annotate(jobCtx, task.InputPath); err != nil {
		return fmt.Errorf("annotation failed: %w", err)
	}
	logger.Info("Annotation finished", slog.Duration("runtime", time.Since(start)))

	return w.finalizer.Finalize(ctx, task)
}
