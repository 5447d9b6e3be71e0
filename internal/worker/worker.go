package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/google/uuid"
)

// JobStore is the subset of the job store the worker writes through
type JobStore interface {
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, c jobstore.Completion) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Jobs        JobStore
	Artifacts   artifact.HotStore
	Annotator   Annotator
	Finalizer   *Finalizer
	JobsDir     string
	Concurrency int
	JobTimeout  time.Duration
}

// Worker dispatches job requests to a pool of annotation goroutines
type Worker struct {
	logger      *slog.Logger
	jobs        JobStore
	artifacts   artifact.HotStore
	annotator   Annotator
	finalizer   *Finalizer
	jobsDir     string
	concurrency int
	jobTimeout  time.Duration
	workerID    string
	tasks       *taskQueue
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:      cfg.Logger,
		jobs:        cfg.Jobs,
		artifacts:   cfg.Artifacts,
		annotator:   cfg.Annotator,
		finalizer:   cfg.Finalizer,
		jobsDir:     cfg.JobsDir,
		concurrency: concurrency,
		jobTimeout:  cfg.JobTimeout,
		workerID:    uuid.NewString()[:8],
		tasks:       newTaskQueue(),
		stopChan:    make(chan struct{}),
	}
}

// Start spawns the annotation pool. Job requests reach it through Handle.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	w.spawnWorkerPool(ctx)
}

// Stop gracefully stops the worker and waits for running annotations
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		if n := w.tasks.size(); n > 0 {
			w.logger.Warn("Claimed jobs left unprocessed", slog.Int("count", n))
		}
		w.logger.Info("Worker stopped")
	})
}

// Queued returns the number of claimed jobs waiting for a free goroutine
func (w *Worker) Queued() int {
	return w.tasks.size()
}
