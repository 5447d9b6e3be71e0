package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Task is one staged and claimed job handed to the pool
type Task struct {
	JobID         string
	UserID        string
	InputFileName string
	Dir           string
	InputPath     string
}

// taskQueue is an unbounded FIFO between the dispatcher and the pool.
// push never blocks, so Handle returns as soon as a job is claimed.
type taskQueue struct {
	mu     sync.Mutex
	items  []*Task
	notify chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{notify: make(chan struct{}, 1)}
}

func (q *taskQueue) push(task *Task) {
	q.mu.Lock()
	q.items = append(q.items, task)
	q.mu.Unlock()
	q.signal()
}

// pop removes the oldest task. Another waiter is woken while work remains
// because pushes coalesce into a single notification.
func (q *taskQueue) pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	task := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return task, true
}

func (q *taskQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *taskQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return
		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return
		default:
		}

		task, ok := w.tasks.pop()
		if !ok {
			select {
			case <-w.stopChan:
				logger.Debug("Worker goroutine stopping - stopChan closed")
				return
			case <-ctx.Done():
				logger.Debug("Worker goroutine stopping - context canceled")
				return
			case <-w.tasks.notify:
			}
			continue
		}

		if err := w.processTask(ctx, task); err != nil {
			logger.Error("Job processing failed",
				slog.String("job_id", task.JobID),
				slog.Any("error", err),
			)
		}
	}
}
