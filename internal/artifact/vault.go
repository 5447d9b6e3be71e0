package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/google/uuid"
)

// VaultOptions tunes FileVault retrieval behaviour
type VaultOptions struct {
	// RetrievalTopic receives a RetrievalCompletion when a retrieval finishes
	RetrievalTopic string
	ExpeditedDelay time.Duration
	StandardDelay  time.Duration
	// ExpeditedCapacity bounds concurrent expedited retrievals.
	// Zero means unlimited, negative means none are accepted.
	ExpeditedCapacity int
}

// FileVault is a cold tier on the local filesystem. Retrievals complete
// asynchronously after a delay and are announced through publisher.
type FileVault struct {
	basePath  string
	publisher bus.Publisher
	opts      VaultOptions
	logger    *slog.Logger

	mu        sync.Mutex
	expedited int
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewFileVault creates a FileVault rooted at basePath
func NewFileVault(basePath string, publisher bus.Publisher, opts VaultOptions, logger *slog.Logger) (*FileVault, error) {
	for _, dir := range []string{"archives", "retrievals"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("vault: ensure %s: %w", dir, err)
		}
	}
	return &FileVault{
		basePath:  basePath,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// validID rejects ids that would escape the vault directories
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}

func (v *FileVault) archivePath(id string) string {
	return filepath.Join(v.basePath, "archives", id)
}

func (v *FileVault) retrievalPath(id string) string {
	return filepath.Join(v.basePath, "retrievals", id)
}

func (v *FileVault) Archive(ctx context.Context, data []byte, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(v.archivePath(id), data, 0o644); err != nil {
		return "", fmt.Errorf("vault: write archive: %w", err)
	}
	v.logger.Info("Archived object",
		slog.String("archive_id", id),
		slog.String("description", description),
	)
	return id, nil
}

func (v *FileVault) InitiateRetrieval(ctx context.Context, archiveID, tier, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validID(archiveID) {
		return "", fmt.Errorf("archive %q: %w", archiveID, domain.ErrArtifactNotFound)
	}
	if _, err := os.Stat(v.archivePath(archiveID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("archive %s: %w", archiveID, domain.ErrArtifactNotFound)
		}
		return "", fmt.Errorf("vault: stat archive: %w", err)
	}

	delay := v.opts.StandardDelay
	if tier == domain.RetrievalExpedited {
		if !v.reserveExpedited() {
			return "", fmt.Errorf("expedited retrieval of %s: %w", archiveID, domain.ErrInsufficientCapacity)
		}
		delay = v.opts.ExpeditedDelay
	}

	jobID := uuid.NewString()
	v.wg.Add(1)
	go v.complete(jobID, archiveID, tier, description, delay)

	v.logger.Info("Retrieval initiated",
		slog.String("retrieval_job_id", jobID),
		slog.String("archive_id", archiveID),
		slog.String("tier", tier),
	)
	return jobID, nil
}

func (v *FileVault) reserveExpedited() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case v.opts.ExpeditedCapacity < 0:
		return false
	case v.opts.ExpeditedCapacity > 0 && v.expedited >= v.opts.ExpeditedCapacity:
		return false
	}
	v.expedited++
	return true
}

// complete copies the archive into the retrieval area and announces it
func (v *FileVault) complete(jobID, archiveID, tier, description string, delay time.Duration) {
	defer v.wg.Done()
	if tier == domain.RetrievalExpedited {
		defer func() {
			v.mu.Lock()
			v.expedited--
			v.mu.Unlock()
		}()
	}

	select {
	case <-v.done:
		return
	case <-time.After(delay):
	}

	status := domain.RetrievalSucceeded
	if err := copyFile(v.archivePath(archiveID), v.retrievalPath(jobID)); err != nil {
		v.logger.Error("Retrieval failed",
			slog.String("retrieval_job_id", jobID),
			slog.Any("error", err),
		)
		status = "Failed"
	}

	completion := domain.RetrievalCompletion{
		RetrievalJobID: jobID,
		JobDescription: description,
		StatusCode:     status,
		ArchiveID:      archiveID,
	}
	if err := v.publisher.Publish(context.Background(), v.opts.RetrievalTopic, completion); err != nil {
		v.logger.Error("Failed to announce retrieval completion",
			slog.String("retrieval_job_id", jobID),
			slog.Any("error", err),
		)
	}
}

func (v *FileVault) FetchRetrieved(ctx context.Context, retrievalJobID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(retrievalJobID) {
		return nil, fmt.Errorf("retrieval %q: %w", retrievalJobID, domain.ErrArtifactNotFound)
	}
	data, err := os.ReadFile(v.retrievalPath(retrievalJobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("retrieval %s: %w", retrievalJobID, domain.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read retrieval: %w", err)
	}
	return data, nil
}

// Delete removes the archive. Deleting a missing archive succeeds.
func (v *FileVault) Delete(ctx context.Context, archiveID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(archiveID) {
		return fmt.Errorf("vault: invalid archive id %q", archiveID)
	}
	if err := os.Remove(v.archivePath(archiveID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vault: remove archive: %w", err)
	}
	return nil
}

// Close abandons pending retrievals and waits for in-flight ones
func (v *FileVault) Close() {
	close(v.done)
	v.wg.Wait()
}
