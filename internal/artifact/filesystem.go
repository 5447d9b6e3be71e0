package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// FileStore is a hot tier on the local filesystem. Buckets are directories
// under basePath. It is intended for development and tests.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory
func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) path(bucket, key string) (string, error) {
	cleanBucket, err := sanitizeKey(bucket)
	if err != nil || strings.Contains(cleanBucket, "/") {
		return "", fmt.Errorf("storage: invalid bucket %q", bucket)
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, cleanBucket, filepath.FromSlash(cleanKey)), nil
}

func (s *FileStore) Download(ctx context.Context, bucket, key, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	return copyFile(src, dest)
}

func (s *FileStore) Upload(ctx context.Context, src, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	return copyFile(src, dest)
}

func (s *FileStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, domain.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

func (s *FileStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	return nil
}

// Delete removes the object. Deleting a missing object succeeds.
func (s *FileStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", src, domain.ErrArtifactNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: open file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("storage: create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("storage: copy file: %w", err)
	}
	return out.Close()
}

// sanitizeKey normalizes a key and prevents escaping the storage root
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
