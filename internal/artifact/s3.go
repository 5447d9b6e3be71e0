package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

// S3Store is the hot tier on Amazon S3
type S3Store struct {
	client *s3.Client
	logger *slog.Logger
}

// NewS3Store creates an S3Store
func NewS3Store(client *s3.Client, logger *slog.Logger) *S3Store {
	return &S3Store{client: client, logger: logger}
}

// Download writes the object to dest
func (s *S3Store) Download(ctx context.Context, bucket, key, dest string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s3Error("download", bucket, key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	s.logger.Debug("Downloaded object",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.String("dest", dest),
	)
	return nil
}

// Upload puts the file at src under key
func (s *S3Store) Upload(ctx context.Context, src, bucket, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return s3Error("upload", bucket, key, err)
	}

	s.logger.Debug("Uploaded object",
		slog.String("bucket", bucket),
		slog.String("key", key),
	)
	return nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error("get", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return s3Error("put", bucket, key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s3Error("delete", bucket, key, err)
	}
	return nil
}

// s3Error translates S3 error codes into the domain taxonomy
func s3Error(op, bucket, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%s s3://%s/%s: %w", op, bucket, key, domain.ErrArtifactNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%s s3://%s/%s: %w", op, bucket, key, domain.ErrArtifactNotFound)
		}
	}

	return fmt.Errorf("failed to %s s3://%s/%s: %w", op, bucket, key, err)
}
