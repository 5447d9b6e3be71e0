package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
)

const (
	currentAccount       = "-"
	archiveRetrievalType = "archive-retrieval"
)

// GlacierVault is the cold tier on an S3 Glacier vault. Retrieval jobs
// announce completion on retrievalTopic.
type GlacierVault struct {
	client         *glacier.Client
	vault          string
	retrievalTopic string
	logger         *slog.Logger
}

// NewGlacierVault creates a GlacierVault
func NewGlacierVault(client *glacier.Client, vault, retrievalTopic string, logger *slog.Logger) *GlacierVault {
	return &GlacierVault{
		client:         client,
		vault:          vault,
		retrievalTopic: retrievalTopic,
		logger:         logger,
	}
}

func (g *GlacierVault) Archive(ctx context.Context, data []byte, description string) (string, error) {
	out, err := g.client.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          aws.String(currentAccount),
		VaultName:          aws.String(g.vault),
		ArchiveDescription: aws.String(description),
		Body:               bytes.NewReader(data),
	})
	if err != nil {
		return "", glacierError("upload archive", err)
	}

	archiveID := aws.ToString(out.ArchiveId)
	g.logger.Info("Uploaded archive",
		slog.String("vault", g.vault),
		slog.String("archive_id", archiveID),
		slog.Int("size", len(data)),
	)
	return archiveID, nil
}

// InitiateRetrieval starts an archive-retrieval job. description is echoed
// back in the completion notification.
func (g *GlacierVault) InitiateRetrieval(ctx context.Context, archiveID, tier, description string) (string, error) {
	params := &types.JobParameters{
		Type:        aws.String(archiveRetrievalType),
		ArchiveId:   aws.String(archiveID),
		Tier:        aws.String(tier),
		Description: aws.String(description),
	}
	if g.retrievalTopic != "" {
		params.SNSTopic = aws.String(g.retrievalTopic)
	}

	out, err := g.client.InitiateJob(ctx, &glacier.InitiateJobInput{
		AccountId:     aws.String(currentAccount),
		VaultName:     aws.String(g.vault),
		JobParameters: params,
	})
	if err != nil {
		return "", glacierError("initiate retrieval", err)
	}

	return aws.ToString(out.JobId), nil
}

func (g *GlacierVault) FetchRetrieved(ctx context.Context, retrievalJobID string) ([]byte, error) {
	out, err := g.client.GetJobOutput(ctx, &glacier.GetJobOutputInput{
		AccountId: aws.String(currentAccount),
		VaultName: aws.String(g.vault),
		JobId:     aws.String(retrievalJobID),
	})
	if err != nil {
		return nil, glacierError("get job output", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read retrieval %s: %w", retrievalJobID, err)
	}
	return data, nil
}

func (g *GlacierVault) Delete(ctx context.Context, archiveID string) error {
	_, err := g.client.DeleteArchive(ctx, &glacier.DeleteArchiveInput{
		AccountId: aws.String(currentAccount),
		VaultName: aws.String(g.vault),
		ArchiveId: aws.String(archiveID),
	})
	if err != nil {
		return glacierError("delete archive", err)
	}
	return nil
}

// glacierError translates Glacier exceptions into the domain taxonomy
func glacierError(op string, err error) error {
	var capacity *types.InsufficientCapacityException
	if errors.As(err, &capacity) {
		return fmt.Errorf("%s: %w", op, domain.ErrInsufficientCapacity)
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrArtifactNotFound)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
