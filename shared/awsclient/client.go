// Package awsclient builds AWS service clients from the default credential chain
package awsclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds AWS client configuration
type Config struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for LocalStack
	Endpoint string
}

// Clients holds the service clients the pipeline uses
type Clients struct {
	S3      *s3.Client
	Glacier *glacier.Client
}

// New loads the default AWS configuration and creates the service clients
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Clients, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	glacierClient := glacier.NewFromConfig(awsCfg, func(o *glacier.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("AWS clients initialized",
		slog.String("region", awsCfg.Region),
		slog.String("endpoint", cfg.Endpoint),
	)

	return &Clients{S3: s3Client, Glacier: glacierClient}, nil
}
