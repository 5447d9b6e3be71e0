// Package artifact stores input, result and log files. The hot tier is an
// object store addressed by bucket and key; the cold tier is an archive
// vault whose reads are asynchronous retrieval jobs.
package artifact

import (
	"context"
)

// HotStore is immediately readable object storage
type HotStore interface {
	Download(ctx context.Context, bucket, key, dest string) error
	Upload(ctx context.Context, src, bucket, key string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	Delete(ctx context.Context, bucket, key string) error
}

// ColdStore is archival storage. Reading an archive back requires a
// retrieval job whose completion is announced on the bus.
type ColdStore interface {
	Archive(ctx context.Context, data []byte, description string) (string, error)
	InitiateRetrieval(ctx context.Context, archiveID, tier, description string) (string, error)
	FetchRetrieved(ctx context.Context, retrievalJobID string) ([]byte, error)
	Delete(ctx context.Context, archiveID string) error
}
