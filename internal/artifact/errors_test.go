package artifact

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/aws/smithy-go"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestS3Error(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected domain.ErrorKind
	}{
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, domain.KindNotFound},
		{"head not found", &smithy.GenericAPIError{Code: "NotFound"}, domain.KindNotFound},
		{"no such bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, domain.KindNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, domain.KindTransient},
		{"network", errors.New("connection reset"), domain.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.KindOf(s3Error("get", "b", "k", tt.err)))
		})
	}
}

func TestGlacierError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected domain.ErrorKind
	}{
		{"capacity", &types.InsufficientCapacityException{}, domain.KindCapacity},
		{"not found", &types.ResourceNotFoundException{}, domain.KindNotFound},
		{"throttled", &types.ServiceUnavailableException{}, domain.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.KindOf(glacierError("initiate retrieval", tt.err)))
		})
	}
}
