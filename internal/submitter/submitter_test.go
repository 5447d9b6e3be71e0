package submitter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/bus/bustest"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/submitter"
	"github.com/cuongbtq/genomics-pipeline/internal/testutil"
	"github.com/cuongbtq/genomics-pipeline/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requestTopic = "job-requests"

func setup(t *testing.T) (*submitter.Submitter, *bustest.Bus, *bustest.Queue) {
	t.Helper()
	b := bustest.New()
	requests := b.Queue("requests", requestTopic)
	s := submitter.New(testutil.NewJobStore(t), bus.NewPublisher(b, logger.Discard()), requestTopic, logger.Discard())
	return s, b, requests
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	s, _, requests := setup(t)

	job, err := s.Submit(ctx, "gas-inputs", "gas/u1/j1~sample.vcf")
	require.NoError(t, err)
	assert.Equal(t, "u1", job.UserID)
	assert.Equal(t, "j1", job.JobID)
	assert.Equal(t, "sample.vcf", job.InputFileName)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.NotZero(t, job.SubmitTime)

	msgs := requests.Visible()
	require.Len(t, msgs, 1)
	req, err := bus.Unwrap[domain.JobRequest](msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "j1", req.JobID)
	assert.Equal(t, "gas-inputs", req.InputBucket)
	assert.Equal(t, "gas/u1/j1~sample.vcf", req.InputKey)
	assert.Equal(t, domain.JobStatusPending, req.Status)
}

func TestSubmit_InvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
		err  error
	}{
		{"missing attachment", "gas/u1/j1~", domain.ErrMissingAttachment},
		{"no separator", "gas/u1/j1", domain.ErrMalformedMessage},
		{"no user", "j1~a.vcf", domain.ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, requests := setup(t)
			_, err := s.Submit(context.Background(), "gas-inputs", tt.key)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, requests.Visible())
		})
	}
}

func TestSubmit_PublishFailure(t *testing.T) {
	s, b, _ := setup(t)
	b.FailSends(errors.New("broker down"))

	job, err := s.Submit(context.Background(), "gas-inputs", "gas/u1/j1~sample.vcf")
	assert.Error(t, err)
	require.NotNil(t, job)

	// a retried signal republishes the still-pending job
	b.FailSends(nil)
	job, err = s.Submit(context.Background(), "gas-inputs", "gas/u1/j1~sample.vcf")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
}

func TestSubmit_RepeatDoesNotRegress(t *testing.T) {
	ctx := context.Background()
	b := bustest.New()
	requests := b.Queue("requests", requestTopic)
	store := testutil.NewJobStore(t)
	s := submitter.New(store, bus.NewPublisher(b, logger.Discard()), requestTopic, logger.Discard())

	_, err := s.Submit(ctx, "gas-inputs", "gas/u1/j1~sample.vcf")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, "j1"))

	job, err := s.Submit(ctx, "gas-inputs", "gas/u1/j1~sample.vcf")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, job.Status)
	assert.Len(t, requests.Visible(), 1)
}
