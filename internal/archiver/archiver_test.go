package archiver_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/account"
	"github.com/cuongbtq/genomics-pipeline/internal/archiver"
	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/bus/bustest"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/cuongbtq/genomics-pipeline/internal/testutil"
	"github.com/cuongbtq/genomics-pipeline/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	resultsBucket = "gas-results"
	resultKey     = "gas/u1/j1~sample.annot.vcf"
)

type fixture struct {
	archiver *archiver.Archiver
	jobs     *jobstore.Store
	accounts *account.Store
	hot      *artifact.FileStore
	vault    *artifact.FileVault
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	jobs, accounts := testutil.NewStores(t)
	hot, err := artifact.NewFileStore(t.TempDir())
	require.NoError(t, err)
	vault, err := artifact.NewFileVault(t.TempDir(), bus.NewPublisher(bustest.New(), logger.Discard()), artifact.VaultOptions{}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(vault.Close)

	require.NoError(t, jobs.Put(ctx, &domain.Job{
		JobID: "j1", UserID: "u1", InputFileName: "sample.vcf", InputBucket: "in",
		InputKey: "gas/u1/j1~sample.vcf", SubmitTime: 1, Status: domain.JobStatusPending,
	}))
	require.NoError(t, jobs.MarkCompleted(ctx, "j1", jobstore.Completion{
		CompleteTime: 2, ResultsBucket: resultsBucket, ResultKey: resultKey, LogKey: "gas/u1/j1~sample.vcf.count.log",
	}))
	require.NoError(t, hot.Put(ctx, resultsBucket, resultKey, []byte("annotated")))

	return &fixture{
		archiver: archiver.New(jobs, accounts, hot, vault, logger.Discard()),
		jobs:     jobs,
		accounts: accounts,
		hot:      hot,
		vault:    vault,
	}
}

func archivalMessage(t *testing.T) bus.Message {
	t.Helper()
	env, err := bus.Wrap("archive", domain.ArchivalRequest{
		UserID: "u1", JobID: "j1", ResultsBucket: resultsBucket, ResultKey: resultKey,
	}, time.Now())
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return bus.Message{Body: body}
}

func TestHandle_FreeUserArchived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.archiver.Handle(ctx, archivalMessage(t)))

	job, err := f.jobs.Get(ctx, "j1")
	require.NoError(t, err)
	require.True(t, job.IsArchived())
	assert.False(t, job.HasHotResult())

	_, err = f.hot.Get(ctx, resultsBucket, resultKey)
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	// archived bytes are retrievable
	_, err = f.vault.InitiateRetrieval(ctx, *job.ArchiveID, domain.RetrievalStandard, "j1")
	assert.NoError(t, err)
}

func TestHandle_PremiumUserKeepsHot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.accounts.SetTier(ctx, "u1", domain.TierPremium))

	require.NoError(t, f.archiver.Handle(ctx, archivalMessage(t)))

	job, err := f.jobs.Get(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, job.HasHotResult())
	assert.False(t, job.IsArchived())

	data, err := f.hot.Get(ctx, resultsBucket, resultKey)
	require.NoError(t, err)
	assert.Equal(t, "annotated", string(data))
}

func TestHandle_Redelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg := archivalMessage(t)

	require.NoError(t, f.archiver.Handle(ctx, msg))
	first, err := f.jobs.Get(ctx, "j1")
	require.NoError(t, err)

	require.NoError(t, f.archiver.Handle(ctx, msg))
	second, err := f.jobs.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, *first.ArchiveID, *second.ArchiveID)
}

// racingJobs marks the job archived by someone else between Get and MarkArchived
type racingJobs struct {
	*jobstore.Store
}

func (r racingJobs) MarkArchived(ctx context.Context, jobID, archiveID string) error {
	if err := r.Store.MarkArchived(ctx, jobID, "other-archive"); err != nil {
		return err
	}
	return r.Store.MarkArchived(ctx, jobID, archiveID)
}

func TestHandle_ConcurrentArchiveDiscardsOrphan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := archiver.New(racingJobs{f.jobs}, f.accounts, f.hot, f.vault, logger.Discard())
	require.NoError(t, a.Handle(ctx, archivalMessage(t)))

	job, err := f.jobs.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "other-archive", *job.ArchiveID)
}

func TestHandle_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.archiver.Handle(ctx, bus.Message{Body: []byte(`{"job_id":"j1"}`)})
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	body, err := json.Marshal(domain.ArchivalRequest{UserID: "u1", JobID: "missing", ResultsBucket: "b", ResultKey: "k"})
	require.NoError(t, err)
	err = f.archiver.Handle(ctx, bus.Message{Body: body})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	require.NoError(t, f.hot.Delete(ctx, resultsBucket, resultKey))
	err = f.archiver.Handle(ctx, archivalMessage(t))
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

type failingTiers struct{}

func (failingTiers) Tier(context.Context, string) (domain.Tier, error) {
	return "", errors.New("accounts unavailable")
}

func TestHandle_TierLookupFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	a := archiver.New(f.jobs, failingTiers{}, f.hot, f.vault, logger.Discard())

	err := a.Handle(context.Background(), archivalMessage(t))
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}
