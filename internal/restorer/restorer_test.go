package restorer_test

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
	"github.com/cuongbtq/genomics-pipeline/internal/consumer"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/cuongbtq/genomics-pipeline/internal/restorer"
	"github.com/cuongbtq/genomics-pipeline/internal/testutil"
	"github.com/cuongbtq/genomics-pipeline/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	resultsBucket  = "gas-results"
	retrievalTopic = "archive-retrieved"
	resultVCF      = "##fileformat=VCFv4.1\nchr1\t123\t.\tA\tG\t.\tPASS\tGENE=X\n"
)

type fixture struct {
	jobs        *jobstore.Store
	accounts    *account.Store
	hot         *artifact.FileStore
	vault       *artifact.FileVault
	completions *bustest.Queue
	initiator   *restorer.Initiator
	completer   *restorer.Completer
}

func newFixture(t *testing.T, opts artifact.VaultOptions) *fixture {
	t.Helper()

	jobs, accounts := testutil.NewStores(t)
	hot, err := artifact.NewFileStore(t.TempDir())
	require.NoError(t, err)

	b := bustest.New()
	completions := b.Queue("restore", retrievalTopic)
	opts.RetrievalTopic = retrievalTopic
	vault, err := artifact.NewFileVault(t.TempDir(), bus.NewPublisher(b, logger.Discard()), opts, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(vault.Close)

	return &fixture{
		jobs:        jobs,
		accounts:    accounts,
		hot:         hot,
		vault:       vault,
		completions: completions,
		initiator:   restorer.NewInitiator(jobs, vault, logger.Discard()),
		completer: restorer.NewCompleter(jobs, hot, vault, restorer.CompleterConfig{
			ResultsBucket: resultsBucket,
		}, logger.Discard()),
	}
}

// completeAndArchive brings jobID to COMPLETED with result bytes, then archives it
func (f *fixture) completeAndArchive(t *testing.T, jobID string) {
	t.Helper()
	ctx := context.Background()

	resultKey := domain.ArtifactKey("", "u", jobID, "result.annot.vcf")
	require.NoError(t, f.jobs.Put(ctx, &domain.Job{
		JobID: jobID, UserID: "u", InputFileName: "result.vcf", InputBucket: "in",
		InputKey: "u/" + jobID + "~result.vcf", SubmitTime: time.Now().Unix(), Status: domain.JobStatusPending,
	}))
	require.NoError(t, f.jobs.MarkRunning(ctx, jobID))
	require.NoError(t, f.jobs.MarkCompleted(ctx, jobID, jobstore.Completion{
		CompleteTime: time.Now().Unix(), ResultsBucket: resultsBucket, ResultKey: resultKey, LogKey: resultKey + ".log",
	}))
	require.NoError(t, f.hot.Put(ctx, resultsBucket, resultKey, []byte(resultVCF)))

	a := archiver.New(f.jobs, f.accounts, f.hot, f.vault, logger.Discard())
	body, err := json.Marshal(domain.ArchivalRequest{UserID: "u", JobID: jobID, ResultsBucket: resultsBucket, ResultKey: resultKey})
	require.NoError(t, err)
	require.NoError(t, a.Handle(ctx, bus.Message{Body: body}))

	job, err := f.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	require.True(t, job.IsArchived())
	require.False(t, job.HasHotResult())
}

func upgradeMessage(t *testing.T, userID string) bus.Message {
	t.Helper()
	env, err := bus.Wrap("user-upgrades", domain.UpgradeEvent{UserID: userID}, time.Now())
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return bus.Message{Body: body}
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	// no expedited capacity: every retrieval falls back to standard
	f := newFixture(t, artifact.VaultOptions{ExpeditedCapacity: -1})
	f.completeAndArchive(t, "J1")

	require.NoError(t, f.accounts.SetTier(ctx, "u", domain.TierPremium))
	require.NoError(t, f.initiator.Handle(ctx, upgradeMessage(t, "u")))

	loop := consumer.New(f.completions, f.completer, consumer.Config{Name: "restore", WaitTime: 2 * time.Second}, logger.Discard())
	result, err := loop.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, consumer.Result{Received: 1, Deleted: 1}, result)

	job, err := f.jobs.Get(ctx, "J1")
	require.NoError(t, err)
	assert.False(t, job.IsArchived())
	require.True(t, job.HasHotResult())
	assert.Equal(t, "u/J1~result.annot.vcf", *job.ResultKey)

	restored, err := f.hot.Get(ctx, resultsBucket, *job.ResultKey)
	require.NoError(t, err)
	assert.Equal(t, resultVCF, string(restored))
}

// recordingVault counts retrieval tiers and injects initiation errors
type recordingVault struct {
	artifact.ColdStore
	tiers        []string
	expeditedErr error
	standardErr  error
}

func (v *recordingVault) InitiateRetrieval(ctx context.Context, archiveID, tier, description string) (string, error) {
	v.tiers = append(v.tiers, tier)
	switch {
	case tier == domain.RetrievalExpedited && v.expeditedErr != nil:
		return "", v.expeditedErr
	case tier == domain.RetrievalStandard && v.standardErr != nil:
		return "", v.standardErr
	}
	return "r-" + archiveID, nil
}

func TestInitiator_Tiers(t *testing.T) {
	tests := []struct {
		name          string
		expeditedErr  error
		standardErr   error
		expectedTiers []string
		wantErr       bool
	}{
		{
			name:          "expedited accepted",
			expectedTiers: []string{domain.RetrievalExpedited},
		},
		{
			name:          "capacity falls back to standard",
			expeditedErr:  domain.ErrInsufficientCapacity,
			expectedTiers: []string{domain.RetrievalExpedited, domain.RetrievalStandard},
		},
		{
			name:          "other expedited error fails the batch",
			expeditedErr:  errors.New("vault unavailable"),
			expectedTiers: []string{domain.RetrievalExpedited},
			wantErr:       true,
		},
		{
			name:          "standard fallback error fails the batch",
			expeditedErr:  domain.ErrInsufficientCapacity,
			standardErr:   errors.New("vault unavailable"),
			expectedTiers: []string{domain.RetrievalExpedited, domain.RetrievalStandard},
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, artifact.VaultOptions{})
			f.completeAndArchive(t, "J1")

			vault := &recordingVault{ColdStore: f.vault, expeditedErr: tt.expeditedErr, standardErr: tt.standardErr}
			err := restorer.NewInitiator(f.jobs, vault, logger.Discard()).Handle(context.Background(), upgradeMessage(t, "u"))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedTiers, vault.tiers)
		})
	}
}

func TestInitiator_SkipsHotJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, artifact.VaultOptions{})
	require.NoError(t, f.jobs.Put(ctx, &domain.Job{
		JobID: "hot", UserID: "u", InputFileName: "a.vcf", InputBucket: "in", InputKey: "u/hot~a.vcf",
		SubmitTime: 1, Status: domain.JobStatusPending,
	}))

	vault := &recordingVault{ColdStore: f.vault}
	require.NoError(t, restorer.NewInitiator(f.jobs, vault, logger.Discard()).Handle(ctx, upgradeMessage(t, "u")))
	assert.Empty(t, vault.tiers)

	err := f.initiator.Handle(ctx, bus.Message{Body: []byte(`{}`)})
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestCompleter_NonSuccessLeavesArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, artifact.VaultOptions{})
	f.completeAndArchive(t, "J1")
	before, err := f.jobs.Get(ctx, "J1")
	require.NoError(t, err)

	require.NoError(t, f.completer.Complete(ctx, domain.RetrievalCompletion{
		RetrievalJobID: "r1", JobDescription: "J1", StatusCode: "Failed", ArchiveID: *before.ArchiveID,
	}))

	after, err := f.jobs.Get(ctx, "J1")
	require.NoError(t, err)
	assert.Equal(t, *before.ArchiveID, *after.ArchiveID)
	assert.False(t, after.HasHotResult())
}

func TestCompleter_JobNotFoundIsFatal(t *testing.T) {
	f := newFixture(t, artifact.VaultOptions{})

	err := f.completer.Complete(context.Background(), domain.RetrievalCompletion{
		RetrievalJobID: "r1", JobDescription: "missing", StatusCode: domain.RetrievalSucceeded, ArchiveID: "a1",
	})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.Equal(t, consumer.Reject, consumer.Classify(err))
}

func TestCompleter_Redelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, artifact.VaultOptions{})
	f.completeAndArchive(t, "J1")

	require.NoError(t, f.initiator.Handle(ctx, upgradeMessage(t, "u")))
	msgs, err := f.completions.Receive(ctx, 1, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, f.completer.Handle(ctx, msgs[0]))
	require.NoError(t, f.completer.Handle(ctx, msgs[0]))

	job, err := f.jobs.Get(ctx, "J1")
	require.NoError(t, err)
	assert.False(t, job.IsArchived())
	assert.True(t, job.HasHotResult())
}
