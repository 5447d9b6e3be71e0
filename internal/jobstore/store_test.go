package jobstore_test

import (
	"context"
	"testing"

	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/cuongbtq/genomics-pipeline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id, user string, submit int64) *domain.Job {
	return &domain.Job{
		JobID:         id,
		UserID:        user,
		InputFileName: "sample.vcf",
		InputBucket:   "gas-inputs",
		InputKey:      "gas/" + user + "/" + id + "~sample.vcf",
		SubmitTime:    submit,
		Status:        domain.JobStatusPending,
	}
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)

	require.NoError(t, store.Put(ctx, newJob("j1", "u1", 100)))

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, int64(100), got.SubmitTime)
	assert.Nil(t, got.CompleteTime)
	assert.False(t, got.HasHotResult())
	assert.False(t, got.IsArchived())

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_PutNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)

	require.NoError(t, store.Put(ctx, newJob("j1", "u1", 100)))
	require.NoError(t, store.MarkRunning(ctx, "j1"))

	err := store.Put(ctx, newJob("j1", "u1", 200))
	assert.ErrorIs(t, err, domain.ErrConditionFailed)

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
}

func TestStore_MarkRunningGuard(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)
	require.NoError(t, store.Put(ctx, newJob("j1", "u1", 100)))

	require.NoError(t, store.MarkRunning(ctx, "j1"))

	// redelivery of the same job request
	err := store.MarkRunning(ctx, "j1")
	assert.ErrorIs(t, err, domain.ErrConditionFailed)

	err = store.MarkRunning(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_StatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)
	require.NoError(t, store.Put(ctx, newJob("j1", "u1", 100)))

	require.NoError(t, store.MarkRunning(ctx, "j1"))
	require.NoError(t, store.MarkCompleted(ctx, "j1", jobstore.Completion{
		CompleteTime:  200,
		ResultsBucket: "gas-results",
		ResultKey:     "u1/j1~sample.annot.vcf",
		LogKey:        "u1/j1~sample.vcf.count.log",
	}))

	assert.ErrorIs(t, store.MarkRunning(ctx, "j1"), domain.ErrConditionFailed)

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompleteTime)
	assert.Equal(t, int64(200), *got.CompleteTime)
	assert.True(t, got.HasHotResult())
}

func TestStore_ArchiveRestoreExclusive(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)
	require.NoError(t, store.Put(ctx, newJob("j1", "u1", 100)))
	require.NoError(t, store.MarkCompleted(ctx, "j1", jobstore.Completion{
		CompleteTime: 200, ResultsBucket: "r", ResultKey: "k", LogKey: "l",
	}))

	require.NoError(t, store.MarkArchived(ctx, "j1", "archive-1"))
	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, got.IsArchived())
	assert.False(t, got.HasHotResult())

	// second archival finds no hot reference
	assert.ErrorIs(t, store.MarkArchived(ctx, "j1", "archive-2"), domain.ErrConditionFailed)

	// a late duplicate completion must not reintroduce a hot reference
	err = store.MarkCompleted(ctx, "j1", jobstore.Completion{CompleteTime: 300, ResultsBucket: "r", ResultKey: "k", LogKey: "l"})
	assert.ErrorIs(t, err, domain.ErrConditionFailed)

	require.NoError(t, store.MarkRestored(ctx, "j1", "r", "u1/j1~sample.annot.vcf"))
	got, err = store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, got.IsArchived())
	assert.True(t, got.HasHotResult())
	assert.Equal(t, "u1/j1~sample.annot.vcf", *got.ResultKey)

	assert.ErrorIs(t, store.MarkRestored(ctx, "j1", "r", "x"), domain.ErrConditionFailed)
}

func TestStore_UpdateValidation(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)
	require.NoError(t, store.Put(ctx, newJob("j1", "u1", 100)))

	tests := []struct {
		name   string
		update jobstore.Update
	}{
		{"empty", jobstore.Update{}},
		{"immutable field", jobstore.Update{Set: map[jobstore.Field]any{"user_id": "x"}}},
		{"set and remove", jobstore.Update{
			Set:    map[jobstore.Field]any{jobstore.FieldResultKey: "k"},
			Remove: []jobstore.Field{jobstore.FieldResultKey},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.Update(ctx, "j1", tt.update))
		})
	}
}

func TestStore_EqualsCondition(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)
	require.NoError(t, store.Put(ctx, newJob("j1", "u1", 100)))

	err := store.Update(ctx, "j1", jobstore.Update{
		Set:        map[jobstore.Field]any{jobstore.FieldLogKey: "l"},
		Conditions: []jobstore.Condition{jobstore.Equals(jobstore.FieldStatus, domain.JobStatusRunning)},
	})
	assert.ErrorIs(t, err, domain.ErrConditionFailed)

	err = store.Update(ctx, "j1", jobstore.Update{
		Set:        map[jobstore.Field]any{jobstore.FieldLogKey: "l"},
		Conditions: []jobstore.Condition{jobstore.Equals(jobstore.FieldStatus, domain.JobStatusPending)},
	})
	assert.NoError(t, err)
}

func TestStore_QueryAndList(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewJobStore(t)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Put(ctx, newJob(id, "u1", int64(100+i))))
	}
	require.NoError(t, store.Put(ctx, newJob("other", "u2", 500)))

	jobs, err := store.QueryByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, "d", jobs[0].JobID)

	page, err := store.ListByUser(ctx, jobstore.ListFilter{UserID: "u1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3) // one extra signals another page
	assert.Equal(t, []string{"d", "c"}, []string{page[0].JobID, page[1].JobID})

	next, err := store.ListByUser(ctx, jobstore.ListFilter{
		UserID:   "u1",
		PageSize: 2,
		Cursor:   &jobstore.Cursor{SubmitTime: page[1].SubmitTime, JobID: page[1].JobID},
	})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, []string{"b", "a"}, []string{next[0].JobID, next[1].JobID})

	require.NoError(t, store.MarkRunning(ctx, "a"))
	running, err := store.ListByUser(ctx, jobstore.ListFilter{UserID: "u1", Status: domain.JobStatusRunning, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "a", running[0].JobID)
}
