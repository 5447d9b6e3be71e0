package account_test

import (
	"context"
	"testing"

	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Tier(t *testing.T) {
	ctx := context.Background()
	_, accounts := testutil.NewStores(t)

	tier, err := accounts.Tier(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, tier)
	assert.False(t, tier.IsPremium())

	require.NoError(t, accounts.SetTier(ctx, "u1", domain.TierPremium))
	tier, err = accounts.Tier(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, tier.IsPremium())

	require.NoError(t, accounts.SetTier(ctx, "u1", domain.TierFree))
	tier, err = accounts.Tier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, tier)
}
