package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close cache client: %v", err)
		}
	})

	return mr, NewCacheFromClient(client, 30*time.Minute)
}

func TestCache_RoundTrip(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	miss, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, miss)

	m := featurestore.NewFeatureMetadata("k")
	m.StorageTier = featurestore.TierCold
	m.AccessCount = 7

	require.NoError(t, cache.Set(ctx, m))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m, got)
}

func TestCache_TTLExpiry(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, featurestore.NewFeatureMetadata("k")))

	mr.FastForward(31 * time.Minute)

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(cacheKeyPrefix+"k", "{not json"))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The corrupt entry is dropped so the next read-through can repopulate
	assert.False(t, mr.Exists(cacheKeyPrefix+"k"))
}

func TestCache_GetMany(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	a := featurestore.NewFeatureMetadata("a")
	c := featurestore.NewFeatureMetadata("c")
	require.NoError(t, cache.SetMany(ctx, []*featurestore.FeatureMetadata{a, c}))

	got, err := cache.GetMany(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got["a"])
	assert.Equal(t, c, got["c"])
}

func TestCache_Invalidate(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, featurestore.NewFeatureMetadata("k")))
	require.NoError(t, cache.Invalidate(ctx, "k"))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}
