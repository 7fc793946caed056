package kv

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

func setupClient(t *testing.T) (*miniredis.Miniredis, Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close kv client: %v", err)
		}
	})

	return mr, client
}

func TestClient_GetSet(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, client.Set(ctx, "k", "v", 0))

	val, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestClient_SetWithTTL(t *testing.T) {
	mr, client := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", time.Hour))

	ttl, err := client.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(2 * time.Hour)

	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestClient_MGet(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.Set(ctx, "c", "3", 0))

	found, err := client.MGet(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, found)

	empty, err := client.MGet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_Del(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", 0))

	existed, err := client.Del(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = client.Del(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestClient_DelMany(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.Set(ctx, "b", "2", 0))

	n, err := client.DelMany(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClient_Exists(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	ok, err := client.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, "k", "v", 0))

	ok, err = client.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_Scan(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "user:1", "a", 0))
	require.NoError(t, client.Set(ctx, "user:2", "b", 0))
	require.NoError(t, client.Set(ctx, "item:1", "c", 0))

	var seen []string
	err := client.Scan(ctx, "user:*", 10, func(keys []string) error {
		seen = append(seen, keys...)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, seen)
}

func TestTiered_ForTier(t *testing.T) {
	_, hot := setupClient(t)
	_, cold := setupClient(t)
	tiered := NewTiered(hot, cold)

	ctx := context.Background()
	require.NoError(t, tiered.ForTier(featurestore.TierHot).Set(ctx, "k", "hot", 0))
	require.NoError(t, tiered.ForTier(featurestore.TierCold).Set(ctx, "k", "cold", 0))

	val, err := hot.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hot", val)

	val, err = cold.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "cold", val)
}
