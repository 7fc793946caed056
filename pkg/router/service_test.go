package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunamage/featurehub/internal/testutil"
	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/router"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

type routerFixture struct {
	store  *testutil.MemStore
	stores *kv.Tiered
	meta   metadata.Service
	svc    router.Service
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := testutil.NewMemStore()
	_, cacheClient := testutil.NewMiniredisClient(t)
	meta := metadata.NewService(log, store, metadata.NewCacheFromClient(cacheClient, 30*time.Minute))

	stores, _, _ := testutil.NewTieredKV(t)

	_, busClient := testutil.NewMiniredisClient(t)
	bus := telemetry.NewPublisherFromClient(log, busClient, &telemetry.Config{Partitions: 4})

	svc, err := router.NewService(log, &router.Config{
		MaxBatchSize:  1000,
		StatQueueSize: 64,
		StatWorkers:   1,
	}, stores, meta, bus)
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		if err := svc.Stop(); err != nil {
			t.Logf("failed to stop router: %v", err)
		}
	})

	return &routerFixture{store: store, stores: stores, meta: meta, svc: svc}
}

func TestRouter_WriteThenReadHot(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	ttl := int64(3600)

	put, err := f.svc.Put(ctx, "user:1:age", "25", &ttl, "")
	require.NoError(t, err)
	assert.Equal(t, featurestore.TierHot, put.Storage)
	assert.True(t, put.Created)

	got, err := f.svc.Get(ctx, "user:1:age", router.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "25", got.Value)
	assert.Equal(t, featurestore.TierHot, got.Source)

	// Metadata records placement, size, and expiry
	meta := f.store.Snapshot("user:1:age")
	require.NotNil(t, meta)
	assert.Equal(t, featurestore.TierHot, meta.StorageTier)
	assert.Equal(t, int64(2), meta.DataSize)
	require.NotNil(t, meta.ExpireTime)
}

func TestRouter_PutColdHint(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	put, err := f.svc.Put(ctx, "k", "v", nil, "cold")
	require.NoError(t, err)
	assert.Equal(t, featurestore.TierCold, put.Storage)

	val, err := f.stores.Cold().Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestRouter_PutHintIgnoredOnOverwrite(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	_, err := f.svc.Put(ctx, "k", "v1", nil, "cold")
	require.NoError(t, err)

	// The recorded tier wins; the hot hint on an existing COLD key is ignored
	put, err := f.svc.Put(ctx, "k", "v2", nil, "hot")
	require.NoError(t, err)
	assert.Equal(t, featurestore.TierCold, put.Storage)

	val, err := f.stores.Cold().Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", val)
}

func TestRouter_PutRejectsBadInput(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	_, err := f.svc.Put(ctx, "", "v", nil, "")
	assert.ErrorIs(t, err, featurestore.ErrEmptyKey)

	_, err = f.svc.Put(ctx, "k", "", nil, "")
	assert.ErrorIs(t, err, router.ErrEmptyValue)

	_, err = f.svc.Put(ctx, "k", "v", nil, "lukewarm")
	assert.ErrorIs(t, err, featurestore.ErrUnknownTier)
}

func TestRouter_PutDeletesStaleCopyOnTierChange(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	// Warm the metadata cache with the key recorded in HOT, then migrate the
	// record to COLD out of band: the writer now routes on the cached HOT
	// placement while the authoritative record says COLD.
	f.store.Seed(testutil.Metadata("k", featurestore.TierHot))

	_, err := f.meta.Get(ctx, "k")
	require.NoError(t, err)

	f.store.Seed(testutil.Metadata("k", featurestore.TierCold))
	require.NoError(t, f.stores.Cold().Set(ctx, "k", "old", 0))

	_, err = f.svc.Put(ctx, "k", "v2", nil, "")
	require.NoError(t, err)

	// The write landed in HOT and the upsert reported the COLD placement, so
	// the stale COLD copy is removed.
	hotVal, err := f.stores.Hot().Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", hotVal)

	_, err = f.stores.Cold().Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestRouter_GetDefaultsToHotWithoutMetadata(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, f.stores.Hot().Set(ctx, "bare", "v", 0))

	got, err := f.svc.Get(ctx, "bare", router.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, featurestore.TierHot, got.Source)
}

func TestRouter_GetNotFound(t *testing.T) {
	f := setupRouter(t)

	got, err := f.svc.Get(context.Background(), "missing", router.QueryOptions{})
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Empty(t, got.Error)
}

func TestRouter_DualTierReadDuringMigration(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	// Mid-migration: metadata still says HOT but is MIGRATING, and the value
	// has already been copied to COLD with the source deleted (late stage).
	m := testutil.Metadata("k", featurestore.TierHot)
	m.MigrationStatus = featurestore.StatusMigrating
	f.store.Seed(m)

	require.NoError(t, f.stores.Cold().Set(ctx, "k", "v", 0))

	got, err := f.svc.Get(ctx, "k", router.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "v", got.Value)
	assert.Equal(t, featurestore.TierCold, got.Source)

	// Early stage: value still in the source tier only
	require.NoError(t, f.stores.Hot().Set(ctx, "k", "v", 0))
	_, err = f.stores.Cold().Del(ctx, "k")
	require.NoError(t, err)

	got, err = f.svc.Get(ctx, "k", router.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, featurestore.TierHot, got.Source)
}

func TestRouter_MetadataOutageFallsBackToHot(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, f.stores.Hot().Set(ctx, "k", "v", 0))

	f.store.SetFailAll(true)

	got, err := f.svc.Get(ctx, "k", router.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "v", got.Value)
	assert.Equal(t, featurestore.TierHot, got.Source)
}

func TestRouter_BatchAcrossTiers(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	f.store.Seed(
		testutil.Metadata("a", featurestore.TierHot),
		testutil.Metadata("b", featurestore.TierCold),
	)
	require.NoError(t, f.stores.Hot().Set(ctx, "a", "A", 0))
	require.NoError(t, f.stores.Cold().Set(ctx, "b", "B", 0))

	results, summary, err := f.svc.BatchGet(ctx, []string{"a", "b", "c"}, router.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Found)
	assert.Equal(t, "A", results[0].Value)
	assert.Equal(t, featurestore.TierHot, results[0].Source)

	assert.True(t, results[1].Found)
	assert.Equal(t, "B", results[1].Value)
	assert.Equal(t, featurestore.TierCold, results[1].Source)

	assert.False(t, results[2].Found)
	assert.Equal(t, featurestore.TierHot, results[2].Source)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Found)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, 1, summary.HotHits)
	assert.Equal(t, 1, summary.ColdHits)
}

func TestRouter_BatchFidelityWithDuplicates(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	f.store.Seed(testutil.Metadata("a", featurestore.TierHot))
	require.NoError(t, f.stores.Hot().Set(ctx, "a", "A", 0))

	results, summary, err := f.svc.BatchGet(ctx, []string{"a", "x", "a"}, router.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// One entry per input index, duplicates yield the same value at both positions
	assert.Equal(t, "a", results[0].Key)
	assert.Equal(t, "x", results[1].Key)
	assert.Equal(t, "a", results[2].Key)
	assert.Equal(t, results[0].Value, results[2].Value)
	assert.True(t, results[0].Found)
	assert.True(t, results[2].Found)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Found)
}

func TestRouter_BatchTooLarge(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := testutil.NewMemStore()
	_, cacheClient := testutil.NewMiniredisClient(t)
	meta := metadata.NewService(log, store, metadata.NewCacheFromClient(cacheClient, time.Minute))
	stores, _, _ := testutil.NewTieredKV(t)
	_, busClient := testutil.NewMiniredisClient(t)
	bus := telemetry.NewPublisherFromClient(log, busClient, &telemetry.Config{Partitions: 1})

	svc, err := router.NewService(log, &router.Config{
		MaxBatchSize:  2,
		StatQueueSize: 8,
		StatWorkers:   1,
	}, stores, meta, bus)
	require.NoError(t, err)

	_, _, err = svc.BatchGet(context.Background(), []string{"a", "b", "c"}, router.QueryOptions{})
	assert.ErrorIs(t, err, router.ErrBatchTooLarge)
}

func TestRouter_BatchMigratingKeyResolves(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	m := testutil.Metadata("k", featurestore.TierHot)
	m.MigrationStatus = featurestore.StatusMigrating
	f.store.Seed(m)

	// Value only present in the target store mid-migration
	require.NoError(t, f.stores.Cold().Set(ctx, "k", "v", 0))

	results, _, err := f.svc.BatchGet(ctx, []string{"k"}, router.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Found)
	assert.Equal(t, "v", results[0].Value)
}

func TestRouter_AccessStatsUpdatedAsync(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	f.store.Seed(testutil.Metadata("k", featurestore.TierHot))
	require.NoError(t, f.stores.Hot().Set(ctx, "k", "v", 0))

	_, err := f.svc.Get(ctx, "k", router.QueryOptions{})
	require.NoError(t, err)

	// The bounded queue applies the bump off the request path
	require.Eventually(t, func() bool {
		snap := f.store.Snapshot("k")
		return snap != nil && snap.AccessCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_Counters(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, f.stores.Hot().Set(ctx, "k", "v", 0))

	_, err := f.svc.Get(ctx, "k", router.QueryOptions{})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "missing", router.QueryOptions{})
	require.NoError(t, err)

	counters := f.svc.Counters()
	assert.Equal(t, int64(2), counters.TotalRequests)
	assert.Equal(t, int64(1), counters.SuccessfulRequests)
	assert.Equal(t, int64(1), counters.FailedRequests)
}
