package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunamage/featurehub/internal/testutil"
	"github.com/lunamage/featurehub/pkg/api/handlers"
	"github.com/lunamage/featurehub/pkg/cleanup"
	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/router"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

type apiFixture struct {
	store  *testutil.MemStore
	stores *kv.Tiered
	app    *fiber.App
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := handlers.StatusForError(err)

			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}

			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := testutil.NewMemStore()
	_, cacheClient := testutil.NewMiniredisClient(t)
	meta := metadata.NewService(log, store, metadata.NewCacheFromClient(cacheClient, 30*time.Minute))

	stores, _, _ := testutil.NewTieredKV(t)

	_, busClient := testutil.NewMiniredisClient(t)
	bus := telemetry.NewPublisherFromClient(log, busClient, &telemetry.Config{Partitions: 2})

	routerSvc, err := router.NewService(log, &router.Config{
		MaxBatchSize:  1000,
		StatQueueSize: 64,
		StatWorkers:   1,
	}, stores, meta, bus)
	require.NoError(t, err)

	require.NoError(t, routerSvc.Start(t.Context()))
	t.Cleanup(func() { _ = routerSvc.Stop() })

	cleanupSvc, err := cleanup.NewService(log, &cleanup.Config{
		BatchSize:            100,
		BatchInterval:        time.Millisecond,
		MaxSweepSize:         1000,
		ScanPageSize:         100,
		ExpiredCron:          "0 2 * * *",
		OrphanCron:           "0 3 * * 0",
		OrphanCleanupEnabled: true,
	}, stores, meta, bus)
	require.NoError(t, err)

	app := newTestApp()
	handlers.NewRouter(routerSvc, 5*time.Second, log).RegisterRoutes(app.Group("/api/v1"))
	handlers.NewMetadata(meta, log).RegisterRoutes(app.Group("/api/v1/metadata"))
	handlers.NewCleanup(cleanupSvc, log).RegisterRoutes(app.Group("/data-cleaner"))

	return &apiFixture{store: store, stores: stores, app: app}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func TestAPI_PutThenGetFeature(t *testing.T) {
	f := setupAPI(t)

	resp, body := doJSON(t, f.app, "PUT", "/api/v1/feature/user:1:age", `{"value":"25","ttl":3600}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var put router.PutResult
	require.NoError(t, json.Unmarshal(body, &put))
	assert.Equal(t, featurestore.TierHot, put.Storage)

	resp, body = doJSON(t, f.app, "GET", "/api/v1/feature/user:1:age", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result router.FeatureResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Found)
	assert.Equal(t, "25", result.Value)
	assert.Equal(t, featurestore.TierHot, result.Source)
}

func TestAPI_PutRejectsEmptyValue(t *testing.T) {
	f := setupAPI(t)

	resp, _ := doJSON(t, f.app, "PUT", "/api/v1/feature/k", `{"value":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_BatchGet(t *testing.T) {
	f := setupAPI(t)
	ctx := t.Context()

	f.store.Seed(
		testutil.Metadata("a", featurestore.TierHot),
		testutil.Metadata("b", featurestore.TierCold),
	)
	require.NoError(t, f.stores.Hot().Set(ctx, "a", "A", 0))
	require.NoError(t, f.stores.Cold().Set(ctx, "b", "B", 0))

	resp, body := doJSON(t, f.app, "POST", "/api/v1/features/batch", `{"keys":["a","b","c"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var batch handlers.BatchQueryResponse
	require.NoError(t, json.Unmarshal(body, &batch))
	require.Len(t, batch.Results, 3)

	assert.Equal(t, "A", batch.Results[0].Value)
	assert.Equal(t, "B", batch.Results[1].Value)
	assert.False(t, batch.Results[2].Found)

	assert.Equal(t, 3, batch.Summary.Total)
	assert.Equal(t, 2, batch.Summary.Found)
	assert.Equal(t, 1, batch.Summary.HotHits)
	assert.Equal(t, 1, batch.Summary.ColdHits)
}

func TestAPI_BatchGetRejectsEmptyKeys(t *testing.T) {
	f := setupAPI(t)

	resp, _ := doJSON(t, f.app, "POST", "/api/v1/features/batch", `{"keys":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_RouterHealthAndMetrics(t *testing.T) {
	f := setupAPI(t)

	resp, body := doJSON(t, f.app, "GET", "/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	resp, body = doJSON(t, f.app, "GET", "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "total_requests")
}

func TestAPI_MetadataCRUD(t *testing.T) {
	f := setupAPI(t)

	resp, _ := doJSON(t, f.app, "GET", "/api/v1/metadata/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := doJSON(t, f.app, "POST", "/api/v1/metadata/",
		`{"key_name":"k","storage_tier":"HOT","migration_status":"STABLE"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"created":true`)

	resp, body = doJSON(t, f.app, "GET", "/api/v1/metadata/k", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m featurestore.FeatureMetadata
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, featurestore.TierHot, m.StorageTier)

	resp, _ = doJSON(t, f.app, "DELETE", "/api/v1/metadata/k", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, f.app, "DELETE", "/api/v1/metadata/k", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_MetadataStats(t *testing.T) {
	f := setupAPI(t)

	f.store.Seed(
		testutil.Metadata("a", featurestore.TierHot),
		testutil.Metadata("b", featurestore.TierCold),
	)

	resp, body := doJSON(t, f.app, "GET", "/api/v1/metadata/stats?storage_type=HOT", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.EqualValues(t, 2, stats["total_keys"])
	assert.Contains(t, stats, "detail_stats")

	resp, _ = doJSON(t, f.app, "GET", "/api/v1/metadata/stats?storage_type=TEPID", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_MetadataBatchGet(t *testing.T) {
	f := setupAPI(t)

	f.store.Seed(testutil.Metadata("a", featurestore.TierHot))

	resp, body := doJSON(t, f.app, "POST", "/api/v1/metadata/batch", `{"keys":["a","missing"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Metadata map[string]*featurestore.FeatureMetadata `json:"metadata"`
		Total    int                                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.Total)
	assert.Contains(t, result.Metadata, "a")
}

func TestAPI_MetadataCleanupEndpoint(t *testing.T) {
	f := setupAPI(t)

	f.store.Seed(testutil.ExpiredMetadata("x", featurestore.TierHot, time.Minute))

	resp, body := doJSON(t, f.app, "POST", "/api/v1/metadata/cleanup", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"cleaned_count":1`)
}

func TestAPI_CleanupTrigger(t *testing.T) {
	f := setupAPI(t)
	ctx := t.Context()

	f.store.Seed(testutil.ExpiredMetadata("x", featurestore.TierHot, time.Minute))
	require.NoError(t, f.stores.Hot().Set(ctx, "x", "v", 0))

	resp, body := doJSON(t, f.app, "POST", "/data-cleaner/trigger", `{"cleanup_type":"EXPIRED_DATA"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record featurestore.CleanupRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, 1, record.CleanedCount)

	resp, _ = doJSON(t, f.app, "POST", "/data-cleaner/trigger", `{"cleanup_type":"SPARKLING"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CleanupStatistics(t *testing.T) {
	f := setupAPI(t)

	resp, body := doJSON(t, f.app, "GET", "/data-cleaner/statistics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "total_sweeps")
}
