package router

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/observability"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

var (
	// ErrBatchTooLarge is returned when a batch exceeds the configured limit
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
	// ErrEmptyValue is returned when a write carries no value
	ErrEmptyValue = errors.New("feature value must not be empty")
)

// QueryOptions carries per-request caller context
type QueryOptions struct {
	ClientIP        string
	UserID          string
	IncludeMetadata bool
}

// FeatureResult is the outcome of one key's read
type FeatureResult struct {
	Key         string                        `json:"key"`
	Found       bool                          `json:"found"`
	Value       string                        `json:"value,omitempty"`
	Source      featurestore.StorageTier      `json:"source"`
	QueryTimeMs int64                         `json:"query_time_ms"`
	Error       string                        `json:"error,omitempty"`
	Metadata    *featurestore.FeatureMetadata `json:"metadata,omitempty"`
}

// BatchSummary aggregates one batch read
type BatchSummary struct {
	Total       int   `json:"total"`
	Found       int   `json:"found"`
	NotFound    int   `json:"not_found"`
	HotHits     int   `json:"hot_hits"`
	ColdHits    int   `json:"cold_hits"`
	TotalTimeMs int64 `json:"total_time_ms"`
}

// PutResult is the outcome of one write
type PutResult struct {
	Key     string                   `json:"key"`
	Storage featurestore.StorageTier `json:"storage"`
	Created bool                     `json:"created"`
	TTL     *int64                   `json:"ttl,omitempty"`
}

// Counters are the router's in-process request counters
type Counters struct {
	TotalRequests      int64 `json:"total_requests"`
	HotRequests        int64 `json:"hot_requests"`
	ColdRequests       int64 `json:"cold_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
}

// Service is the query/write router contract
type Service interface {
	// Start launches the async stat workers
	Start(ctx context.Context) error
	// Stop drains and stops the stat workers
	Stop() error

	// Get reads one feature key
	Get(ctx context.Context, key string, opts QueryOptions) (*FeatureResult, error)
	// BatchGet reads many keys, fanning out across tiers concurrently
	BatchGet(ctx context.Context, keys []string, opts QueryOptions) ([]*FeatureResult, *BatchSummary, error)
	// Put writes one feature key
	Put(ctx context.Context, key, value string, ttlSeconds *int64, storageHint string) (*PutResult, error)

	// Counters returns a snapshot of the request counters
	Counters() Counters
	// Ping verifies both stores are reachable
	Ping(ctx context.Context) error
}

type service struct {
	log    logrus.FieldLogger
	cfg    *Config
	stores *kv.Tiered
	meta   metadata.Service
	bus    telemetry.Publisher
	stats  *statUpdater

	totalRequests      atomic.Int64
	hotRequests        atomic.Int64
	coldRequests       atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
}

// NewService creates the router over its backends
func NewService(log logrus.FieldLogger, cfg *Config, stores *kv.Tiered, meta metadata.Service, bus telemetry.Publisher) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	svcLog := log.WithField("service", "router")

	return &service{
		log:    svcLog,
		cfg:    cfg,
		stores: stores,
		meta:   meta,
		bus:    bus,
		stats:  newStatUpdater(svcLog, meta, cfg.StatQueueSize),
	}, nil
}

func (s *service) Start(_ context.Context) error {
	s.stats.Start(s.cfg.StatWorkers)
	s.log.Info("Router service started")

	return nil
}

func (s *service) Stop() error {
	s.stats.Stop()
	s.log.Info("Router service stopped")

	return nil
}

func (s *service) Get(ctx context.Context, key string, opts QueryOptions) (*FeatureResult, error) {
	if err := featurestore.ValidateKey(key); err != nil {
		return nil, err
	}

	start := time.Now()

	s.totalRequests.Add(1)

	meta, err := s.meta.Get(ctx, key)
	if err != nil {
		// A metadata outage degrades to single-store access, not full outage
		s.log.WithError(err).WithField("key", key).Warn("Metadata lookup failed, falling back to HOT")

		meta = nil
	}

	result := s.readForMetadata(ctx, key, meta)
	result.QueryTimeMs = time.Since(start).Milliseconds()

	if opts.IncludeMetadata {
		result.Metadata = meta
	}

	s.recordRead(ctx, result, opts)

	return result, nil
}

// readForMetadata picks the tier(s) per the placement record. Keys without
// metadata read from HOT; keys mid-migration use the dual-tier read.
func (s *service) readForMetadata(ctx context.Context, key string, meta *featurestore.FeatureMetadata) *FeatureResult {
	if meta == nil {
		return s.readFromTier(ctx, key, featurestore.TierHot)
	}

	if meta.MigrationStatus == featurestore.StatusMigrating {
		// Either stage of a dual-write migration: source first, then target
		result := s.readFromTier(ctx, key, meta.StorageTier)
		if result.Found {
			return result
		}

		return s.readFromTier(ctx, key, meta.StorageTier.Other())
	}

	return s.readFromTier(ctx, key, meta.StorageTier)
}

func (s *service) readFromTier(ctx context.Context, key string, tier featurestore.StorageTier) *FeatureResult {
	if tier == featurestore.TierCold {
		s.coldRequests.Add(1)
	} else {
		s.hotRequests.Add(1)
	}

	result := &FeatureResult{Key: key, Source: tier}

	value, err := s.stores.ForTier(tier).Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			result.Error = err.Error()

			s.log.WithError(err).WithFields(logrus.Fields{
				"key":  key,
				"tier": tier,
			}).Error("Backend read failed")
		}

		return result
	}

	result.Found = true
	result.Value = value

	return result
}

func (s *service) BatchGet(ctx context.Context, keys []string, opts QueryOptions) ([]*FeatureResult, *BatchSummary, error) {
	if len(keys) > s.cfg.MaxBatchSize {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(keys), s.cfg.MaxBatchSize)
	}

	for _, key := range keys {
		if err := featurestore.ValidateKey(key); err != nil {
			return nil, nil, fmt.Errorf("invalid key %q: %w", key, err)
		}
	}

	start := time.Now()

	s.totalRequests.Add(int64(len(keys)))

	metaMap, err := s.meta.BatchGet(ctx, keys)
	if err != nil {
		s.log.WithError(err).Warn("Batch metadata lookup failed, falling back to HOT")

		metaMap = map[string]*featurestore.FeatureMetadata{}
	}

	// Partition by recorded tier; unknown keys default to HOT, migrating keys
	// go to both stores and resolve source-first on merge.
	var hotKeys, coldKeys []string

	for _, key := range dedupe(keys) {
		meta := metaMap[key]

		switch {
		case meta == nil:
			hotKeys = append(hotKeys, key)
		case meta.MigrationStatus == featurestore.StatusMigrating:
			hotKeys = append(hotKeys, key)
			coldKeys = append(coldKeys, key)
		case meta.StorageTier == featurestore.TierCold:
			coldKeys = append(coldKeys, key)
		default:
			hotKeys = append(hotKeys, key)
		}
	}

	var (
		hotValues, coldValues map[string]string
		hotErr, coldErr       error
	)

	g, gctx := errgroup.WithContext(ctx)

	if len(hotKeys) > 0 {
		g.Go(func() error {
			hotValues, hotErr = s.stores.Hot().MGet(gctx, hotKeys)
			return nil
		})
	}

	if len(coldKeys) > 0 {
		g.Go(func() error {
			coldValues, coldErr = s.stores.Cold().MGet(gctx, coldKeys)
			return nil
		})
	}

	_ = g.Wait()

	if hotErr != nil {
		s.log.WithError(hotErr).Error("HOT batch read failed")
	}

	if coldErr != nil {
		s.log.WithError(coldErr).Error("COLD batch read failed")
	}

	results := make([]*FeatureResult, 0, len(keys))
	summary := &BatchSummary{Total: len(keys)}

	for _, key := range keys {
		result := mergeBatchResult(key, metaMap[key], hotValues, coldValues, hotErr, coldErr)

		if opts.IncludeMetadata {
			result.Metadata = metaMap[key]
		}

		results = append(results, result)

		if result.Found {
			summary.Found++

			if result.Source == featurestore.TierCold {
				summary.ColdHits++
			} else {
				summary.HotHits++
			}
		} else {
			summary.NotFound++
		}

		s.recordRead(ctx, result, opts)
	}

	summary.TotalTimeMs = time.Since(start).Milliseconds()

	return results, summary, nil
}

// mergeBatchResult resolves one key from the fanned-out store responses
func mergeBatchResult(key string, meta *featurestore.FeatureMetadata, hotValues, coldValues map[string]string, hotErr, coldErr error) *FeatureResult {
	source := featurestore.TierHot
	if meta != nil {
		source = meta.StorageTier
	}

	result := &FeatureResult{Key: key, Source: source}

	if value, ok := hotValues[key]; ok {
		if meta == nil || meta.MigrationStatus != featurestore.StatusMigrating || meta.StorageTier == featurestore.TierHot {
			result.Found = true
			result.Value = value
			result.Source = featurestore.TierHot

			return result
		}
	}

	if value, ok := coldValues[key]; ok {
		result.Found = true
		result.Value = value
		result.Source = featurestore.TierCold

		return result
	}

	// Migrating keys may have landed in HOT as the target
	if value, ok := hotValues[key]; ok {
		result.Found = true
		result.Value = value
		result.Source = featurestore.TierHot

		return result
	}

	var backendErr error
	if source == featurestore.TierCold {
		backendErr = coldErr
	} else {
		backendErr = hotErr
	}

	if backendErr != nil {
		result.Error = backendErr.Error()
	}

	return result
}

func (s *service) Put(ctx context.Context, key, value string, ttlSeconds *int64, storageHint string) (*PutResult, error) {
	if err := featurestore.ValidateKey(key); err != nil {
		return nil, err
	}

	if value == "" {
		return nil, ErrEmptyValue
	}

	target, err := s.resolveWriteTier(ctx, key, storageHint)
	if err != nil {
		return nil, err
	}

	var ttl time.Duration
	if ttlSeconds != nil {
		ttl = time.Duration(*ttlSeconds) * time.Second
	}

	if err := s.stores.ForTier(target).Set(ctx, key, value, ttl); err != nil {
		observability.RecordWrite(string(target), "error")

		return nil, fmt.Errorf("failed to write %s store: %w", target, err)
	}

	now := time.Now().UnixMilli()

	meta := featurestore.NewFeatureMetadata(key)
	meta.StorageTier = target
	meta.DataSize = int64(len(value))

	if ttlSeconds != nil {
		expire := now + *ttlSeconds*1000
		meta.ExpireTime = &expire
	}

	upsert, err := s.meta.Upsert(ctx, meta)
	if err != nil {
		observability.RecordWrite(string(target), "error")

		return nil, fmt.Errorf("failed to upsert metadata: %w", err)
	}

	// The key may have moved tiers since it was last written; drop the stale copy
	if upsert.Previous != nil &&
		upsert.Previous.StorageTier != target &&
		upsert.Previous.MigrationStatus == featurestore.StatusStable {
		if _, err := s.stores.ForTier(upsert.Previous.StorageTier).Del(ctx, key); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"key":  key,
				"tier": upsert.Previous.StorageTier,
			}).Warn("Failed to delete stale copy")
		}
	}

	observability.RecordWrite(string(target), "ok")

	return &PutResult{
		Key:     key,
		Storage: target,
		Created: upsert.Created,
		TTL:     ttlSeconds,
	}, nil
}

// resolveWriteTier applies the storage hint on first write only; an existing
// record's tier wins on overwrite.
func (s *service) resolveWriteTier(ctx context.Context, key, hint string) (featurestore.StorageTier, error) {
	existing, err := s.meta.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Metadata lookup failed on write, using hint")

		existing = nil
	}

	if existing != nil {
		return existing.StorageTier, nil
	}

	switch hint {
	case "", "hot":
		return featurestore.TierHot, nil
	case "cold":
		return featurestore.TierCold, nil
	default:
		return "", fmt.Errorf("%w: %q", featurestore.ErrUnknownTier, hint)
	}
}

// recordRead emits the query log and queues the async stat update
func (s *service) recordRead(ctx context.Context, result *FeatureResult, opts QueryOptions) {
	if result.Found {
		s.successfulRequests.Add(1)
		observability.RecordQuery(string(result.Source), "found", float64(result.QueryTimeMs)/1000)
	} else {
		s.failedRequests.Add(1)

		status := "not_found"
		if result.Error != "" {
			status = "error"
		}

		observability.RecordQuery(string(result.Source), status, float64(result.QueryTimeMs)/1000)
	}

	queryLog := featurestore.NewQueryLog(result.Key, result.Source)
	queryLog.Success = result.Found
	queryLog.QueryTimeMs = result.QueryTimeMs
	queryLog.ClientIP = opts.ClientIP
	queryLog.UserID = opts.UserID
	queryLog.Error = result.Error

	s.bus.PublishQueryLog(ctx, queryLog)

	s.stats.Enqueue(result.Key, time.Now().UnixMilli())
}

func (s *service) Counters() Counters {
	return Counters{
		TotalRequests:      s.totalRequests.Load(),
		HotRequests:        s.hotRequests.Load(),
		ColdRequests:       s.coldRequests.Load(),
		SuccessfulRequests: s.successfulRequests.Load(),
		FailedRequests:     s.failedRequests.Load(),
	}
}

func (s *service) Ping(ctx context.Context) error {
	if err := s.stores.Hot().Ping(ctx); err != nil {
		return fmt.Errorf("hot store unreachable: %w", err)
	}

	if err := s.stores.Cold().Ping(ctx); err != nil {
		return fmt.Errorf("cold store unreachable: %w", err)
	}

	return nil
}

// dedupe returns keys with duplicates removed, preserving first-seen order
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))

	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		out = append(out, key)
	}

	return out
}
