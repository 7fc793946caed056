package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/observability"
)

// UpsertResult reports what an upsert did and what it replaced
type UpsertResult struct {
	// Created is true when the key had no prior record
	Created bool
	// Previous is the record before the upsert, nil when Created
	Previous *featurestore.FeatureMetadata
}

// Service is the metadata component contract. All metadata mutation in the
// system funnels through it; migration and cleanup never touch the table
// directly.
type Service interface {
	// Get resolves a record through the cache
	Get(ctx context.Context, key string) (*featurestore.FeatureMetadata, error)
	// GetAuthoritative bypasses the cache and reads the source of truth
	GetAuthoritative(ctx context.Context, key string) (*featurestore.FeatureMetadata, error)
	// BatchGet resolves records with one cache multi-get, one store batch
	// query for misses, and one cache multi-set — three round trips total.
	// Duplicate input keys are deduplicated before backend I/O.
	BatchGet(ctx context.Context, keys []string) (map[string]*featurestore.FeatureMetadata, error)
	// Upsert creates or replaces a record
	Upsert(ctx context.Context, m *featurestore.FeatureMetadata) (*UpsertResult, error)
	// Update overwrites an existing record; no-op if missing
	Update(ctx context.Context, m *featurestore.FeatureMetadata) (bool, error)
	// BatchUpdate applies updates independently; one key's failure never fails the batch
	BatchUpdate(ctx context.Context, records []*featurestore.FeatureMetadata) map[string]bool
	// Delete removes a record
	Delete(ctx context.Context, key string) (bool, error)
	// Touch atomically bumps the advisory access stats
	Touch(ctx context.Context, key string, now int64) (bool, error)

	// ClaimForMigration CASes a row into MIGRATING (invariant: one claim per key)
	ClaimForMigration(ctx context.Context, key string, now int64) (bool, error)
	// FinishMigration settles a claimed row as STABLE in the target tier
	FinishMigration(ctx context.Context, key string, target featurestore.StorageTier, now int64) (bool, error)
	// AbortMigration marks a claimed row FAILED for the next sweep to reclaim
	AbortMigration(ctx context.Context, key string, now int64) (bool, error)

	// SelectForHotToCold returns demotion candidates, oldest access first
	SelectForHotToCold(ctx context.Context, idleBefore int64, limit int) ([]*featurestore.FeatureMetadata, error)
	// SelectForColdToHot returns recall candidates, hottest first
	SelectForColdToHot(ctx context.Context, accessThreshold, recentSince int64, limit int) ([]*featurestore.FeatureMetadata, error)
	// SelectStableByTag returns stable rows of one tier carrying a business tag
	SelectStableByTag(ctx context.Context, tag string, tier featurestore.StorageTier, limit int) ([]*featurestore.FeatureMetadata, error)
	// SelectExpired returns cleanup candidates
	SelectExpired(ctx context.Context, now int64, limit int) ([]string, error)
	// DeleteExpired removes the given keys if still expired
	DeleteExpired(ctx context.Context, now int64, keys []string) (int64, error)
	// DeleteAllExpired removes every expired row
	DeleteAllExpired(ctx context.Context, now int64) (int64, error)

	// CountByTier returns the key count per tier
	CountByTier(ctx context.Context) (map[featurestore.StorageTier]int64, error)
	// Stats assembles the statistics payload, optionally detailed by tier and tag
	Stats(ctx context.Context, tier *featurestore.StorageTier, tag string) (map[string]any, error)
	// ResetAccessCounts zeroes the advisory counters at a window boundary
	ResetAccessCounts(ctx context.Context, now int64) (int64, error)

	// Ping verifies the authoritative store is reachable
	Ping(ctx context.Context) error
}

type service struct {
	log   logrus.FieldLogger
	store Store
	cache *Cache
}

// NewService creates the metadata service over a store and its cache
func NewService(log logrus.FieldLogger, store Store, cache *Cache) Service {
	return &service{
		log:   log.WithField("service", "metadata"),
		store: store,
		cache: cache,
	}
}

func (s *service) Get(ctx context.Context, key string) (*featurestore.FeatureMetadata, error) {
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		// Cache errors degrade to a store read, never fail the call
		observability.RecordCacheLookup("error")
		s.log.WithError(err).WithField("key", key).Warn("Metadata cache read failed")
	} else if cached != nil {
		observability.RecordCacheLookup("hit")
		return cached, nil
	} else {
		observability.RecordCacheLookup("miss")
	}

	m, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if m != nil {
		s.populateCache(ctx, m)
	}

	return m, nil
}

func (s *service) GetAuthoritative(ctx context.Context, key string) (*featurestore.FeatureMetadata, error) {
	return s.store.Get(ctx, key)
}

func (s *service) BatchGet(ctx context.Context, keys []string) (map[string]*featurestore.FeatureMetadata, error) {
	unique := dedupe(keys)
	if len(unique) == 0 {
		return map[string]*featurestore.FeatureMetadata{}, nil
	}

	// Round trip 1: cache multi-get
	result, err := s.cache.GetMany(ctx, unique)
	if err != nil {
		observability.RecordCacheLookup("error")
		s.log.WithError(err).Warn("Metadata cache batch read failed")

		result = make(map[string]*featurestore.FeatureMetadata, len(unique))
	}

	var missed []string

	for _, key := range unique {
		if _, ok := result[key]; !ok {
			missed = append(missed, key)
		}
	}

	if len(missed) == 0 {
		return result, nil
	}

	// Round trip 2: authoritative batch query for the misses
	fetched, err := s.store.GetMany(ctx, missed)
	if err != nil {
		return nil, err
	}

	toCache := make([]*featurestore.FeatureMetadata, 0, len(fetched))

	for key, m := range fetched {
		result[key] = m
		toCache = append(toCache, m)
	}

	// Round trip 3: cache multi-set
	if len(toCache) > 0 {
		if err := s.cache.SetMany(ctx, toCache); err != nil {
			s.log.WithError(err).Warn("Metadata cache batch write failed")
		}
	}

	return result, nil
}

func (s *service) Upsert(ctx context.Context, m *featurestore.FeatureMetadata) (*UpsertResult, error) {
	if err := featurestore.ValidateKey(m.KeyName); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	m.UpdateTime = now

	existing, err := s.store.Get(ctx, m.KeyName)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		m.CreateTime = now

		if err := s.store.Insert(ctx, m); err != nil {
			return nil, err
		}

		s.populateCache(ctx, m)
		s.log.WithField("key", m.KeyName).Debug("Created metadata")

		return &UpsertResult{Created: true}, nil
	}

	m.CreateTime = existing.CreateTime

	if _, err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}

	s.populateCache(ctx, m)
	s.log.WithField("key", m.KeyName).Debug("Updated metadata")

	return &UpsertResult{Created: false, Previous: existing}, nil
}

func (s *service) Update(ctx context.Context, m *featurestore.FeatureMetadata) (bool, error) {
	m.UpdateTime = time.Now().UnixMilli()

	updated, err := s.store.Update(ctx, m)
	if err != nil {
		return false, err
	}

	if updated {
		s.populateCache(ctx, m)
	}

	return updated, nil
}

func (s *service) BatchUpdate(ctx context.Context, records []*featurestore.FeatureMetadata) map[string]bool {
	results := make(map[string]bool, len(records))

	for _, m := range records {
		updated, err := s.Update(ctx, m)
		if err != nil {
			s.log.WithError(err).WithField("key", m.KeyName).Error("Batch update failed for key")

			results[m.KeyName] = false

			continue
		}

		results[m.KeyName] = updated
	}

	return results
}

func (s *service) Delete(ctx context.Context, key string) (bool, error) {
	deleted, err := s.store.Delete(ctx, key)
	if err != nil {
		return false, err
	}

	s.invalidateCache(ctx, key)

	return deleted, nil
}

func (s *service) Touch(ctx context.Context, key string, now int64) (bool, error) {
	// The cached copy's stats go stale until its TTL; counts are advisory.
	return s.store.IncrementAccess(ctx, key, now)
}

func (s *service) ClaimForMigration(ctx context.Context, key string, now int64) (bool, error) {
	claimed, err := s.store.ClaimForMigration(ctx, key, now)
	if err != nil {
		return false, err
	}

	if claimed {
		// Routers must observe MIGRATING promptly to switch to dual-tier reads
		s.invalidateCache(ctx, key)
	}

	return claimed, nil
}

func (s *service) FinishMigration(ctx context.Context, key string, target featurestore.StorageTier, now int64) (bool, error) {
	finished, err := s.store.FinishMigration(ctx, key, target, now)
	if err != nil {
		return false, err
	}

	if finished {
		s.invalidateCache(ctx, key)
	}

	return finished, nil
}

func (s *service) AbortMigration(ctx context.Context, key string, now int64) (bool, error) {
	aborted, err := s.store.AbortMigration(ctx, key, now)
	if err != nil {
		return false, err
	}

	if aborted {
		s.invalidateCache(ctx, key)
	}

	return aborted, nil
}

func (s *service) SelectForHotToCold(ctx context.Context, idleBefore int64, limit int) ([]*featurestore.FeatureMetadata, error) {
	return s.store.SelectForHotToCold(ctx, idleBefore, limit)
}

func (s *service) SelectForColdToHot(ctx context.Context, accessThreshold, recentSince int64, limit int) ([]*featurestore.FeatureMetadata, error) {
	return s.store.SelectForColdToHot(ctx, accessThreshold, recentSince, limit)
}

func (s *service) SelectStableByTag(ctx context.Context, tag string, tier featurestore.StorageTier, limit int) ([]*featurestore.FeatureMetadata, error) {
	return s.store.SelectStableByTag(ctx, tag, tier, limit)
}

func (s *service) SelectExpired(ctx context.Context, now int64, limit int) ([]string, error) {
	return s.store.SelectExpired(ctx, now, limit)
}

func (s *service) DeleteExpired(ctx context.Context, now int64, keys []string) (int64, error) {
	deleted, err := s.store.DeleteExpired(ctx, now, keys)
	if err != nil {
		return 0, err
	}

	s.invalidateCache(ctx, keys...)

	return deleted, nil
}

func (s *service) DeleteAllExpired(ctx context.Context, now int64) (int64, error) {
	keys, err := s.store.SelectExpired(ctx, now, 0x7fffffff)
	if err != nil {
		return 0, err
	}

	deleted, err := s.store.DeleteAllExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	s.invalidateCache(ctx, keys...)

	return deleted, nil
}

func (s *service) CountByTier(ctx context.Context) (map[featurestore.StorageTier]int64, error) {
	counts, err := s.store.CountByTier(ctx)
	if err != nil {
		return nil, err
	}

	for tier, count := range counts {
		observability.KeysByTier.WithLabelValues(string(tier)).Set(float64(count))
	}

	return counts, nil
}

func (s *service) Stats(ctx context.Context, tier *featurestore.StorageTier, tag string) (map[string]any, error) {
	counts, err := s.CountByTier(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	stats := map[string]any{
		"storage_stats": counts,
		"total_keys":    total,
		"timestamp":     time.Now().UnixMilli(),
	}

	if tier != nil {
		detail, err := s.store.StatsByTier(ctx, *tier)
		if err != nil {
			return nil, err
		}

		stats["detail_stats"] = detail
	}

	if tag != "" {
		tagStats, err := s.store.StatsByTag(ctx, tag)
		if err != nil {
			return nil, err
		}

		stats["business_stats"] = tagStats
	}

	yesterday := time.Now().Add(-24 * time.Hour).UnixMilli()

	active, err := s.store.CountActiveSince(ctx, yesterday)
	if err != nil {
		return nil, err
	}

	stats["active_keys_24h"] = active

	return stats, nil
}

func (s *service) ResetAccessCounts(ctx context.Context, now int64) (int64, error) {
	return s.store.ResetAccessCounts(ctx, now)
}

func (s *service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("metadata store unreachable: %w", err)
	}

	return nil
}

func (s *service) populateCache(ctx context.Context, m *featurestore.FeatureMetadata) {
	if err := s.cache.Set(ctx, m); err != nil {
		s.log.WithError(err).WithField("key", m.KeyName).Warn("Metadata cache write failed")
	}
}

func (s *service) invalidateCache(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("Metadata cache invalidation failed")
	}
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
