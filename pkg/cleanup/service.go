package cleanup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/observability"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

// internalKeyPrefix marks FeatureHub bookkeeping keys that must never be
// treated as orphaned feature data.
const internalKeyPrefix = "featurehub:"

const maxRetainedRecords = 100

// Service defines the public interface for the cleanup engine
type Service interface {
	// Start schedules the periodic sweeps
	Start(ctx context.Context) error
	// Stop cancels the schedules and waits for an in-flight sweep
	Stop() error

	// RunExpiredSweep removes expired keys and their metadata rows
	RunExpiredSweep(ctx context.Context) (*featurestore.CleanupRecord, error)
	// RunOrphanSweep removes store keys that have no metadata row
	RunOrphanSweep(ctx context.Context) (*featurestore.CleanupRecord, error)
	// Trigger runs one sweep on demand, optionally restricted to explicit keys
	Trigger(ctx context.Context, cleanupType featurestore.CleanupType, keys []string) (*featurestore.CleanupRecord, error)

	// Records returns recent cleanup records, newest first
	Records(limit int) []*featurestore.CleanupRecord
	// Statistics aggregates the retained records
	Statistics() map[string]any
}

type service struct {
	log    logrus.FieldLogger
	cfg    *Config
	stores *kv.Tiered
	meta   metadata.Service
	bus    telemetry.Publisher

	cron          *cron.Cron
	expiredActive atomic.Bool
	orphanActive  atomic.Bool

	mu      sync.RWMutex
	records []*featurestore.CleanupRecord
}

// NewService creates the cleanup engine
func NewService(log logrus.FieldLogger, cfg *Config, stores *kv.Tiered, meta metadata.Service, bus telemetry.Publisher) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &service{
		log:    log.WithField("service", "cleanup"),
		cfg:    cfg,
		stores: stores,
		meta:   meta,
		bus:    bus,
		cron:   cron.New(),
	}, nil
}

// Start initializes and starts the cleanup service
func (s *service) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.ExpiredCron, func() {
		if _, err := s.RunExpiredSweep(ctx); err != nil {
			s.log.WithError(err).Error("Scheduled expiry sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	if s.cfg.OrphanCleanupEnabled {
		if _, err := s.cron.AddFunc(s.cfg.OrphanCron, func() {
			if _, err := s.RunOrphanSweep(ctx); err != nil {
				s.log.WithError(err).Error("Scheduled orphan sweep failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule orphan sweep: %w", err)
		}
	}

	s.cron.Start()
	s.log.Info("Cleanup service started")

	return nil
}

// Stop gracefully shuts down the cleanup service
func (s *service) Stop() error {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.log.Info("Cleanup service stopped")

	return nil
}

func (s *service) RunExpiredSweep(ctx context.Context) (*featurestore.CleanupRecord, error) {
	// A second tick while the sweep is running is dropped, not queued
	if !s.expiredActive.CompareAndSwap(false, true) {
		s.log.Debug("Expiry sweep already running, dropping trigger")
		return nil, nil
	}
	defer s.expiredActive.Store(false)

	record := s.newRecord(featurestore.CleanupExpired)

	processed := 0

	for processed < s.cfg.MaxSweepSize {
		now := time.Now().UnixMilli()

		keys, err := s.meta.SelectExpired(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return s.finishRecord(ctx, record, err), err
		}

		if len(keys) == 0 {
			break
		}

		s.cleanExpiredBatch(ctx, now, keys, record)

		processed += len(keys)

		if s.cfg.DryRun {
			// Nothing was deleted, so the same keys would be selected forever
			break
		}

		select {
		case <-ctx.Done():
			return s.finishRecord(ctx, record, ctx.Err()), ctx.Err()
		case <-time.After(s.cfg.BatchInterval):
		}
	}

	s.log.WithFields(logrus.Fields{
		"cleaned": record.CleanedCount,
		"failed":  record.FailedCount,
		"dry_run": s.cfg.DryRun,
	}).Info("Expiry sweep completed")

	return s.finishRecord(ctx, record, nil), nil
}

// cleanExpiredBatch removes one batch of expired keys from their recorded
// tiers, then drops the metadata rows of the keys whose store copy is gone.
func (s *service) cleanExpiredBatch(ctx context.Context, now int64, keys []string, record *featurestore.CleanupRecord) {
	metaMap, err := s.meta.BatchGet(ctx, keys)
	if err != nil {
		s.log.WithError(err).Error("Failed to resolve metadata for expired batch")

		record.FailedCount += len(keys)

		return
	}

	settled := make([]string, 0, len(keys))

	for _, key := range keys {
		meta, ok := metaMap[key]
		if !ok {
			// Row vanished between selection and resolution
			s.log.WithField("key", key).Warn("Expired key has no metadata, skipping store delete")

			settled = append(settled, key)

			continue
		}

		if s.cfg.DryRun {
			s.log.WithFields(logrus.Fields{
				"key":  key,
				"tier": meta.StorageTier,
			}).Info("Dry run: would delete expired key")

			record.CleanedCount++

			continue
		}

		if _, err := s.stores.ForTier(meta.StorageTier).Del(ctx, key); err != nil {
			s.log.WithError(err).WithField("key", key).Error("Failed to delete expired key from store")

			record.FailedCount++
			observability.RecordCleanup(string(featurestore.CleanupExpired), "failed")

			continue
		}

		settled = append(settled, key)

		record.CleanedCount++
		observability.RecordCleanup(string(featurestore.CleanupExpired), "cleaned")
	}

	if s.cfg.DryRun || len(settled) == 0 {
		return
	}

	if _, err := s.meta.DeleteExpired(ctx, now, settled); err != nil {
		s.log.WithError(err).Error("Failed to delete expired metadata rows")
	}
}

func (s *service) RunOrphanSweep(ctx context.Context) (*featurestore.CleanupRecord, error) {
	if !s.orphanActive.CompareAndSwap(false, true) {
		s.log.Debug("Orphan sweep already running, dropping trigger")
		return nil, nil
	}
	defer s.orphanActive.Store(false)

	record := s.newRecord(featurestore.CleanupOrphan)

	for _, tier := range []featurestore.StorageTier{featurestore.TierHot, featurestore.TierCold} {
		if err := s.sweepTierForOrphans(ctx, tier, record); err != nil {
			return s.finishRecord(ctx, record, err), err
		}
	}

	s.log.WithFields(logrus.Fields{
		"cleaned": record.CleanedCount,
		"failed":  record.FailedCount,
		"dry_run": s.cfg.DryRun,
	}).Info("Orphan sweep completed")

	return s.finishRecord(ctx, record, nil), nil
}

// sweepTierForOrphans walks one store and deletes keys with no metadata row.
// Metadata misses are re-validated against the authoritative store before a
// key is declared an orphan; a cache miss alone never deletes data.
func (s *service) sweepTierForOrphans(ctx context.Context, tier featurestore.StorageTier, record *featurestore.CleanupRecord) error {
	store := s.stores.ForTier(tier)

	return store.Scan(ctx, "*", s.cfg.ScanPageSize, func(keys []string) error {
		candidates := make([]string, 0, len(keys))

		for _, key := range keys {
			if !strings.HasPrefix(key, internalKeyPrefix) {
				candidates = append(candidates, key)
			}
		}

		if len(candidates) == 0 {
			return nil
		}

		metaMap, err := s.meta.BatchGet(ctx, candidates)
		if err != nil {
			return fmt.Errorf("failed to resolve metadata for scan page: %w", err)
		}

		for _, key := range candidates {
			if _, ok := metaMap[key]; ok {
				continue
			}

			// Re-validate against the source of truth before deleting
			authoritative, err := s.meta.GetAuthoritative(ctx, key)
			if err != nil {
				s.log.WithError(err).WithField("key", key).Warn("Orphan re-validation failed, skipping")

				record.FailedCount++

				continue
			}

			if authoritative != nil {
				observability.RecordCleanup(string(featurestore.CleanupOrphan), "skipped")
				continue
			}

			if s.cfg.DryRun {
				s.log.WithFields(logrus.Fields{
					"key":  key,
					"tier": tier,
				}).Info("Dry run: would delete orphan key")

				record.CleanedCount++

				continue
			}

			if _, err := store.Del(ctx, key); err != nil {
				s.log.WithError(err).WithField("key", key).Error("Failed to delete orphan key")

				record.FailedCount++
				observability.RecordCleanup(string(featurestore.CleanupOrphan), "failed")

				continue
			}

			record.CleanedCount++
			observability.RecordCleanup(string(featurestore.CleanupOrphan), "cleaned")
		}

		return nil
	})
}

func (s *service) Trigger(ctx context.Context, cleanupType featurestore.CleanupType, keys []string) (*featurestore.CleanupRecord, error) {
	if _, err := featurestore.ParseCleanupType(string(cleanupType)); err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		if cleanupType == featurestore.CleanupExpired {
			return s.RunExpiredSweep(ctx)
		}

		return s.RunOrphanSweep(ctx)
	}

	record := s.newRecord(cleanupType)

	s.log.WithFields(logrus.Fields{
		"type":  cleanupType,
		"count": len(keys),
	}).Info("Manual cleanup triggered")

	switch cleanupType {
	case featurestore.CleanupExpired:
		s.cleanExpiredBatch(ctx, time.Now().UnixMilli(), keys, record)
	case featurestore.CleanupOrphan:
		s.cleanOrphanKeys(ctx, keys, record)
	}

	return s.finishRecord(ctx, record, nil), nil
}

// cleanOrphanKeys handles explicitly named orphan candidates across both tiers
func (s *service) cleanOrphanKeys(ctx context.Context, keys []string, record *featurestore.CleanupRecord) {
	for _, key := range keys {
		authoritative, err := s.meta.GetAuthoritative(ctx, key)
		if err != nil {
			record.FailedCount++
			continue
		}

		if authoritative != nil {
			// Not an orphan
			observability.RecordCleanup(string(featurestore.CleanupOrphan), "skipped")
			continue
		}

		if s.cfg.DryRun {
			record.CleanedCount++
			continue
		}

		deleted := false

		for _, tier := range []featurestore.StorageTier{featurestore.TierHot, featurestore.TierCold} {
			ok, err := s.stores.ForTier(tier).Del(ctx, key)
			if err != nil {
				s.log.WithError(err).WithField("key", key).Error("Failed to delete orphan key")
				continue
			}

			deleted = deleted || ok
		}

		if deleted {
			record.CleanedCount++
			observability.RecordCleanup(string(featurestore.CleanupOrphan), "cleaned")
		}
	}
}

func (s *service) newRecord(cleanupType featurestore.CleanupType) *featurestore.CleanupRecord {
	return &featurestore.CleanupRecord{
		TaskID:    uuid.New().String(),
		Type:      cleanupType,
		Status:    featurestore.TaskRunning,
		StartTime: time.Now().UnixMilli(),
	}
}

func (s *service) finishRecord(ctx context.Context, record *featurestore.CleanupRecord, cause error) *featurestore.CleanupRecord {
	record.EndTime = time.Now().UnixMilli()
	record.Status = featurestore.TaskCompleted

	if cause != nil {
		record.Status = featurestore.TaskFailed
		record.ErrorMessage = cause.Error()
	}

	s.mu.Lock()
	s.records = append(s.records, record)

	if len(s.records) > maxRetainedRecords {
		s.records = s.records[len(s.records)-maxRetainedRecords:]
	}
	s.mu.Unlock()

	s.bus.PublishCleanupEvent(ctx, record)

	return record
}

func (s *service) Records(limit int) []*featurestore.CleanupRecord {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*featurestore.CleanupRecord, 0, limit)

	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}

	return out
}

func (s *service) Statistics() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cleaned, failed, completed int

	for _, r := range s.records {
		cleaned += r.CleanedCount
		failed += r.FailedCount

		if r.Status == featurestore.TaskCompleted {
			completed++
		}
	}

	return map[string]any{
		"total_sweeps":           len(s.records),
		"completed":              completed,
		"cleaned_count":          cleaned,
		"failed_count":           failed,
		"dry_run":                s.cfg.DryRun,
		"orphan_enabled":         s.cfg.OrphanCleanupEnabled,
		"expired_retention_days": s.cfg.ExpiredRetentionDays,
	}
}
