package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/observability"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

// Service defines the public interface for the migration engine
type Service interface {
	// Start launches the sweep loops, leader election, and async trigger worker
	Start(ctx context.Context) error
	// Stop gracefully shuts the engine down
	Stop() error

	// Trigger runs a manual migration task synchronously
	Trigger(ctx context.Context, req TriggerRequest) (*featurestore.MigrationRecord, error)
	// EnqueueTrigger schedules a manual migration task for background execution
	EnqueueTrigger(req TriggerRequest) (string, error)

	// RunHotToColdSweep runs one demotion sweep immediately
	RunHotToColdSweep(ctx context.Context) (*featurestore.MigrationRecord, error)
	// RunColdToHotSweep runs one recall sweep immediately
	RunColdToHotSweep(ctx context.Context) (*featurestore.MigrationRecord, error)

	// Pause suspends scheduled sweeps; in-flight batches finish
	Pause()
	// Resume re-enables scheduled sweeps
	Resume()
	// IsPaused reports whether scheduled sweeps are suspended
	IsPaused() bool

	// Records returns recent migration records, newest first
	Records(limit int, status featurestore.TaskStatus) []*featurestore.MigrationRecord
	// Statistics aggregates the retained records
	Statistics() map[string]any
	// Estimate sizes a prospective migration without claiming anything
	Estimate(ctx context.Context, req TriggerRequest) (map[string]any, error)
	// ConfigView exposes the engine's effective settings
	ConfigView() map[string]any
}

type service struct {
	log logrus.FieldLogger
	cfg *Config

	meta    metadata.Service
	engine  *engine
	records *recordBook
	elector LeaderElector

	redisClient *redis.Client
	queue       *queueManager
	asynqServer *asynq.Server

	paused          atomic.Bool
	started         atomic.Bool
	hotSweepActive  atomic.Bool
	coldSweepActive atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewService creates the migration engine
func NewService(log logrus.FieldLogger, cfg *Config, stores *kv.Tiered, meta metadata.Service, bus telemetry.Publisher) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse migration redis URL: %w", err)
	}

	svcLog := log.WithField("service", "migration")
	redisClient := redis.NewClient(redisOpt)
	asynqOpt := kv.NewAsynqRedisOptions(redisOpt)

	return &service{
		log:         svcLog,
		cfg:         cfg,
		meta:        meta,
		engine:      newEngine(svcLog, stores, meta, bus),
		records:     newRecordBook(),
		elector:     NewLeaderElector(svcLog, redisClient),
		redisClient: redisClient,
		queue:       newQueueManager(asynqOpt),
		asynqServer: asynq.NewServer(*asynqOpt, asynq.Config{
			Queues:      map[string]int{QueueName: 10},
			Concurrency: cfg.Concurrency,
		}),
		done: make(chan struct{}),
	}, nil
}

// Start initializes and starts the migration service
func (s *service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start elector: %w", err)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMigrationTrigger, s.handleTriggerTask)

	if err := s.asynqServer.Start(mux); err != nil {
		return fmt.Errorf("failed to start trigger worker: %w", err)
	}

	s.started.Store(true)

	if s.cfg.AutoMigrationEnabled {
		s.wg.Add(2)
		go s.sweepLoop(ctx, featurestore.MigrationHotToCold, s.cfg.HotSweepInterval, &s.hotSweepActive)
		go s.sweepLoop(ctx, featurestore.MigrationColdToHot, s.cfg.ColdSweepInterval, &s.coldSweepActive)
	}

	s.log.Info("Migration service started")

	return nil
}

// Stop gracefully shuts down the migration service
func (s *service) Stop() error {
	close(s.done)

	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	if s.started.Load() {
		s.asynqServer.Shutdown()
	}

	if err := s.queue.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close trigger queue")
	}

	if err := s.elector.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop elector")
	}

	if err := s.redisClient.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close redis client")
	}

	s.log.Info("Migration service stopped")

	return nil
}

// sweepLoop ticks one direction's sweep. A tick while the previous sweep is
// still running is dropped, not queued.
func (s *service) sweepLoop(ctx context.Context, migrationType featurestore.MigrationType, interval time.Duration, active *atomic.Bool) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.paused.Load() || !s.elector.IsLeader() {
				continue
			}

			if !active.CompareAndSwap(false, true) {
				s.log.WithField("type", migrationType).Debug("Previous sweep still running, dropping tick")
				continue
			}

			if _, err := s.runSweep(ctx, migrationType); err != nil {
				s.log.WithError(err).WithField("type", migrationType).Error("Sweep failed")
			}

			active.Store(false)
		}
	}
}

// runSweep selects candidates for one direction and migrates them in batches
func (s *service) runSweep(ctx context.Context, migrationType featurestore.MigrationType) (*featurestore.MigrationRecord, error) {
	start := time.Now()

	candidates, err := s.selectCandidates(ctx, migrationType, "")
	if err != nil {
		return nil, fmt.Errorf("failed to select candidates: %w", err)
	}

	record := s.newRecord(migrationType, len(candidates))

	if len(candidates) == 0 {
		s.finishRecord(ctx, record, "")
		return record, nil
	}

	s.log.WithFields(logrus.Fields{
		"type":  migrationType,
		"count": len(candidates),
	}).Info("Starting migration sweep")

	s.processKeys(ctx, migrationType, candidates, record)
	s.finishRecord(ctx, record, "")

	observability.MigrationSweepDuration.WithLabelValues(string(migrationType)).Observe(time.Since(start).Seconds())

	s.log.WithFields(logrus.Fields{
		"type":    migrationType,
		"success": record.SuccessCount,
		"failed":  record.FailCount,
	}).Info("Migration sweep completed")

	return record, nil
}

func (s *service) RunHotToColdSweep(ctx context.Context) (*featurestore.MigrationRecord, error) {
	return s.runSweep(ctx, featurestore.MigrationHotToCold)
}

func (s *service) RunColdToHotSweep(ctx context.Context) (*featurestore.MigrationRecord, error) {
	return s.runSweep(ctx, featurestore.MigrationColdToHot)
}

func (s *service) Trigger(ctx context.Context, req TriggerRequest) (*featurestore.MigrationRecord, error) {
	if _, err := featurestore.ParseMigrationType(string(req.Type)); err != nil {
		return nil, err
	}

	keys := req.Keys

	if len(keys) == 0 {
		candidates, err := s.selectCandidates(ctx, req.Type, req.BusinessTag)
		if err != nil {
			return nil, fmt.Errorf("failed to select candidates: %w", err)
		}

		keys = candidates
	}

	record := s.newRecord(req.Type, len(keys))

	s.log.WithFields(logrus.Fields{
		"task_id": record.TaskID,
		"type":    req.Type,
		"count":   len(keys),
	}).Info("Manual migration triggered")

	s.processKeys(ctx, req.Type, keys, record)
	s.finishRecord(ctx, record, "")

	return record, nil
}

func (s *service) EnqueueTrigger(req TriggerRequest) (string, error) {
	if _, err := featurestore.ParseMigrationType(string(req.Type)); err != nil {
		return "", err
	}

	return s.queue.EnqueueTrigger(req)
}

// handleTriggerTask is the asynq handler for background triggers
func (s *service) handleTriggerTask(ctx context.Context, task *asynq.Task) error {
	var req TriggerRequest
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	_, err := s.Trigger(ctx, req)

	return err
}

// selectCandidates picks keys per the direction's policy, or by tag when given
func (s *service) selectCandidates(ctx context.Context, migrationType featurestore.MigrationType, tag string) ([]string, error) {
	var (
		rows []*featurestore.FeatureMetadata
		err  error
	)

	switch {
	case tag != "":
		limit := s.cfg.MaxMigrationSize
		if migrationType == featurestore.MigrationColdToHot {
			limit = s.cfg.MaxRecallSize
		}

		rows, err = s.meta.SelectStableByTag(ctx, tag, migrationType.Source(), limit)
	case migrationType == featurestore.MigrationHotToCold:
		idleBefore := time.Now().Add(-s.cfg.HotToColdIdle).UnixMilli()
		rows, err = s.meta.SelectForHotToCold(ctx, idleBefore, s.cfg.MaxMigrationSize)
	default:
		recentSince := time.Now().Add(-s.cfg.ColdToHotRecent).UnixMilli()
		rows, err = s.meta.SelectForColdToHot(ctx, s.cfg.ColdToHotAccessThreshold, recentSince, s.cfg.MaxRecallSize)
	}

	if err != nil {
		return nil, err
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.KeyName
	}

	return keys, nil
}

// processKeys migrates keys in batches, pausing between batches to throttle
// pressure on the stores. Claim conflicts are skipped, not counted as failures.
func (s *service) processKeys(ctx context.Context, migrationType featurestore.MigrationType, keys []string, record *featurestore.MigrationRecord) {
	for batchStart := 0; batchStart < len(keys); batchStart += s.cfg.BatchSize {
		batchEnd := batchStart + s.cfg.BatchSize
		if batchEnd > len(keys) {
			batchEnd = len(keys)
		}

		for _, key := range keys[batchStart:batchEnd] {
			err := s.engine.migrateKey(ctx, key, migrationType)

			switch {
			case err == nil:
				record.SuccessCount++
			case errors.Is(err, ErrClaimConflict):
				// Another migration holds the key; it is not ours to count
			default:
				record.FailCount++
				record.FailedKeys = append(record.FailedKeys, key)
			}
		}

		if batchEnd < len(keys) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.BatchInterval):
			}
		}
	}
}

func (s *service) newRecord(migrationType featurestore.MigrationType, total int) *featurestore.MigrationRecord {
	return &featurestore.MigrationRecord{
		TaskID:     uuid.New().String(),
		Type:       migrationType,
		Status:     featurestore.TaskRunning,
		SourceTier: migrationType.Source(),
		TargetTier: migrationType.Target(),
		StartTime:  time.Now().UnixMilli(),
		Total:      total,
	}
}

func (s *service) finishRecord(ctx context.Context, record *featurestore.MigrationRecord, errMsg string) {
	record.EndTime = time.Now().UnixMilli()
	record.Status = featurestore.TaskCompleted

	if errMsg != "" {
		record.Status = featurestore.TaskFailed
		record.ErrorMessage = errMsg
	}

	s.records.Add(record)
	s.engine.bus.PublishMigrationEvent(ctx, record.TaskID, record)
}

func (s *service) Pause() {
	s.paused.Store(true)
	s.log.Info("Scheduled migration paused")
}

func (s *service) Resume() {
	s.paused.Store(false)
	s.log.Info("Scheduled migration resumed")
}

func (s *service) IsPaused() bool {
	return s.paused.Load()
}

func (s *service) Records(limit int, status featurestore.TaskStatus) []*featurestore.MigrationRecord {
	if limit <= 0 {
		limit = 20
	}

	return s.records.Recent(limit, status)
}

func (s *service) Statistics() map[string]any {
	return s.records.Statistics()
}

func (s *service) Estimate(ctx context.Context, req TriggerRequest) (map[string]any, error) {
	if _, err := featurestore.ParseMigrationType(string(req.Type)); err != nil {
		return nil, err
	}

	count := len(req.Keys)

	if count == 0 {
		candidates, err := s.selectCandidates(ctx, req.Type, req.BusinessTag)
		if err != nil {
			return nil, err
		}

		count = len(candidates)
	}

	batches := (count + s.cfg.BatchSize - 1) / s.cfg.BatchSize

	// Per-key copy cost is dominated by the four store round trips
	perKey := 5 * time.Millisecond
	estimated := time.Duration(count)*perKey + time.Duration(max(batches-1, 0))*s.cfg.BatchInterval

	return map[string]any{
		"estimated_keys":         count,
		"estimated_batches":      batches,
		"estimated_time_seconds": int64(estimated.Seconds()),
	}, nil
}

func (s *service) ConfigView() map[string]any {
	return map[string]any{
		"auto_migration_enabled":       s.cfg.AutoMigrationEnabled,
		"hot_to_cold_idle_ms":          s.cfg.HotToColdIdle.Milliseconds(),
		"cold_to_hot_access_threshold": s.cfg.ColdToHotAccessThreshold,
		"cold_to_hot_recent_ms":        s.cfg.ColdToHotRecent.Milliseconds(),
		"migration_batch_size":         s.cfg.BatchSize,
		"batch_interval_ms":            s.cfg.BatchInterval.Milliseconds(),
		"max_migration_size":           s.cfg.MaxMigrationSize,
		"max_recall_size":              s.cfg.MaxRecallSize,
		"hot_sweep_interval":           s.cfg.HotSweepInterval.String(),
		"cold_sweep_interval":          s.cfg.ColdSweepInterval.String(),
		"paused":                       s.IsPaused(),
	}
}
