package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/observability"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

var (
	// ErrClaimConflict is returned when the CAS claim is lost; the sweep skips the key
	ErrClaimConflict = errors.New("migration claim lost")
	// ErrSourceMissing is returned when the key is absent from the source tier
	ErrSourceMissing = errors.New("source value missing")
	// ErrVerifyMismatch is returned when the copied value does not match the source
	ErrVerifyMismatch = errors.New("target verification mismatch")
)

// Event is the per-key outcome emitted on the bus
type Event struct {
	Key        string                     `json:"key"`
	Type       featurestore.MigrationType `json:"type"`
	SourceTier featurestore.StorageTier   `json:"source_tier"`
	TargetTier featurestore.StorageTier   `json:"target_tier"`
	Success    bool                       `json:"success"`
	Error      string                     `json:"error,omitempty"`
	Timestamp  int64                      `json:"timestamp_ms"`
}

// engine executes the per-key migration protocol:
// claim -> read source -> write target -> verify -> delete source -> finalize.
// The target write precedes the source delete, so a concurrent reader always
// finds the value in one of the tiers; readers observing MIGRATING use the
// router's dual-tier read.
type engine struct {
	log    logrus.FieldLogger
	stores *kv.Tiered
	meta   metadata.Service
	bus    telemetry.Publisher
}

func newEngine(log logrus.FieldLogger, stores *kv.Tiered, meta metadata.Service, bus telemetry.Publisher) *engine {
	return &engine{
		log:    log.WithField("component", "engine"),
		stores: stores,
		meta:   meta,
		bus:    bus,
	}
}

// migrateKey moves one key. Any abort leaves the source copy intact and the
// row FAILED. Sweep selection picks only STABLE rows, so a FAILED row is
// re-claimed only by a trigger that names the key explicitly.
func (e *engine) migrateKey(ctx context.Context, key string, migrationType featurestore.MigrationType) error {
	source := migrationType.Source()
	target := migrationType.Target()

	now := time.Now().UnixMilli()

	claimed, err := e.meta.ClaimForMigration(ctx, key, now)
	if err != nil {
		return fmt.Errorf("failed to claim %q: %w", key, err)
	}

	if !claimed {
		observability.RecordMigration(string(migrationType), "conflict")
		return ErrClaimConflict
	}

	if err := e.copyAndSwap(ctx, key, source, target); err != nil {
		e.abort(ctx, key, migrationType, err)
		return err
	}

	if _, err := e.meta.FinishMigration(ctx, key, target, time.Now().UnixMilli()); err != nil {
		// The bytes moved but the row stays MIGRATING; the dual-tier read keeps
		// the key readable from the target tier. Sweeps do not re-claim a
		// MIGRATING row.
		observability.RecordMigration(string(migrationType), "failed")
		e.publish(ctx, key, migrationType, false, err.Error())

		return err
	}

	observability.RecordMigration(string(migrationType), "success")
	e.publish(ctx, key, migrationType, true, "")

	e.log.WithFields(logrus.Fields{
		"key":    key,
		"source": source,
		"target": target,
	}).Debug("Migrated key")

	return nil
}

func (e *engine) copyAndSwap(ctx context.Context, key string, source, target featurestore.StorageTier) error {
	sourceStore := e.stores.ForTier(source)
	targetStore := e.stores.ForTier(target)

	value, err := sourceStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return ErrSourceMissing
		}

		return fmt.Errorf("failed to read source: %w", err)
	}

	// Carry the remaining TTL with the value
	ttl, err := sourceStore.TTL(ctx, key)
	if err != nil || ttl < 0 {
		ttl = 0
	}

	if err := targetStore.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("failed to write target: %w", err)
	}

	verify, err := targetStore.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to verify target: %w", err)
	}

	if verify != value {
		return ErrVerifyMismatch
	}

	if _, err := sourceStore.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	return nil
}

func (e *engine) abort(ctx context.Context, key string, migrationType featurestore.MigrationType, cause error) {
	if _, err := e.meta.AbortMigration(ctx, key, time.Now().UnixMilli()); err != nil {
		e.log.WithError(err).WithField("key", key).Error("Failed to mark migration FAILED")
	}

	observability.RecordMigration(string(migrationType), "failed")
	e.publish(ctx, key, migrationType, false, cause.Error())

	e.log.WithError(cause).WithFields(logrus.Fields{
		"key":  key,
		"type": migrationType,
	}).Warn("Migration aborted")
}

func (e *engine) publish(ctx context.Context, key string, migrationType featurestore.MigrationType, success bool, errMsg string) {
	e.bus.PublishMigrationEvent(ctx, key, &Event{
		Key:        key,
		Type:       migrationType,
		SourceTier: migrationType.Source(),
		TargetTier: migrationType.Target(),
		Success:    success,
		Error:      errMsg,
		Timestamp:  time.Now().UnixMilli(),
	})
}
