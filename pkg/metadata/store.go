package metadata

import (
	"context"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

// TierStats summarizes the stable rows of one tier
type TierStats struct {
	TotalCount         int64   `json:"total_count"`
	TotalSize          int64   `json:"total_size"`
	AvgAccessCount     float64 `json:"avg_access_count"`
	EarliestAccessTime int64   `json:"earliest_access_time"`
	LatestAccessTime   int64   `json:"latest_access_time"`
}

// TagStats summarizes the rows carrying one business tag
type TagStats struct {
	Count          int64   `json:"count"`
	TotalSize      int64   `json:"total_size"`
	AvgAccessCount float64 `json:"avg_access_count"`
}

// Store is the authoritative metadata backend. It provides transactional row
// mutation and the atomic compare-and-swap on migration_status that serializes
// migration claims; nothing else in the system writes the table.
type Store interface {
	// Get returns the record for key, or nil if absent
	Get(ctx context.Context, key string) (*featurestore.FeatureMetadata, error)
	// GetMany returns the records present for the given keys
	GetMany(ctx context.Context, keys []string) (map[string]*featurestore.FeatureMetadata, error)
	// Insert creates a new record
	Insert(ctx context.Context, m *featurestore.FeatureMetadata) error
	// Update overwrites an existing record; reports whether it existed
	Update(ctx context.Context, m *featurestore.FeatureMetadata) (bool, error)
	// Delete removes a record; reports whether it existed
	Delete(ctx context.Context, key string) (bool, error)
	// IncrementAccess atomically bumps access_count and last_access_time
	IncrementAccess(ctx context.Context, key string, now int64) (bool, error)

	// ClaimForMigration CASes migration_status from STABLE or FAILED to
	// MIGRATING. Exactly one concurrent caller per key succeeds.
	ClaimForMigration(ctx context.Context, key string, now int64) (bool, error)
	// FinishMigration settles a MIGRATING row into the target tier as STABLE
	FinishMigration(ctx context.Context, key string, target featurestore.StorageTier, now int64) (bool, error)
	// AbortMigration marks a MIGRATING row FAILED, leaving its tier untouched
	AbortMigration(ctx context.Context, key string, now int64) (bool, error)

	// SelectForHotToCold returns stable HOT rows idle since before idleBefore,
	// oldest access first
	SelectForHotToCold(ctx context.Context, idleBefore int64, limit int) ([]*featurestore.FeatureMetadata, error)
	// SelectForColdToHot returns stable COLD rows with access_count >= threshold
	// accessed since recentSince, hottest first
	SelectForColdToHot(ctx context.Context, accessThreshold int64, recentSince int64, limit int) ([]*featurestore.FeatureMetadata, error)
	// SelectStableByTag returns stable rows of one tier carrying a business tag
	SelectStableByTag(ctx context.Context, tag string, tier featurestore.StorageTier, limit int) ([]*featurestore.FeatureMetadata, error)
	// SelectExpired returns keys whose expire_time has passed
	SelectExpired(ctx context.Context, now int64, limit int) ([]string, error)
	// DeleteExpired removes the given keys if still expired; returns the count removed
	DeleteExpired(ctx context.Context, now int64, keys []string) (int64, error)
	// DeleteAllExpired removes every expired row; returns the count removed
	DeleteAllExpired(ctx context.Context, now int64) (int64, error)

	// CountByTier returns the row count per storage tier
	CountByTier(ctx context.Context) (map[featurestore.StorageTier]int64, error)
	// StatsByTier summarizes the stable rows of one tier
	StatsByTier(ctx context.Context, tier featurestore.StorageTier) (*TierStats, error)
	// StatsByTag summarizes the rows carrying one business tag
	StatsByTag(ctx context.Context, tag string) (*TagStats, error)
	// CountActiveSince counts rows accessed after since
	CountActiveSince(ctx context.Context, since int64) (int64, error)
	// ResetAccessCounts zeroes access_count on every row at a statistics-window boundary
	ResetAccessCounts(ctx context.Context, now int64) (int64, error)

	// Ping verifies connectivity
	Ping(ctx context.Context) error
	// Close releases the store's resources
	Close()
}
