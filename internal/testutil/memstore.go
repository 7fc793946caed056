package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/metadata"
)

// MemStore is an in-memory metadata.Store for unit tests. Mutations take a
// single mutex, so the CAS claim has the same exactly-one-winner behavior as
// the Postgres implementation.
type MemStore struct {
	mu      sync.Mutex
	rows    map[string]*featurestore.FeatureMetadata
	failAll bool
}

var _ metadata.Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]*featurestore.FeatureMetadata)}
}

// ErrStoreDown is returned from every call while FailAll is set
var ErrStoreDown = errors.New("metadata store down")

// SetFailAll makes every subsequent call fail, simulating a store outage
func (s *MemStore) SetFailAll(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

// Seed inserts records directly, bypassing timestamps
func (s *MemStore) Seed(records ...*featurestore.FeatureMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range records {
		s.rows[m.KeyName] = m.Clone()
	}
}

// Snapshot returns a copy of one row, or nil
func (s *MemStore) Snapshot(key string) *featurestore.FeatureMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.rows[key]; ok {
		return m.Clone()
	}

	return nil
}

// Len returns the row count
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.rows)
}

func (s *MemStore) Get(_ context.Context, key string) (*featurestore.FeatureMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	if m, ok := s.rows[key]; ok {
		return m.Clone(), nil
	}

	return nil, nil
}

func (s *MemStore) GetMany(_ context.Context, keys []string) (map[string]*featurestore.FeatureMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	result := make(map[string]*featurestore.FeatureMetadata, len(keys))

	for _, key := range keys {
		if m, ok := s.rows[key]; ok {
			result[key] = m.Clone()
		}
	}

	return result, nil
}

func (s *MemStore) Insert(_ context.Context, m *featurestore.FeatureMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return ErrStoreDown
	}

	s.rows[m.KeyName] = m.Clone()

	return nil
}

func (s *MemStore) Update(_ context.Context, m *featurestore.FeatureMetadata) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return false, ErrStoreDown
	}

	existing, ok := s.rows[m.KeyName]
	if !ok {
		return false, nil
	}

	updated := m.Clone()
	updated.CreateTime = existing.CreateTime
	s.rows[m.KeyName] = updated

	return true, nil
}

func (s *MemStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return false, ErrStoreDown
	}

	if _, ok := s.rows[key]; !ok {
		return false, nil
	}

	delete(s.rows, key)

	return true, nil
}

func (s *MemStore) IncrementAccess(_ context.Context, key string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return false, ErrStoreDown
	}

	m, ok := s.rows[key]
	if !ok {
		return false, nil
	}

	m.AccessCount++
	m.LastAccessTime = now

	return true, nil
}

func (s *MemStore) ClaimForMigration(_ context.Context, key string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return false, ErrStoreDown
	}

	m, ok := s.rows[key]
	if !ok {
		return false, nil
	}

	if m.MigrationStatus != featurestore.StatusStable && m.MigrationStatus != featurestore.StatusFailed {
		return false, nil
	}

	m.MigrationStatus = featurestore.StatusMigrating
	m.MigrationTime = &now
	m.UpdateTime = now

	return true, nil
}

func (s *MemStore) FinishMigration(_ context.Context, key string, target featurestore.StorageTier, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return false, ErrStoreDown
	}

	m, ok := s.rows[key]
	if !ok || m.MigrationStatus != featurestore.StatusMigrating {
		return false, nil
	}

	m.StorageTier = target
	m.MigrationStatus = featurestore.StatusStable
	m.MigrationTime = &now
	m.UpdateTime = now

	return true, nil
}

func (s *MemStore) AbortMigration(_ context.Context, key string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return false, ErrStoreDown
	}

	m, ok := s.rows[key]
	if !ok || m.MigrationStatus != featurestore.StatusMigrating {
		return false, nil
	}

	m.MigrationStatus = featurestore.StatusFailed
	m.MigrationTime = &now
	m.UpdateTime = now

	return true, nil
}

func (s *MemStore) SelectForHotToCold(_ context.Context, idleBefore int64, limit int) ([]*featurestore.FeatureMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	var out []*featurestore.FeatureMetadata

	for _, m := range s.rows {
		if m.StorageTier == featurestore.TierHot &&
			m.MigrationStatus == featurestore.StatusStable &&
			m.LastAccessTime < idleBefore {
			out = append(out, m.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessTime < out[j].LastAccessTime })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *MemStore) SelectForColdToHot(_ context.Context, accessThreshold, recentSince int64, limit int) ([]*featurestore.FeatureMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	var out []*featurestore.FeatureMetadata

	for _, m := range s.rows {
		if m.StorageTier == featurestore.TierCold &&
			m.MigrationStatus == featurestore.StatusStable &&
			m.AccessCount >= accessThreshold &&
			m.LastAccessTime >= recentSince {
			out = append(out, m.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AccessCount != out[j].AccessCount {
			return out[i].AccessCount > out[j].AccessCount
		}

		return out[i].LastAccessTime > out[j].LastAccessTime
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *MemStore) SelectStableByTag(_ context.Context, tag string, tier featurestore.StorageTier, limit int) ([]*featurestore.FeatureMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	var out []*featurestore.FeatureMetadata

	for _, m := range s.rows {
		if m.BusinessTag != nil && *m.BusinessTag == tag &&
			m.StorageTier == tier &&
			m.MigrationStatus == featurestore.StatusStable {
			out = append(out, m.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessTime < out[j].LastAccessTime })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *MemStore) SelectExpired(_ context.Context, now int64, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	var keys []string

	for key, m := range s.rows {
		if m.IsExpired(now) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	return keys, nil
}

func (s *MemStore) DeleteExpired(_ context.Context, now int64, keys []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return 0, ErrStoreDown
	}

	var deleted int64

	for _, key := range keys {
		if m, ok := s.rows[key]; ok && m.IsExpired(now) {
			delete(s.rows, key)

			deleted++
		}
	}

	return deleted, nil
}

func (s *MemStore) DeleteAllExpired(_ context.Context, now int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return 0, ErrStoreDown
	}

	var deleted int64

	for key, m := range s.rows {
		if m.IsExpired(now) {
			delete(s.rows, key)

			deleted++
		}
	}

	return deleted, nil
}

func (s *MemStore) CountByTier(_ context.Context) (map[featurestore.StorageTier]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	counts := make(map[featurestore.StorageTier]int64)

	for _, m := range s.rows {
		counts[m.StorageTier]++
	}

	return counts, nil
}

func (s *MemStore) StatsByTier(_ context.Context, tier featurestore.StorageTier) (*metadata.TierStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	stats := &metadata.TierStats{}

	var totalAccess int64

	for _, m := range s.rows {
		if m.StorageTier != tier || m.MigrationStatus != featurestore.StatusStable {
			continue
		}

		if stats.TotalCount == 0 || m.LastAccessTime < stats.EarliestAccessTime {
			stats.EarliestAccessTime = m.LastAccessTime
		}

		if m.LastAccessTime > stats.LatestAccessTime {
			stats.LatestAccessTime = m.LastAccessTime
		}

		stats.TotalCount++
		stats.TotalSize += m.DataSize
		totalAccess += m.AccessCount
	}

	if stats.TotalCount > 0 {
		stats.AvgAccessCount = float64(totalAccess) / float64(stats.TotalCount)
	}

	return stats, nil
}

func (s *MemStore) StatsByTag(_ context.Context, tag string) (*metadata.TagStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, ErrStoreDown
	}

	stats := &metadata.TagStats{}

	var totalAccess int64

	for _, m := range s.rows {
		if m.BusinessTag == nil || *m.BusinessTag != tag {
			continue
		}

		stats.Count++
		stats.TotalSize += m.DataSize
		totalAccess += m.AccessCount
	}

	if stats.Count > 0 {
		stats.AvgAccessCount = float64(totalAccess) / float64(stats.Count)
	}

	return stats, nil
}

func (s *MemStore) CountActiveSince(_ context.Context, since int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return 0, ErrStoreDown
	}

	var count int64

	for _, m := range s.rows {
		if m.LastAccessTime > since {
			count++
		}
	}

	return count, nil
}

func (s *MemStore) ResetAccessCounts(_ context.Context, now int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return 0, ErrStoreDown
	}

	var reset int64

	for _, m := range s.rows {
		if m.AccessCount > 0 {
			m.AccessCount = 0
			m.UpdateTime = now
			reset++
		}
	}

	return reset, nil
}

func (s *MemStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return ErrStoreDown
	}

	return nil
}

func (s *MemStore) Close() {}
