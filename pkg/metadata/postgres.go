package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

const metadataColumns = `key_name, storage_tier, last_access_time, access_count, create_time,
	update_time, expire_time, data_size, business_tag, migration_status, migration_time`

// postgresStore implements Store on a pgx connection pool
type postgresStore struct {
	log  logrus.FieldLogger
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the authoritative store and applies the schema
func NewPostgresStore(ctx context.Context, log logrus.FieldLogger, cfg *PostgresConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &postgresStore{
		log:  log.WithField("component", "metadata-store"),
		pool: pool,
	}, nil
}

func scanMetadata(row pgx.Row) (*featurestore.FeatureMetadata, error) {
	var m featurestore.FeatureMetadata

	err := row.Scan(
		&m.KeyName,
		&m.StorageTier,
		&m.LastAccessTime,
		&m.AccessCount,
		&m.CreateTime,
		&m.UpdateTime,
		&m.ExpireTime,
		&m.DataSize,
		&m.BusinessTag,
		&m.MigrationStatus,
		&m.MigrationTime,
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) (*featurestore.FeatureMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM feature_metadata WHERE key_name = $1`

	m, err := scanMetadata(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	return m, nil
}

func (s *postgresStore) GetMany(ctx context.Context, keys []string) (map[string]*featurestore.FeatureMetadata, error) {
	result := make(map[string]*featurestore.FeatureMetadata, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query := `SELECT ` + metadataColumns + ` FROM feature_metadata WHERE key_name = ANY($1)`

	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}

		result[m.KeyName] = m
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata rows: %w", err)
	}

	return result, nil
}

func (s *postgresStore) Insert(ctx context.Context, m *featurestore.FeatureMetadata) error {
	query := `
		INSERT INTO feature_metadata (` + metadataColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		m.KeyName, m.StorageTier, m.LastAccessTime, m.AccessCount, m.CreateTime,
		m.UpdateTime, m.ExpireTime, m.DataSize, m.BusinessTag, m.MigrationStatus, m.MigrationTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}

	return nil
}

func (s *postgresStore) Update(ctx context.Context, m *featurestore.FeatureMetadata) (bool, error) {
	query := `
		UPDATE feature_metadata SET
			storage_tier = $2,
			last_access_time = $3,
			access_count = $4,
			update_time = $5,
			expire_time = $6,
			data_size = $7,
			business_tag = $8,
			migration_status = $9,
			migration_time = $10
		WHERE key_name = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.KeyName, m.StorageTier, m.LastAccessTime, m.AccessCount, m.UpdateTime,
		m.ExpireTime, m.DataSize, m.BusinessTag, m.MigrationStatus, m.MigrationTime,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update metadata: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) Delete(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feature_metadata WHERE key_name = $1`, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete metadata: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) IncrementAccess(ctx context.Context, key string, now int64) (bool, error) {
	query := `
		UPDATE feature_metadata SET
			access_count = access_count + 1,
			last_access_time = $2
		WHERE key_name = $1`

	tag, err := s.pool.Exec(ctx, query, key, now)
	if err != nil {
		return false, fmt.Errorf("failed to increment access: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) ClaimForMigration(ctx context.Context, key string, now int64) (bool, error) {
	// The row count is the CAS verdict: at most one concurrent caller moves
	// the row out of STABLE/FAILED.
	query := `
		UPDATE feature_metadata SET
			migration_status = $2,
			migration_time = $3,
			update_time = $3
		WHERE key_name = $1 AND migration_status IN ($4, $5)`

	tag, err := s.pool.Exec(ctx, query, key,
		featurestore.StatusMigrating, now, featurestore.StatusStable, featurestore.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to claim migration: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) FinishMigration(ctx context.Context, key string, target featurestore.StorageTier, now int64) (bool, error) {
	query := `
		UPDATE feature_metadata SET
			storage_tier = $2,
			migration_status = $3,
			migration_time = $4,
			update_time = $4
		WHERE key_name = $1 AND migration_status = $5`

	tag, err := s.pool.Exec(ctx, query, key,
		target, featurestore.StatusStable, now, featurestore.StatusMigrating)
	if err != nil {
		return false, fmt.Errorf("failed to finish migration: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) AbortMigration(ctx context.Context, key string, now int64) (bool, error) {
	query := `
		UPDATE feature_metadata SET
			migration_status = $2,
			migration_time = $3,
			update_time = $3
		WHERE key_name = $1 AND migration_status = $4`

	tag, err := s.pool.Exec(ctx, query, key,
		featurestore.StatusFailed, now, featurestore.StatusMigrating)
	if err != nil {
		return false, fmt.Errorf("failed to abort migration: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) SelectForHotToCold(ctx context.Context, idleBefore int64, limit int) ([]*featurestore.FeatureMetadata, error) {
	query := `
		SELECT ` + metadataColumns + ` FROM feature_metadata
		WHERE storage_tier = $1 AND migration_status = $2 AND last_access_time < $3
		ORDER BY last_access_time ASC
		LIMIT $4`

	return s.selectMany(ctx, query, featurestore.TierHot, featurestore.StatusStable, idleBefore, limit)
}

func (s *postgresStore) SelectForColdToHot(ctx context.Context, accessThreshold, recentSince int64, limit int) ([]*featurestore.FeatureMetadata, error) {
	query := `
		SELECT ` + metadataColumns + ` FROM feature_metadata
		WHERE storage_tier = $1 AND migration_status = $2
			AND access_count >= $3 AND last_access_time >= $4
		ORDER BY access_count DESC, last_access_time DESC
		LIMIT $5`

	return s.selectMany(ctx, query, featurestore.TierCold, featurestore.StatusStable, accessThreshold, recentSince, limit)
}

func (s *postgresStore) SelectStableByTag(ctx context.Context, tag string, tier featurestore.StorageTier, limit int) ([]*featurestore.FeatureMetadata, error) {
	query := `
		SELECT ` + metadataColumns + ` FROM feature_metadata
		WHERE business_tag = $1 AND storage_tier = $2 AND migration_status = $3
		ORDER BY last_access_time ASC
		LIMIT $4`

	return s.selectMany(ctx, query, tag, tier, featurestore.StatusStable, limit)
}

func (s *postgresStore) selectMany(ctx context.Context, query string, args ...any) ([]*featurestore.FeatureMetadata, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select metadata: %w", err)
	}
	defer rows.Close()

	var result []*featurestore.FeatureMetadata

	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}

		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata rows: %w", err)
	}

	return result, nil
}

func (s *postgresStore) SelectExpired(ctx context.Context, now int64, limit int) ([]string, error) {
	query := `
		SELECT key_name FROM feature_metadata
		WHERE expire_time IS NOT NULL AND expire_time < $1
		ORDER BY expire_time ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired keys: %w", err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan expired key: %w", err)
		}

		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read expired keys: %w", err)
	}

	return keys, nil
}

func (s *postgresStore) DeleteExpired(ctx context.Context, now int64, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	query := `
		DELETE FROM feature_metadata
		WHERE key_name = ANY($1) AND expire_time IS NOT NULL AND expire_time < $2`

	tag, err := s.pool.Exec(ctx, query, keys, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired metadata: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (s *postgresStore) DeleteAllExpired(ctx context.Context, now int64) (int64, error) {
	query := `DELETE FROM feature_metadata WHERE expire_time IS NOT NULL AND expire_time < $1`

	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired metadata: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (s *postgresStore) CountByTier(ctx context.Context) (map[featurestore.StorageTier]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT storage_tier, COUNT(*) FROM feature_metadata GROUP BY storage_tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by tier: %w", err)
	}
	defer rows.Close()

	counts := make(map[featurestore.StorageTier]int64)

	for rows.Next() {
		var (
			tier  featurestore.StorageTier
			count int64
		)

		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}

		counts[tier] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tier counts: %w", err)
	}

	return counts, nil
}

func (s *postgresStore) StatsByTier(ctx context.Context, tier featurestore.StorageTier) (*TierStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(data_size), 0),
			COALESCE(AVG(access_count), 0),
			COALESCE(MIN(last_access_time), 0),
			COALESCE(MAX(last_access_time), 0)
		FROM feature_metadata
		WHERE storage_tier = $1 AND migration_status = $2`

	var stats TierStats

	err := s.pool.QueryRow(ctx, query, tier, featurestore.StatusStable).Scan(
		&stats.TotalCount, &stats.TotalSize, &stats.AvgAccessCount,
		&stats.EarliestAccessTime, &stats.LatestAccessTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get tier stats: %w", err)
	}

	return &stats, nil
}

func (s *postgresStore) StatsByTag(ctx context.Context, tag string) (*TagStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(data_size), 0),
			COALESCE(AVG(access_count), 0)
		FROM feature_metadata
		WHERE business_tag = $1`

	var stats TagStats

	err := s.pool.QueryRow(ctx, query, tag).Scan(&stats.Count, &stats.TotalSize, &stats.AvgAccessCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get tag stats: %w", err)
	}

	return &stats, nil
}

func (s *postgresStore) CountActiveSince(ctx context.Context, since int64) (int64, error) {
	var count int64

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM feature_metadata WHERE last_access_time > $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active keys: %w", err)
	}

	return count, nil
}

func (s *postgresStore) ResetAccessCounts(ctx context.Context, now int64) (int64, error) {
	query := `UPDATE feature_metadata SET access_count = 0, update_time = $1 WHERE access_count > 0`

	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reset access counts: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() {
	s.pool.Close()
}
