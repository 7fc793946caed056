package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

const cacheKeyPrefix = "featurehub:metadata:"

// Cache is the read-through layer in front of the authoritative store. It is
// never authoritative: callers treat every error as a miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a cache from its config
func NewCache(cfg *CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache URL: %w", err)
	}

	return &Cache{client: redis.NewClient(opt), ttl: cfg.TTL}, nil
}

// NewCacheFromClient wraps an existing go-redis client (used by tests)
func NewCacheFromClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached record for key, or nil on a miss
func (c *Cache) Get(ctx context.Context, key string) (*featurestore.FeatureMetadata, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, err
	}

	var m featurestore.FeatureMetadata
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		// Corrupt entry: drop it and treat as a miss
		_ = c.client.Del(ctx, cacheKeyPrefix+key)

		return nil, nil
	}

	return &m, nil
}

// GetMany returns the cached records present for the given keys in one MGET
func (c *Cache) GetMany(ctx context.Context, keys []string) (map[string]*featurestore.FeatureMetadata, error) {
	result := make(map[string]*featurestore.FeatureMetadata, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	cacheKeys := make([]string, len(keys))
	for i, key := range keys {
		cacheKeys[i] = cacheKeyPrefix + key
	}

	vals, err := c.client.MGet(ctx, cacheKeys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range vals {
		if v == nil {
			continue
		}

		data, ok := v.(string)
		if !ok {
			continue
		}

		var m featurestore.FeatureMetadata
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			_ = c.client.Del(ctx, cacheKeys[i])
			continue
		}

		result[keys[i]] = &m
	}

	return result, nil
}

// Set stores one record
func (c *Cache) Set(ctx context.Context, m *featurestore.FeatureMetadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, cacheKeyPrefix+m.KeyName, data, c.ttl).Err()
}

// SetMany stores records in one pipelined round trip
func (c *Cache) SetMany(ctx context.Context, records []*featurestore.FeatureMetadata) error {
	if len(records) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()

	for _, m := range records {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}

		pipe.Set(ctx, cacheKeyPrefix+m.KeyName, data, c.ttl)
	}

	_, err := pipe.Exec(ctx)

	return err
}

// Invalidate removes the entries for the given keys
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	cacheKeys := make([]string, len(keys))
	for i, key := range keys {
		cacheKeys[i] = cacheKeyPrefix + key
	}

	return c.client.Del(ctx, cacheKeys...).Err()
}

// Ping verifies connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the cache connection
func (c *Cache) Close() error {
	return c.client.Close()
}
