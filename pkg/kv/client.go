package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrKeyNotFound is returned when a key is absent from the store
	ErrKeyNotFound = errors.New("key not found")
)

// Client is the capability set both tiers provide
type Client interface {
	// Get returns the value for key, or ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key; ttl <= 0 means no expiry
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// MGet returns the subset of keys that exist
	MGet(ctx context.Context, keys []string) (map[string]string, error)
	// Del removes key; reports whether it existed
	Del(ctx context.Context, key string) (bool, error)
	// DelMany removes keys and returns how many existed
	DelMany(ctx context.Context, keys []string) (int64, error)
	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key; negative durations follow Redis semantics
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Expire sets the remaining lifetime of key
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Scan walks keys matching pattern, calling fn per page until exhausted
	Scan(ctx context.Context, pattern string, pageSize int64, fn func(keys []string) error) error
	// Ping verifies connectivity
	Ping(ctx context.Context) error
	// Close releases the connection pool
	Close() error
}

type redisKV struct {
	client *redis.Client
}

// New creates a tier client from its config
func New(cfg *Config) (Client, error) {
	opt, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("failed to parse kv URL: %w", err)
	}

	return &redisKV{client: redis.NewClient(opt)}, nil
}

// NewFromClient wraps an existing go-redis client (used by tests)
func NewFromClient(client *redis.Client) Client {
	return &redisKV{client: client}
}

func (r *redisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}

		return "", err
	}

	return val, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}

	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	found := make(map[string]string, len(keys))

	for i, v := range vals {
		if v == nil {
			continue
		}

		if s, ok := v.(string); ok {
			found[keys[i]] = s
		}
	}

	return found, nil
}

func (r *redisKV) Del(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *redisKV) DelMany(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	return r.client.Del(ctx, keys...).Result()
}

func (r *redisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *redisKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *redisKV) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.Expire(ctx, key, ttl).Result()
}

func (r *redisKV) Scan(ctx context.Context, pattern string, pageSize int64, fn func(keys []string) error) error {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, pageSize).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}

		if next == 0 {
			return nil
		}

		cursor = next
	}
}

func (r *redisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisKV) Close() error {
	return r.client.Close()
}
