package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis backend
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store on top of go-redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store and verifies connectivity
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisOptions(cfg RedisConfig) (*redis.Options, error) {
	if url := strings.TrimSpace(cfg.URL); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid url: %w", err)
		}
		return opts, nil
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "localhost:6379"
	}
	return &redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// Get returns the string value stored at key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis: get %q: %w", key, err)
	}
	return val, nil
}

// Set stores value at key with an optional TTL
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %q: %w", key, err)
	}
	return nil
}

// HSetFields sets hash fields at key
func (s *RedisStore) HSetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("redis: hset %q: %w", key, err)
	}
	return nil
}

// HGetAll returns all hash fields at key
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall %q: %w", key, err)
	}
	return fields, nil
}

// Scan iterates keys matching pattern
func (s *RedisStore) Scan(ctx context.Context, cursor uint64, pattern string, pageSize int64) (uint64, []string, error) {
	keys, next, err := s.client.Scan(ctx, cursor, pattern, pageSize).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("redis: scan %q: %w", pattern, err)
	}
	return next, keys, nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
