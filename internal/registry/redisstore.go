package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/resilientedge/core/internal/circuitbreaker"
)

// RedisStore mirrors non-closed circuit snapshots to Redis, implementing
// circuitbreaker.StateStore. This is an optional degraded-mode aid: a
// process restarting while a dependency is unhealthy can rehydrate the
// breaker's state rather than starting closed against a known-bad
// resource.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// RedisConfig holds RedisStore construction options.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore creates a RedisStore, pinging the server to fail fast on a
// bad URL or unreachable host.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "resilientedge:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) key(resourceName string) string {
	return s.prefix + "circuit:" + resourceName
}

// Save mirrors a snapshot to Redis. Called only for non-closed states, per
// the registry's optional degraded-mode caching policy.
func (s *RedisStore) Save(snapshot circuitbreaker.Snapshot) error {
	data, err := circuitbreaker.MarshalSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rdb.Set(ctx, s.key(snapshot.ResourceName), data, 0).Err()
}

// Load retrieves a mirrored snapshot, returning (Snapshot{}, nil) if none
// is cached.
func (s *RedisStore) Load(resourceName string) (circuitbreaker.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := s.rdb.Get(ctx, s.key(resourceName)).Bytes()
	if err == redis.Nil {
		return circuitbreaker.Snapshot{}, nil
	}
	if err != nil {
		return circuitbreaker.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return circuitbreaker.UnmarshalSnapshot(data)
}

// Delete removes a mirrored snapshot, e.g. once the circuit closes again.
func (s *RedisStore) Delete(resourceName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rdb.Del(ctx, s.key(resourceName)).Err()
}

// HealthCheck reports Redis connectivity.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
