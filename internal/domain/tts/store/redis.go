package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/inter"
)

const (
	defaultRedisPrefix = "tts:cache:"
	// minRedisTTL keeps already-stale entries readable briefly instead of
	// writing them without an expiry.
	minRedisTTL = time.Minute
)

type redisStore struct {
	client          *redis.Client
	prefix          string
	expireAtHorizon bool
	now             func() time.Time
}

// NewRedis constructs a redis-backed metadata store. Each entry is a JSON
// value. Entries carry a TTL up to their cache horizon only when
// cfg.ExpireAtHorizon is set; otherwise they persist until deleted.
func NewRedis(cfg Config) (inter.MetadataStore, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{
		client:          client,
		prefix:          prefix,
		expireAtHorizon: cfg.ExpireAtHorizon,
		now:             time.Now,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) ttl(entry aggregate.CacheEntry) time.Duration {
	if !s.expireAtHorizon {
		return 0
	}
	ttl := entry.CacheExpiresAt.Sub(s.now())
	if ttl < minRedisTTL {
		return minRedisTTL
	}
	return ttl
}

func (s *redisStore) Get(ctx context.Context, key string) (aggregate.CacheEntry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return aggregate.CacheEntry{}, false, nil
	}
	if err != nil {
		return aggregate.CacheEntry{}, false, err
	}
	var entry aggregate.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return aggregate.CacheEntry{}, false, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return entry, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, entry aggregate.CacheEntry) error {
	entry.Key = key
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, s.ttl(entry)).Err()
}

// Update rewrites the URL fields under WATCH so a concurrent Set or Delete
// aborts the transaction instead of being overwritten.
func (s *redisStore) Update(ctx context.Context, key string, patch aggregate.URLPatch) error {
	redisKey := s.key(key)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return notFound(key)
		}
		if err != nil {
			return err
		}
		var entry aggregate.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode entry %s: %w", key, err)
		}
		entry = entry.Apply(patch)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, s.ttl(entry))
			return nil
		})
		return err
	}, redisKey)
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) CleanupExpired(context.Context) ([]aggregate.CacheEntry, error) {
	// Redis handles expiration via TTL when expireAtHorizon is set.
	return nil, nil
}

func (s *redisStore) count(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	total, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":   DriverRedis,
		"total":  total,
		"prefix": s.prefix,
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
