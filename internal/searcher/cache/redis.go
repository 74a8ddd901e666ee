package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/resilience"
)

// RedisStore is the subset of the Redis client the cache needs.
type RedisStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Redis keeps entries as JSON with a TTL. Calls go through a circuit
// breaker so an unavailable Redis degrades to misses instead of slowing
// every query.
type Redis struct {
	client  RedisStore
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewRedis(client RedisStore, ttl time.Duration, breaker *resilience.CircuitBreaker) *Redis {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
	}
	return &Redis{
		client:  client,
		ttl:     ttl,
		breaker: breaker,
		logger:  slog.Default().With("component", "redis-cache"),
	}
}

func (c *Redis) Get(ctx context.Context, key string, generation uint64) (*Entry, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.drop(ctx, key)
		return nil, false
	}
	if entry.Generation < generation {
		c.drop(ctx, key)
		return nil, false
	}
	if entry.Generation != generation {
		return nil, false
	}
	return &entry, true
}

func (c *Redis) Put(ctx context.Context, key string, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Redis) InvalidateAll(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.client.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Redis) drop(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key); err != nil {
		c.logger.Debug("dropping stale entry failed", "key", key, "error", err)
	}
}
