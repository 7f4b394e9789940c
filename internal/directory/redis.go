package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisStore is the subset of the go-redis client the cache uses.
type redisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache shares device records across replicas. Redis enforces the
// TTL; any Redis failure is treated as a miss.
type RedisCache struct {
	rdb    redisStore
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient connects to addr and checks it with PING.
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// NewRedisCache wraps a go-redis client.
func NewRedisCache(rdb redisStore, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(email string) string { return c.prefix + email }

func (c *RedisCache) Get(ctx context.Context, email string) (DeviceRecord, bool) {
	data, err := c.rdb.Get(ctx, c.key(email)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("device cache read failed", "error", err)
		}
		return DeviceRecord{}, false
	}
	var rec DeviceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("device cache entry corrupt", "error", err)
		return DeviceRecord{}, false
	}
	return rec, true
}

func (c *RedisCache) Set(ctx context.Context, email string, rec DeviceRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("device cache encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key(email), data, c.ttl).Err(); err != nil {
		c.logger.Warn("device cache write failed", "error", err)
	}
}
