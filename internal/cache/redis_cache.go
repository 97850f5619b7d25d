package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stellarview/internal/storage"
)

const redisKeyPrefix = "tile:"

// RedisCache stores tiles with a TTL. The client is shared and not closed
// here.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) keyFor(k TileKey) string {
	return fmt.Sprintf("%s%s:%s:%d:%d:%d:%s", redisKeyPrefix, k.Source, k.Variant, k.Z, k.X, k.Y, k.Format)
}

func (c *RedisCache) Get(ctx context.Context, k TileKey) ([]byte, bool) {
	start := time.Now()
	data, err := c.client.Get(ctx, c.keyFor(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		storage.ObserveRedis("get", start, nil)
		return nil, false
	}
	storage.ObserveRedis("get", start, err)
	if err != nil {
		c.logger.Warn("redis cache get failed", zap.String("key", k.String()), zap.Error(err))
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Has(ctx context.Context, k TileKey) bool {
	start := time.Now()
	n, err := c.client.Exists(ctx, c.keyFor(k)).Result()
	storage.ObserveRedis("exists", start, err)
	return err == nil && n > 0
}

func (c *RedisCache) Set(ctx context.Context, k TileKey, v []byte) {
	start := time.Now()
	err := c.client.Set(ctx, c.keyFor(k), v, c.ttl).Err()
	storage.ObserveRedis("set", start, err)
	if err != nil {
		c.logger.Warn("redis cache set failed", zap.String("key", k.String()), zap.Error(err))
	}
}

// Clear removes only keys under the tile prefix.
func (c *RedisCache) Clear(ctx context.Context) {
	start := time.Now()
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			c.client.Unlink(ctx, batch...)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		c.client.Unlink(ctx, batch...)
	}
	err := iter.Err()
	storage.ObserveRedis("clear", start, err)
	if err != nil {
		c.logger.Warn("redis cache clear failed", zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return nil
}
