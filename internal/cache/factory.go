package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	Type        string
	MemoryTiles int
	FileDir     string
	SQLitePath  string
	Redis       *redis.Client
	RedisTTL    time.Duration
}

// NewCache creates a cache instance based on the cache type
func NewCache(ctx context.Context, opts Options, log *zap.Logger) (Cache, error) {
	switch opts.Type {
	case "memory":
		log.Info("Using memory cache", zap.Int("max_tiles", opts.MemoryTiles))
		c, err := NewMemoryCache(opts.MemoryTiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		return c, nil
	case "file":
		log.Info("Using file cache", zap.String("cache_dir", opts.FileDir))
		c, err := NewFileCache(opts.FileDir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "sqlite":
		log.Info("Using sqlite cache", zap.String("path", opts.SQLitePath))
		c, err := NewSQLiteCache(ctx, opts.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis cache selected without a redis client")
		}
		log.Info("Using redis cache", zap.Duration("ttl", opts.RedisTTL))
		return NewRedisCache(opts.Redis, opts.RedisTTL, log), nil
	case "disabled":
		log.Info("Cache disabled")
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, file, sqlite, redis, disabled)", opts.Type)
	}
}
