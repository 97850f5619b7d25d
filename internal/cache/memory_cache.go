package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is a bounded in-memory LRU keyed by tile.
type MemoryCache struct {
	items *lru.Cache[TileKey, []byte]
}

func NewMemoryCache(maxSize int) (*MemoryCache, error) {
	items, err := lru.New[TileKey, []byte](maxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{items: items}, nil
}

func (c *MemoryCache) Has(_ context.Context, key TileKey) bool {
	return c.items.Contains(key)
}

func (c *MemoryCache) Get(_ context.Context, key TileKey) ([]byte, bool) {
	return c.items.Get(key)
}

func (c *MemoryCache) Set(_ context.Context, key TileKey, value []byte) {
	c.items.Add(key, value)
}

func (c *MemoryCache) Clear(context.Context) {
	c.items.Purge()
}

func (c *MemoryCache) Len() int {
	return c.items.Len()
}

func (c *MemoryCache) Close() error {
	return nil
}
