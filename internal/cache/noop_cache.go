package cache

import "context"

type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(context.Context, TileKey) ([]byte, bool) {
	return nil, false
}

func (c *NoopCache) Set(context.Context, TileKey, []byte) {}

func (c *NoopCache) Has(context.Context, TileKey) bool {
	return false
}

func (c *NoopCache) Clear(context.Context) {}

func (c *NoopCache) Close() error {
	return nil
}
