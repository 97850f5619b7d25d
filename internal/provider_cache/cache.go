package provider_cache

import (
	"net/url"
	"sync"
	"time"

	"stellarview/internal/clock"
	"stellarview/internal/layer_registry"
	"stellarview/internal/metrics"
)

// Provider is a tile source bound to one layer, time and zoom cap. The globe
// owns whatever it builds from it; the cache only hands out the handle.
type Provider struct {
	Key           string                    `json:"key"`
	LayerKey      string                    `json:"layer_key"`
	Layer         string                    `json:"layer"`
	Time          string                    `json:"time"`
	Resolution    layer_registry.Resolution `json:"resolution"`
	URL           string                    `json:"url"`
	ProxyURL      string                    `json:"proxy_url,omitempty"`
	TileMatrixSet string                    `json:"tile_matrix_set"`
	Format        string                    `json:"format"`
	MaxLevel      int                       `json:"max_level"`
	Credit        string                    `json:"credit"`
	CreatedAt     time.Time                 `json:"created_at"`
}

type Factory func(layer layer_registry.LayerConfig, timeString string, res layer_registry.Resolution) *Provider

func Key(layer layer_registry.LayerConfig, timeString string, res layer_registry.Resolution) string {
	return layer.Layer + "-" + timeString + "-" + string(res)
}

// NewFactory builds providers pointing at the upstream template and, when
// publicBase is set, at this server's tile proxy as well.
func NewFactory(publicBase string, clk clock.Clock) Factory {
	return func(layer layer_registry.LayerConfig, timeString string, res layer_registry.Resolution) *Provider {
		p := &Provider{
			Key:           Key(layer, timeString, res),
			LayerKey:      layer.Key,
			Layer:         layer.Layer,
			Time:          timeString,
			Resolution:    res,
			URL:           layer.ResolveURL(timeString),
			TileMatrixSet: layer.Matrix,
			Format:        layer.Format,
			MaxLevel:      layer_registry.MaxZoom(res, layer),
			Credit:        layer.Credit,
			CreatedAt:     clk.Now(),
		}
		if publicBase != "" {
			q := url.Values{}
			if timeString != "" {
				q.Set("time", timeString)
			}
			q.Set("resolution", string(res))
			// Placeholders are left unescaped for the globe's WMTS provider.
			p.ProxyURL = publicBase + "/api/tiles/" + url.PathEscape(layer.Key) +
				"/{TileMatrix}/{TileRow}/{TileCol}?" + q.Encode()
		}
		return p
	}
}

// Cache maps a layer/time/tier key to exactly one provider handle. It has no
// per-entry eviction; callers drop everything with Clear.
type Cache struct {
	mu        sync.Mutex
	providers map[string]*Provider
	factory   Factory
}

func New(factory Factory) *Cache {
	return &Cache{
		providers: make(map[string]*Provider),
		factory:   factory,
	}
}

func (c *Cache) GetOrCreate(layer layer_registry.LayerConfig, timeString string, res layer_registry.Resolution) *Provider {
	key := Key(layer, timeString, res)

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.providers[key]; ok {
		metrics.ProviderCacheHits.Inc()
		return p
	}

	p := c.factory(layer, timeString, res)
	c.providers[key] = p
	metrics.ProviderCacheMisses.Inc()
	return p
}

func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.providers[key]
	return ok
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.providers)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = make(map[string]*Provider)
	metrics.ProviderCacheClears.Inc()
}
