package tile_proxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"stellarview/internal/cache"
	"stellarview/internal/layer_registry"
	"stellarview/internal/metrics"
	"stellarview/internal/time_format"
)

const maxTileBytes = 16 << 20

var (
	ErrZoomOutOfRange   = errors.New("zoom out of range")
	ErrTileOutOfRange   = errors.New("tile out of range")
	ErrUpstreamNotFound = errors.New("upstream has no tile")
	ErrUpstream         = errors.New("upstream error")
)

type Request struct {
	Layer      string
	Time       string
	Resolution layer_registry.Resolution
	Z          int
	Row        int
	Col        int
}

type Tile struct {
	Data        []byte
	ContentType string
	ETag        string
	Cached      bool
}

// Proxy serves WMTS tiles through the byte cache. Requests are checked
// against the layer's time format and zoom range before anything goes
// upstream, because GIBS answers a malformed request with a bare 404.
type Proxy struct {
	registry  *layer_registry.Registry
	tileCache cache.Cache
	client    *http.Client
	sem       *semaphore.Weighted
	group     singleflight.Group
	logger    *zap.Logger
}

func New(registry *layer_registry.Registry, tileCache cache.Cache, client *http.Client, workers int64, logger *zap.Logger) *Proxy {
	if workers <= 0 {
		workers = 1
	}
	return &Proxy{
		registry:  registry,
		tileCache: tileCache,
		client:    client,
		sem:       semaphore.NewWeighted(workers),
		logger:    logger,
	}
}

func (p *Proxy) Validate(req Request) (layer_registry.LayerConfig, error) {
	layer, err := p.registry.Get(req.Layer)
	if err != nil {
		return layer, err
	}

	if err := time_format.Validate(req.Time, layer.Temporal); err != nil {
		return layer, err
	}

	res := req.Resolution
	if res == "" {
		res = layer_registry.High
	}
	maxZoom := layer_registry.MaxZoom(res, layer)
	if req.Z < 0 || req.Z > maxZoom {
		return layer, fmt.Errorf("%w: %d not in [0, %d] for %s at %s", ErrZoomOutOfRange, req.Z, maxZoom, layer.Key, res)
	}

	// Bounds are checked as ints first; uint32 conversion would wrap 1<<32 to 0.
	n := 1 << req.Z
	if req.Row < 0 || req.Col < 0 || req.Row >= n || req.Col >= n ||
		!maptile.New(uint32(req.Col), uint32(req.Row), maptile.Zoom(req.Z)).Valid() {
		return layer, fmt.Errorf("%w: %d/%d/%d", ErrTileOutOfRange, req.Z, req.Row, req.Col)
	}

	return layer, nil
}

func (p *Proxy) Fetch(ctx context.Context, req Request) (*Tile, error) {
	layer, err := p.Validate(req)
	if err != nil {
		metrics.TileRejects.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	key := cache.WMTSKey(layer.Key, req.Time, req.Z, req.Row, req.Col, layer.Extension())
	tile := &Tile{ContentType: layer.Format, ETag: etag(key)}

	if data, ok := p.tileCache.Get(ctx, key); ok {
		metrics.TileRequests.WithLabelValues("cache").Inc()
		tile.Data, tile.Cached = data, true
		return tile, nil
	}

	// Callers sharing a flight must not be failed by the first one leaving.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := p.group.Do(key.String(), func() (interface{}, error) {
		if err := p.sem.Acquire(flightCtx, 1); err != nil {
			return nil, err
		}
		defer p.sem.Release(1)

		data, err := p.fetchUpstream(flightCtx, layer.TileURL(req.Time, req.Z, req.Row, req.Col))
		if err != nil {
			return nil, err
		}
		p.tileCache.Set(flightCtx, key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	source := "upstream"
	if shared {
		source = "shared"
	}
	metrics.TileRequests.WithLabelValues(source).Inc()
	tile.Data = v.([]byte)
	return tile, nil
}

func (p *Proxy) fetchUpstream(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	metrics.TileUpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	metrics.TileUpstreamStatus.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		p.logger.Debug("Upstream tile not found", zap.String("url", url))
		return nil, ErrUpstreamNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrUpstream, err)
	}
	return data, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, layer_registry.ErrUnknownLayer):
		return "unknown_layer"
	case errors.Is(err, time_format.ErrInvalidTime):
		return "invalid_time"
	case errors.Is(err, ErrZoomOutOfRange):
		return "zoom"
	case errors.Is(err, ErrTileOutOfRange):
		return "tile"
	default:
		return "other"
	}
}

func etag(key cache.TileKey) string {
	hash := sha256.Sum256([]byte(key.String()))
	return hex.EncodeToString(hash[:])[:16]
}
