package tile_proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stellarview/internal/cache"
	"stellarview/internal/layer_registry"
	"stellarview/internal/time_format"
)

type upstream struct {
	srv   *httptest.Server
	hits  atomic.Int32
	paths sync.Map
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.paths.Store(r.URL.Path, true)
		handler(w, r)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func newProxy(t *testing.T, u *upstream) *Proxy {
	t.Helper()
	registry := layer_registry.NewWith([]layer_registry.LayerConfig{
		{
			Key:      "goes_east_geocolor",
			URL:      u.srv.URL + "/{Layer}/default/{Time}/{TileMatrixSet}/{TileMatrix}/{TileRow}/{TileCol}.png",
			Matrix:   "GoogleMapsCompatible_Level7",
			Layer:    "GOES-East_ABI_GeoColor",
			Format:   "image/png",
			MaxLevel: 9,
			Temporal: time_format.TenMinute,
			Planet:   layer_registry.Earth,
		},
		{
			Key:      "modis_terra",
			URL:      u.srv.URL + "/{Layer}/default/{Time}/{TileMatrixSet}/{TileMatrix}/{TileRow}/{TileCol}.jpg",
			Matrix:   "GoogleMapsCompatible_Level9",
			Layer:    "MODIS_Terra_CorrectedReflectance_TrueColor",
			Format:   "image/jpeg",
			MaxLevel: 9,
			Temporal: time_format.Daily,
			Planet:   layer_registry.Earth,
		},
	})
	mem, err := cache.NewMemoryCache(100)
	require.NoError(t, err)
	return New(registry, mem, u.srv.Client(), 4, zap.NewNop())
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write([]byte("png-bytes"))
}

func TestFetchCachesTile(t *testing.T) {
	u := newUpstream(t, okHandler)
	p := newProxy(t, u)
	req := Request{Layer: "goes_east_geocolor", Time: "2024-03-01T12:00:00Z", Resolution: layer_registry.Medium, Z: 3, Row: 2, Col: 5}

	tile, err := p.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), tile.Data)
	assert.Equal(t, "image/png", tile.ContentType)
	assert.False(t, tile.Cached)
	assert.Len(t, tile.ETag, 16)

	_, ok := u.paths.Load("/GOES-East_ABI_GeoColor/default/2024-03-01T12:00:00Z/GoogleMapsCompatible_Level7/3/2/5.png")
	assert.True(t, ok)

	again, err := p.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, tile.ETag, again.ETag)
	assert.EqualValues(t, 1, u.hits.Load())
}

func TestInvalidRequestsNeverReachUpstream(t *testing.T) {
	u := newUpstream(t, okHandler)
	p := newProxy(t, u)

	tests := []struct {
		name string
		req  Request
		err  error
	}{
		{"unknown layer", Request{Layer: "nope", Time: "2024-03-01"}, layer_registry.ErrUnknownLayer},
		{"seconds set", Request{Layer: "goes_east_geocolor", Time: "2024-03-01T12:00:05Z"}, time_format.ErrInvalidTime},
		{"minute off boundary", Request{Layer: "goes_east_geocolor", Time: "2024-03-01T12:07:00Z"}, time_format.ErrInvalidTime},
		{"daily with clock", Request{Layer: "modis_terra", Time: "2024-03-01T00:00:00Z"}, time_format.ErrInvalidTime},
		{"missing time", Request{Layer: "modis_terra"}, time_format.ErrInvalidTime},
		{"potato zoom", Request{Layer: "modis_terra", Time: "2024-03-01", Resolution: layer_registry.Potato, Z: 2}, ErrZoomOutOfRange},
		{"above native", Request{Layer: "modis_terra", Time: "2024-03-01", Z: 10}, ErrZoomOutOfRange},
		{"row out of range", Request{Layer: "modis_terra", Time: "2024-03-01", Z: 1, Row: 2}, ErrTileOutOfRange},
		{"negative col", Request{Layer: "modis_terra", Time: "2024-03-01", Z: 1, Col: -1}, ErrTileOutOfRange},
		{"col wraps uint32", Request{Layer: "modis_terra", Time: "2024-03-01", Z: 0, Col: 1 << 32}, ErrTileOutOfRange},
		{"row wraps uint32", Request{Layer: "modis_terra", Time: "2024-03-01", Z: 1, Row: 1<<32 + 1}, ErrTileOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Fetch(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Zero(t, u.hits.Load())
}

func TestUpstreamNotFoundIsNotRetried(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	p := newProxy(t, u)

	_, err := p.Fetch(context.Background(), Request{Layer: "modis_terra", Time: "2024-03-01", Z: 0})
	assert.ErrorIs(t, err, ErrUpstreamNotFound)
	assert.EqualValues(t, 1, u.hits.Load())
}

func TestUpstreamFailure(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	p := newProxy(t, u)

	_, err := p.Fetch(context.Background(), Request{Layer: "modis_terra", Time: "2024-03-01", Z: 0})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestConcurrentFetchesShareOneUpstreamRequest(t *testing.T) {
	release := make(chan struct{})
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		okHandler(w, r)
	})
	p := newProxy(t, u)
	req := Request{Layer: "modis_terra", Time: "2024-03-01", Z: 1, Row: 1, Col: 1}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Fetch(context.Background(), req)
		}(i)
	}

	require.Eventually(t, func() bool { return u.hits.Load() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, u.hits.Load())
}
