package preloader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellarview/internal/clock"
	"stellarview/internal/layer_registry"
	"stellarview/internal/provider_cache"
)

var position = time.Date(2024, 3, 1, 12, 7, 33, 0, time.UTC)

func newCache() *provider_cache.Cache {
	return provider_cache.New(provider_cache.NewFactory("", clock.System{}))
}

func getLayer(t *testing.T, key string) layer_registry.LayerConfig {
	t.Helper()
	l, err := layer_registry.New().Get(key)
	require.NoError(t, err)
	return l
}

func waitDone(t *testing.T, p *Preloader) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatal("preloader did not finish")
	}
}

func TestMaxSteps(t *testing.T) {
	assert.Equal(t, 24, MaxSteps(layer_registry.TenMinute))
	assert.Equal(t, 30, MaxSteps(layer_registry.Daily))
	assert.Equal(t, 0, MaxSteps(layer_registry.Static))
}

func TestTenMinuteRunStopsAtBound(t *testing.T) {
	cache := newCache()
	l := getLayer(t, "goes_east_geocolor")

	p := Start(context.Background(), Options{
		Cache:      cache,
		Layer:      l,
		Resolution: layer_registry.Medium,
		Position:   func() time.Time { return position },
		Interval:   time.Millisecond,
	})
	waitDone(t, p)

	assert.Equal(t, 23, p.Count())
	assert.Equal(t, 23, cache.Len())
	assert.True(t, cache.Has(provider_cache.Key(l, "2024-03-01T11:50:00Z", layer_registry.Medium)))
	assert.True(t, cache.Has(provider_cache.Key(l, "2024-03-01T08:10:00Z", layer_registry.Medium)))
	assert.False(t, cache.Has(provider_cache.Key(l, "2024-03-01T12:00:00Z", layer_registry.Medium)))
	assert.False(t, cache.Has(provider_cache.Key(l, "2024-03-01T08:00:00Z", layer_registry.Medium)))
}

func TestDailyRunWalksBackDays(t *testing.T) {
	cache := newCache()
	l := getLayer(t, "modis_aqua")

	var counts []int
	p := Start(context.Background(), Options{
		Cache:      cache,
		Layer:      l,
		Resolution: layer_registry.Low,
		Position:   func() time.Time { return position },
		Interval:   time.Millisecond,
		OnCount:    func(n int) { counts = append(counts, n) },
	})
	waitDone(t, p)

	assert.Equal(t, 29, cache.Len())
	assert.True(t, cache.Has(provider_cache.Key(l, "2024-02-29", layer_registry.Low)))
	assert.True(t, cache.Has(provider_cache.Key(l, "2024-02-01", layer_registry.Low)))
	require.Len(t, counts, 29)
	assert.Equal(t, 1, counts[0])
	assert.Equal(t, 29, counts[28])
}

func TestStaticLayerDoesNothing(t *testing.T) {
	cache := newCache()

	p := Start(context.Background(), Options{
		Cache:      cache,
		Layer:      getLayer(t, "lro_wac_global"),
		Resolution: layer_registry.High,
		Position:   func() time.Time { return position },
		Interval:   time.Millisecond,
	})
	waitDone(t, p)

	assert.Zero(t, cache.Len())
	assert.Zero(t, p.Count())
}

func TestStopPreventsFurtherInsertions(t *testing.T) {
	cache := newCache()

	p := Start(context.Background(), Options{
		Cache:      cache,
		Layer:      getLayer(t, "goes_west_geocolor"),
		Resolution: layer_registry.Medium,
		Position:   func() time.Time { return position },
		Interval:   5 * time.Millisecond,
	})
	require.Eventually(t, func() bool { return cache.Len() >= 2 }, 2*time.Second, time.Millisecond)

	p.Stop()
	stoppedAt := cache.Len()
	assert.Less(t, stoppedAt, 23)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stoppedAt, cache.Len())

	// Stopping twice is fine.
	p.Stop()
}

func TestParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Start(ctx, Options{
		Cache:      newCache(),
		Layer:      getLayer(t, "modis_terra"),
		Resolution: layer_registry.Medium,
		Position:   func() time.Time { return position },
		Interval:   time.Hour,
	})
	cancel()
	waitDone(t, p)
	assert.Zero(t, p.Count())
}
