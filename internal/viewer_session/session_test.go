package viewer_session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stellarview/internal/clock"
	"stellarview/internal/layer_registry"
	"stellarview/internal/provider_cache"
)

type fakeGlobe struct {
	mu        sync.Mutex
	layers    map[string]*provider_cache.Provider
	added     []*provider_cache.Provider
	alphas    []float64
	clockAt   time.Time
	destroyed bool
	failAdd   error
}

func newFakeGlobe() *fakeGlobe {
	return &fakeGlobe{layers: make(map[string]*provider_cache.Provider)}
}

func (g *fakeGlobe) AddLayer(id string, p *provider_cache.Provider, alpha float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return ErrGlobeGone
	}
	if g.failAdd != nil {
		return g.failAdd
	}
	g.layers[id] = p
	g.added = append(g.added, p)
	g.alphas = append(g.alphas, alpha)
	return nil
}

func (g *fakeGlobe) RemoveLayer(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return ErrGlobeGone
	}
	delete(g.layers, id)
	return nil
}

func (g *fakeGlobe) SetClock(t time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clockAt = t
	return nil
}

func (g *fakeGlobe) destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.destroyed = true
}

func (g *fakeGlobe) setFailAdd(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAdd = err
}

func (g *fakeGlobe) visible() []*provider_cache.Provider {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*provider_cache.Provider, 0, len(g.layers))
	for _, p := range g.layers {
		out = append(out, p)
	}
	return out
}

func (g *fakeGlobe) addCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.added)
}

var clockStart = time.Date(2024, 3, 1, 12, 7, 33, 0, time.UTC)

type harness struct {
	session *Session
	globe   *fakeGlobe
	wall    *clock.Manual
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		globe: newFakeGlobe(),
		wall:  clock.NewManual(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	}
	opts.Clock = h.wall
	opts.Logger = zap.NewNop()
	if opts.PreloadEvery == 0 {
		opts.PreloadEvery = time.Hour
	}
	if opts.SwitchCooldown == 0 {
		opts.SwitchCooldown = time.Hour
	}

	s, err := New(context.Background(), h.globe, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	h.session = s
	return h
}

func (h *harness) tick(t *testing.T, at time.Time, wallStep time.Duration) {
	t.Helper()
	h.wall.Advance(wallStep)
	require.NoError(t, h.session.Tick(context.Background(), at))
}

func TestFirstTickAddsLayer(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)

	visible := h.globe.visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "2024-03-01T12:00:00Z", visible[0].Time)
	assert.Equal(t, "goes_east_geocolor", visible[0].LayerKey)
	assert.Equal(t, 5, visible[0].MaxLevel)
	assert.Equal(t, []float64{LayerAlpha}, h.globe.alphas)

	st := h.session.Status()
	assert.Equal(t, "2024-03-01T12:00:00Z", st.CurrentTime)
	assert.Equal(t, "tracking", st.Phase)
	assert.NotEmpty(t, st.ActiveLayer)
	assert.Equal(t, 1, st.Providers)
}

func TestSameTimeStringDoesNotSwapAgain(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)
	h.tick(t, clockStart.Add(time.Minute), time.Second)
	h.tick(t, clockStart.Add(2*time.Minute), time.Second)

	assert.Equal(t, 1, h.globe.addCount())
	assert.Len(t, h.globe.visible(), 1)
}

func TestNewTimeSwapsAndRemovesPrevious(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)
	h.tick(t, clockStart.Add(10*time.Minute), time.Second)

	assert.Equal(t, 2, h.globe.addCount())
	visible := h.globe.visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "2024-03-01T12:10:00Z", visible[0].Time)
}

func TestFastScrubIsThrottled(t *testing.T) {
	h := newHarness(t, Options{})
	at := clockStart
	for i := 0; i < 50; i++ {
		h.tick(t, at, 20*time.Millisecond)
		at = at.Add(10 * time.Minute)
	}

	// One second of scrubbing: the first swap plus at most one per 500ms.
	assert.LessOrEqual(t, h.globe.addCount(), 3)
	assert.Equal(t, "jumping", h.session.Status().Phase)
}

func TestFailedAddIsRetriedForSameTime(t *testing.T) {
	h := newHarness(t, Options{})
	h.globe.setFailAdd(errors.New("viewer busy"))
	h.tick(t, clockStart, time.Second)
	assert.Empty(t, h.globe.visible())

	h.globe.setFailAdd(nil)
	h.tick(t, clockStart.Add(time.Minute), time.Second)

	visible := h.globe.visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "2024-03-01T12:00:00Z", visible[0].Time)
}

func TestPreloadedCountFollowsRunningPreloader(t *testing.T) {
	h := newHarness(t, Options{PreloadEvery: time.Millisecond})
	h.tick(t, clockStart, time.Second)

	require.Eventually(t, func() bool {
		return h.session.Status().Preloaded == 23
	}, 5*time.Second, 5*time.Millisecond)

	// The cool-down holds preloading, so the count stays reset.
	require.NoError(t, h.session.SwitchLayer(context.Background(), "modis_aqua"))
	assert.Zero(t, h.session.Status().Preloaded)
}

func TestSwitchLayerStopsPreloadInFlight(t *testing.T) {
	h := newHarness(t, Options{PreloadEvery: 2 * time.Millisecond})
	h.tick(t, clockStart, time.Second)

	require.Eventually(t, func() bool {
		return h.session.Status().Providers >= 3
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, h.session.SwitchLayer(context.Background(), "modis_terra"))

	st := h.session.Status()
	assert.True(t, st.Switching)
	assert.Equal(t, "modis_terra", st.Layer)
	assert.Zero(t, st.Preloaded)
	// Only the provider for the newly shown layer.
	assert.Equal(t, 1, st.Providers)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.session.Status().Providers)

	visible := h.globe.visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "modis_terra", visible[0].LayerKey)
	assert.Equal(t, "2024-03-01", visible[0].Time)
}

func TestSwitchingHoldsClockSwaps(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)
	require.NoError(t, h.session.SwitchLayer(context.Background(), "modis_aqua"))
	adds := h.globe.addCount()

	h.tick(t, clockStart.Add(48*time.Hour), time.Second)
	assert.Equal(t, adds, h.globe.addCount())
	assert.Equal(t, "2024-03-03", h.session.Status().CurrentTime)
}

func TestCooldownResumesPreloading(t *testing.T) {
	h := newHarness(t, Options{
		PreloadEvery:   time.Millisecond,
		SwitchCooldown: 20 * time.Millisecond,
	})
	h.tick(t, clockStart, time.Second)
	require.NoError(t, h.session.SwitchLayer(context.Background(), "modis_terra"))

	require.Eventually(t, func() bool {
		st := h.session.Status()
		return !st.Switching && st.Preloaded == 29
	}, 5*time.Second, 5*time.Millisecond)

	// After the cool-down clock ticks swap again.
	h.tick(t, clockStart.Add(24*time.Hour), time.Second)
	visible := h.globe.visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "2024-03-02", visible[0].Time)
}

func TestSetResolution(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)

	require.NoError(t, h.session.SetResolution(context.Background(), layer_registry.Potato))

	assert.Equal(t, 2, h.globe.addCount())
	visible := h.globe.visible()
	require.Len(t, visible, 1)
	assert.Equal(t, 1, visible[0].MaxLevel)
	assert.Equal(t, layer_registry.Potato, visible[0].Resolution)
	assert.Equal(t, "potato", h.session.Status().Resolution)
}

func TestSwitchPlanet(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)

	require.NoError(t, h.session.SwitchPlanet(context.Background(), layer_registry.Moon))
	visible := h.globe.visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "lro_wac_global", visible[0].LayerKey)
	assert.Empty(t, visible[0].Time)

	require.NoError(t, h.session.SwitchPlanet(context.Background(), layer_registry.Mars))
	assert.Empty(t, h.globe.visible())
	st := h.session.Status()
	assert.Equal(t, "mars", st.Planet)
	assert.Empty(t, st.Layer)

	// Ticks on a planet without imagery are harmless.
	h.tick(t, clockStart.Add(time.Hour), time.Second)
	assert.Empty(t, h.globe.visible())
}

func TestUnknownLayer(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.session.SwitchLayer(context.Background(), "nope")
	assert.ErrorIs(t, err, layer_registry.ErrUnknownLayer)
}

func TestJumpToNow(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)
	h.wall.Advance(time.Second)

	require.NoError(t, h.session.JumpToNow(context.Background()))
	assert.Equal(t, h.wall.Now(), h.globe.clockAt)
	assert.Equal(t, "2024-06-01T00:00:00Z", h.session.Status().CurrentTime)
}

func TestFutureAdvisory(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)
	assert.Empty(t, h.session.Status().Advisory)

	h.tick(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	assert.Contains(t, h.session.Status().Advisory, "latest available data is from 2024-06-01 at 00:00 UTC")
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{PreloadEvery: time.Millisecond})
	h.tick(t, clockStart, time.Second)

	h.session.Close()
	h.session.Close()

	assert.Empty(t, h.globe.visible())
	assert.ErrorIs(t, h.session.Tick(context.Background(), clockStart), ErrSessionClosed)
}

func TestCloseAfterGlobeDestroyed(t *testing.T) {
	h := newHarness(t, Options{})
	h.tick(t, clockStart, time.Second)
	h.globe.destroy()

	assert.NotPanics(t, h.session.Close)
}

func TestManager(t *testing.T) {
	m := NewManager(Options{
		Clock:          clock.NewManual(clockStart),
		PreloadEvery:   time.Hour,
		SwitchCooldown: time.Hour,
	}, zap.NewNop())

	s, err := m.Open(context.Background(), newFakeGlobe(), Options{Planet: layer_registry.Moon})
	require.NoError(t, err)

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "lro_wac_global", list[0].Layer)

	_, err = m.Open(context.Background(), newFakeGlobe(), Options{Layer: "nope"})
	assert.ErrorIs(t, err, layer_registry.ErrUnknownLayer)

	m.CloseAll()
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, time.Millisecond)
}
