package viewer_session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stellarview/internal/analytics"
	"stellarview/internal/clock"
	"stellarview/internal/layer_registry"
	"stellarview/internal/layer_swapper"
	"stellarview/internal/metrics"
	"stellarview/internal/preloader"
	"stellarview/internal/provider_cache"
	"stellarview/internal/time_format"
)

// LayerAlpha is the opacity every active imagery layer is added with.
const LayerAlpha = 0.8

const DefaultSwitchCooldown = 7 * time.Second

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
	// ErrGlobeGone may be returned by a Globe whose viewer was destroyed.
	ErrGlobeGone = errors.New("globe destroyed")
)

// Globe is the browser-side 3D viewer. It owns the imagery layer collection;
// the session only tells it what to add and remove.
type Globe interface {
	AddLayer(id string, p *provider_cache.Provider, alpha float64) error
	RemoveLayer(id string) error
	SetClock(t time.Time) error
}

type Status struct {
	SessionID   string    `json:"session_id"`
	Planet      string    `json:"planet"`
	Layer       string    `json:"layer,omitempty"`
	Resolution  string    `json:"resolution"`
	Temporal    string    `json:"temporal,omitempty"`
	CurrentTime string    `json:"current_time,omitempty"`
	Position    time.Time `json:"position"`
	Preloaded   int       `json:"preloaded"`
	Providers   int       `json:"providers"`
	Phase       string    `json:"phase"`
	Switching   bool      `json:"switching"`
	ActiveLayer string    `json:"active_layer,omitempty"`
	Advisory    string    `json:"advisory,omitempty"`
}

type Options struct {
	Registry       *layer_registry.Registry
	Factory        provider_cache.Factory
	Clock          clock.Clock
	Tracker        analytics.Tracker
	Logger         *zap.Logger
	Planet         layer_registry.Planet
	Layer          string
	Resolution     layer_registry.Resolution
	PreloadEvery   time.Duration
	SwitchCooldown time.Duration
	// OnStatus is called after every state change, from the session loop or
	// the preloader goroutine. It must not block.
	OnStatus func(Status)
}

type command struct {
	fn    func() error
	reply chan error
}

// Session is the state of one mounted globe view. All mutation happens on a
// single loop goroutine; public methods hand closures to it.
type Session struct {
	id        string
	opts      Options
	globe     Globe
	cache     *provider_cache.Cache
	logger    *zap.Logger
	commands  chan command
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop.
	planet      layer_registry.Planet
	layer       layer_registry.LayerConfig
	hasLayer    bool
	resolution  layer_registry.Resolution
	state       layer_swapper.State
	active      string
	switching   bool
	positioned  bool
	loader      *preloader.Preloader
	cooldown    *time.Timer
	cooldownGen int

	position atomic.Int64
	// running mirrors loader for Status, which is called off the loop.
	running atomic.Pointer[preloader.Preloader]

	statusMu sync.Mutex
	status   Status
}

func New(ctx context.Context, globe Globe, opts Options) (*Session, error) {
	if opts.Registry == nil {
		opts.Registry = layer_registry.New()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Factory == nil {
		opts.Factory = provider_cache.NewFactory("", opts.Clock)
	}
	if opts.Tracker == nil {
		opts.Tracker = analytics.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Planet == "" {
		opts.Planet = layer_registry.Earth
	}
	if opts.Resolution == "" {
		opts.Resolution = layer_registry.Medium
	}
	if opts.SwitchCooldown <= 0 {
		opts.SwitchCooldown = DefaultSwitchCooldown
	}

	id := uuid.New().String()
	s := &Session{
		id:         id,
		opts:       opts,
		globe:      globe,
		cache:      provider_cache.New(opts.Factory),
		logger:     opts.Logger.With(zap.String("session_id", id)),
		commands:   make(chan command),
		done:       make(chan struct{}),
		planet:     opts.Planet,
		resolution: opts.Resolution,
	}

	if opts.Layer != "" {
		l, err := opts.Registry.Get(opts.Layer)
		if err != nil {
			return nil, err
		}
		s.layer, s.hasLayer, s.planet = l, true, l.Planet
	} else {
		s.layer, s.hasLayer = opts.Registry.DefaultFor(s.planet)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.publish()

	metrics.ActiveSessions.Inc()
	go s.loop(ctx)

	s.logger.Info("Viewer session opened",
		zap.String("planet", string(s.planet)),
		zap.String("layer", s.layer.Key),
		zap.String("resolution", string(s.resolution)))
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	defer metrics.ActiveSessions.Dec()

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return
		case cmd := <-s.commands:
			err := cmd.fn()
			s.publish()
			cmd.reply <- err
		}
	}
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the loop always replies.
	return <-cmd.reply
}

// Tick feeds one globe clock tick carrying the clock's current instant.
func (s *Session) Tick(ctx context.Context, at time.Time) error {
	return s.do(ctx, func() error {
		s.tick(at)
		return nil
	})
}

func (s *Session) tick(at time.Time) {
	s.setPosition(at)
	if !s.hasLayer {
		return
	}

	timeString, _ := time_format.Format(at, s.layer.Temporal)
	s.apply(layer_swapper.Tick{At: s.opts.Clock.Now(), Time: timeString})
	s.startPreloader()
}

// JumpToNow moves the globe clock to wall-clock now.
func (s *Session) JumpToNow(ctx context.Context) error {
	return s.do(ctx, func() error {
		now := s.opts.Clock.Now().UTC()
		if err := s.globe.SetClock(now); err != nil {
			return fmt.Errorf("failed to set globe clock: %w", err)
		}
		s.tick(now)
		return nil
	})
}

// SwitchLayer drops every cached provider and holds clock-driven swaps for
// the cool-down, after which the cache is cleared again and preloading
// resumes for the new layer.
func (s *Session) SwitchLayer(ctx context.Context, key string) error {
	return s.do(ctx, func() error {
		l, err := s.opts.Registry.Get(key)
		if err != nil {
			return err
		}

		s.stopPreloader()
		s.cache.Clear()
		s.apply(layer_swapper.Reset{})
		s.apply(layer_swapper.Hold{})
		s.switching = true

		s.removeActive()
		s.layer, s.hasLayer, s.planet = l, true, l.Planet
		s.forceSwap()
		s.armCooldown()

		s.opts.Tracker.Track(s.id, analytics.EventLayerSwitched, map[string]interface{}{
			"layer":    l.Key,
			"temporal": string(l.Temporal),
		})
		s.logger.Info("Layer switched", zap.String("layer", l.Key))
		return nil
	})
}

func (s *Session) SetResolution(ctx context.Context, res layer_registry.Resolution) error {
	return s.do(ctx, func() error {
		s.stopPreloader()
		s.cache.Clear()
		s.apply(layer_swapper.Reset{})
		s.removeActive()
		s.resolution = res

		if !s.switching {
			s.forceSwap()
			s.startPreloader()
		}

		s.opts.Tracker.Track(s.id, analytics.EventResolutionSwitched, map[string]interface{}{
			"resolution": string(res),
		})
		s.logger.Info("Resolution switched", zap.String("resolution", string(res)))
		return nil
	})
}

// SwitchPlanet tears the view down to the planet's default layer. Planets
// without imagery layers end up with none.
func (s *Session) SwitchPlanet(ctx context.Context, planet layer_registry.Planet) error {
	return s.do(ctx, func() error {
		s.stopPreloader()
		s.cancelCooldown()
		s.cache.Clear()
		s.removeActive()
		s.state = layer_swapper.State{}
		s.switching = false

		s.planet = planet
		s.layer, s.hasLayer = s.opts.Registry.DefaultFor(planet)
		if s.hasLayer {
			s.forceSwap()
			s.startPreloader()
		}

		s.opts.Tracker.Track(s.id, analytics.EventPlanetSwitched, map[string]interface{}{
			"planet": string(planet),
		})
		s.logger.Info("Planet switched", zap.String("planet", string(planet)), zap.String("layer", s.layer.Key))
		return nil
	})
}

// Close stops the preloader and cool-down and removes the active layer. It
// is safe to call more than once and after the globe is gone.
func (s *Session) Close() {
	s.closeOnce.Do(s.cancel)
	<-s.done
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Status() Status {
	s.statusMu.Lock()
	st := s.status
	s.statusMu.Unlock()

	if l := s.running.Load(); l != nil {
		st.Preloaded = l.Count()
	}
	st.Providers = s.cache.Len()
	return st
}

func (s *Session) teardown() {
	s.cancelCooldown()
	s.stopPreloader()
	s.removeActive()
	s.cache.Clear()
	s.logger.Info("Viewer session closed")
}

func (s *Session) apply(e layer_swapper.Event) {
	var effects []layer_swapper.Effect
	s.state, effects = layer_swapper.Update(s.state, e)

	for _, effect := range effects {
		if swap, ok := effect.(layer_swapper.Swap); ok {
			s.swap(swap.Time)
		}
	}
}

func (s *Session) forceSwap() {
	if !s.hasLayer || !s.positioned {
		return
	}
	timeString, _ := time_format.Format(s.currentPosition(), s.layer.Temporal)
	s.apply(layer_swapper.Force{At: s.opts.Clock.Now(), Time: timeString})
}

func (s *Session) swap(timeString string) {
	s.removeActive()

	p := s.cache.GetOrCreate(s.layer, timeString, s.resolution)
	id := uuid.New().String()
	if err := s.globe.AddLayer(id, p, LayerAlpha); err != nil {
		s.logger.Warn("Failed to add imagery layer", zap.String("provider", p.Key), zap.Error(err))
		// Nothing is shown, so the next tick with this time must retry.
		s.apply(layer_swapper.Reset{})
		return
	}
	s.active = id
	metrics.LayerSwaps.WithLabelValues(s.layer.Key).Inc()
	s.logger.Debug("Swapped imagery layer", zap.String("provider", p.Key), zap.String("layer_id", id))
}

func (s *Session) removeActive() {
	if s.active == "" {
		return
	}
	if err := s.globe.RemoveLayer(s.active); err != nil {
		s.logger.Debug("Ignoring layer removal failure", zap.String("layer_id", s.active), zap.Error(err))
	}
	s.active = ""
}

func (s *Session) startPreloader() {
	if s.loader != nil || s.switching || !s.hasLayer || !s.positioned {
		return
	}
	s.loader = preloader.Start(context.Background(), preloader.Options{
		Cache:      s.cache,
		Layer:      s.layer,
		Resolution: s.resolution,
		Position:   s.currentPosition,
		Interval:   s.opts.PreloadEvery,
		OnCount:    func(int) { s.notify() },
		Logger:     s.logger,
	})
	s.running.Store(s.loader)
}

func (s *Session) stopPreloader() {
	if s.loader == nil {
		return
	}
	s.loader.Stop()
	s.loader = nil
	s.running.Store(nil)
}

func (s *Session) armCooldown() {
	s.cancelCooldown()
	gen := s.cooldownGen
	s.cooldown = time.AfterFunc(s.opts.SwitchCooldown, func() {
		// Sent without a caller context; the loop may already be gone.
		_ = s.do(context.Background(), func() error {
			if gen != s.cooldownGen {
				return nil
			}
			s.endCooldown()
			return nil
		})
	})
}

func (s *Session) cancelCooldown() {
	s.cooldownGen++
	if s.cooldown != nil {
		s.cooldown.Stop()
		s.cooldown = nil
	}
}

func (s *Session) endCooldown() {
	s.cooldown = nil
	s.cache.Clear()
	s.switching = false
	s.apply(layer_swapper.Release{})
	s.startPreloader()
	s.logger.Debug("Layer switch settled", zap.String("layer", s.layer.Key))
}

func (s *Session) setPosition(at time.Time) {
	s.position.Store(at.UnixNano())
	s.positioned = true
}

func (s *Session) currentPosition() time.Time {
	return time.Unix(0, s.position.Load()).UTC()
}

// publish snapshots loop-owned state for Status. Called from the loop only.
func (s *Session) publish() {
	st := Status{
		SessionID:   s.id,
		Planet:      string(s.planet),
		Resolution:  string(s.resolution),
		CurrentTime: s.state.Current,
		Phase:       s.state.Phase.String(),
		Switching:   s.switching,
		ActiveLayer: s.active,
	}
	if s.positioned {
		st.Position = s.currentPosition()
	}
	if s.hasLayer {
		st.Layer = s.layer.Key
		st.Temporal = string(s.layer.Temporal)
		now := s.opts.Clock.Now()
		if s.positioned && time_format.IsFuture(st.Position, now, s.layer.Temporal) {
			st.Advisory = time_format.Advisory(now)
		}
	}

	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(s.Status())
	}
}
