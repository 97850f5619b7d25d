package preloader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stellarview/internal/layer_registry"
	"stellarview/internal/metrics"
	"stellarview/internal/provider_cache"
	"stellarview/internal/time_format"
)

const DefaultInterval = 500 * time.Millisecond

// MaxSteps bounds a run. Steps are numbered from 1 and a run stops once the
// index reaches the bound, so a ten-minute layer gets 23 insertions.
func MaxSteps(c time_format.Class) int {
	switch c {
	case time_format.TenMinute:
		return 24
	case time_format.Daily:
		return 30
	default:
		return 0
	}
}

type Options struct {
	Cache      *provider_cache.Cache
	Layer      layer_registry.LayerConfig
	Resolution layer_registry.Resolution
	// Position reports where the globe clock currently is.
	Position func() time.Time
	Interval time.Duration
	// OnCount is called from the preloader goroutine and must not block.
	OnCount func(int)
	Logger  *zap.Logger
}

// Preloader walks backward from the clock position one step per interval,
// filling the provider cache.
type Preloader struct {
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}
	count  atomic.Int32
	stop   sync.Once
}

func Start(ctx context.Context, opts Options) *Preloader {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Preloader{
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

func (p *Preloader) run(ctx context.Context) {
	defer close(p.done)

	maxSteps := MaxSteps(p.opts.Layer.Temporal)
	if maxSteps == 0 {
		return
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for index := 1; ; index++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if index >= maxSteps {
			p.opts.Logger.Debug("Preload finished",
				zap.String("layer", p.opts.Layer.Key),
				zap.Int("steps", index-1))
			return
		}
		// A tick and a cancel can both be ready; cancel wins.
		if ctx.Err() != nil {
			return
		}

		at := time_format.Back(p.opts.Position(), p.opts.Layer.Temporal, index)
		timeString, _ := time_format.Format(at, p.opts.Layer.Temporal)
		p.opts.Cache.GetOrCreate(p.opts.Layer, timeString, p.opts.Resolution)

		p.count.Store(int32(index))
		metrics.PreloadSteps.WithLabelValues(string(p.opts.Layer.Temporal)).Inc()
		if p.opts.OnCount != nil {
			p.opts.OnCount(index)
		}
	}
}

// Stop cancels the run and returns once the goroutine has exited, so no cache
// insertion can follow it.
func (p *Preloader) Stop() {
	p.stop.Do(p.cancel)
	<-p.done
}

// Count is the last step index inserted by this run.
func (p *Preloader) Count() int {
	return int(p.count.Load())
}
