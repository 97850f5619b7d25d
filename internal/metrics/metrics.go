package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_cache_hits_total",
		Help: "Total number of tile provider cache hits",
	})

	ProviderCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_cache_misses_total",
		Help: "Total number of tile providers constructed on a cache miss",
	})

	ProviderCacheClears = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_cache_clears_total",
		Help: "Total number of wholesale provider cache invalidations",
	})

	PreloadSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_steps_total",
		Help: "Total number of preloader steps by temporal class",
	}, []string{"temporal"})

	LayerSwaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layer_swaps_total",
		Help: "Total number of active imagery layer swaps",
	}, []string{"layer"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_sessions_active",
		Help: "Number of open viewer sessions",
	})

	TileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_requests_total",
		Help: "Total number of proxied tile requests",
	}, []string{"source"})

	TileRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_rejected_total",
		Help: "Tile requests rejected before reaching upstream",
	}, []string{"reason"})

	TileUpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiles_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	TileUpstreamStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_upstream_responses_total",
		Help: "Upstream tile responses by status code",
	}, []string{"code"})

	ImageConversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_conversions_total",
		Help: "Remote image to PNG conversions by outcome",
	}, []string{"outcome"})

	ImageConversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_conversion_duration_seconds",
		Help:    "Duration of remote image conversions in seconds",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
