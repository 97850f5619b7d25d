package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stellarview/internal/analytics"
	"stellarview/internal/cache"
	"stellarview/internal/clock"
	"stellarview/internal/config"
	"stellarview/internal/convert"
	httphandlers "stellarview/internal/http"
	"stellarview/internal/image_list"
	"stellarview/internal/image_renderer"
	"stellarview/internal/labels"
	"stellarview/internal/layer_registry"
	"stellarview/internal/logger"
	"stellarview/internal/provider_cache"
	"stellarview/internal/storage"
	"stellarview/internal/telemetry"
	"stellarview/internal/tile_proxy"
	"stellarview/internal/viewer_session"
	"stellarview/internal/wmts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Fatal("Failed to initialize telemetry", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Error("Failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	shutdownVips := image_renderer.StartVips(cfg.VipsMaxCacheMB, cfg.VipsConcurrency, log)
	defer shutdownVips()

	log.Info("Starting Stellarview server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.String("cache", cfg.CacheType),
		zap.String("labels_store", cfg.LabelsStore),
	)

	var redisClient *redis.Client
	if cfg.CacheType == "redis" || cfg.LabelsStore == "redis" {
		redisClient, err = storage.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	tileCache, err := cache.NewCache(ctx, cache.Options{
		Type:        cfg.CacheType,
		MemoryTiles: cfg.CacheMemoryTiles,
		FileDir:     cfg.CacheFileDir,
		SQLitePath:  cfg.CacheSQLitePath,
		Redis:       redisClient,
		RedisTTL:    cfg.Redis.TTL,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer tileCache.Close()

	labelStore, err := labels.NewStore(ctx, labels.Options{
		Type:       cfg.LabelsStore,
		SQLitePath: cfg.LabelsSQLitePath,
		Redis:      redisClient,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize label store", zap.Error(err))
	}
	defer labelStore.Close()

	tracker, err := analytics.New(cfg.PosthogAPIKey, cfg.PosthogEndpoint, log)
	if err != nil {
		log.Fatal("Failed to initialize analytics", zap.Error(err))
	}
	defer tracker.Close()

	upstream := &http.Client{Timeout: cfg.UpstreamTimeout}
	clk := clock.System{}
	registry := layer_registry.New()
	factory := provider_cache.NewFactory(cfg.PublicBase(), clk)

	defaultResolution, err := layer_registry.ParseResolution(cfg.DefaultResolution)
	if err != nil {
		log.Fatal("Invalid DEFAULT_RESOLUTION", zap.Error(err))
	}
	if _, err := registry.Get(cfg.DefaultLayer); err != nil {
		log.Fatal("Invalid DEFAULT_LAYER", zap.Error(err))
	}

	scanner := image_list.New(cfg.ImagesDir(), log)
	if err := scanner.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}
	renderer := image_renderer.New(scanner, tileCache, log)

	// Large remote images get the full timeout budget of the converter, not
	// the per-tile one.
	downloader := image_list.NewDownloader(&http.Client{}, cfg.ConvertMaxBytes, 2, log)

	catalog := wmts.NewCatalog(upstream, cfg.CapabilitiesURL, clk, log)
	sessions := viewer_session.NewManager(viewer_session.Options{
		Registry:       registry,
		Factory:        factory,
		Clock:          clk,
		Tracker:        tracker,
		Logger:         log,
		Layer:          cfg.DefaultLayer,
		Resolution:     defaultResolution,
		PreloadEvery:   cfg.PreloadInterval,
		SwitchCooldown: cfg.LayerSwitchCooldown,
	}, log)
	defer sessions.CloseAll()

	handlers := httphandlers.New(httphandlers.Deps{
		Config:     cfg,
		Logger:     log,
		Clock:      clk,
		Registry:   registry,
		Factory:    factory,
		Catalog:    catalog,
		Proxy:      tile_proxy.New(registry, tileCache, upstream, cfg.UpstreamWorkers, log),
		Scanner:    scanner,
		Renderer:   renderer,
		Downloader: downloader,
		Converter:  convert.New(downloader, cfg.ConvertMaxPixel, tracker, log),
		Labels:     labelStore,
		Sessions:   sessions,
		Tracker:    tracker,
	})
	router := httphandlers.NewRouter(handlers, cfg.Telemetry.Enabled)

	if cfg.WarmupCapabilities {
		go func() {
			if _, err := catalog.Capabilities(ctx); err != nil {
				log.Warn("Capabilities warmup failed", zap.Error(err))
			}
		}()
	}
	if cfg.WarmupLevels > 0 {
		go func() {
			if err := renderer.Warmup(ctx, cfg.WarmupLevels, cfg.WarmupWorkers); err != nil {
				log.Info("Tile warmup stopped", zap.Error(err))
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	<-ctx.Done()

	log.Info("Shutting down server...", zap.Int("open_sessions", sessions.Len()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
