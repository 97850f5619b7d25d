package config

import (
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	DataDir       string `env:"DATA_DIR" envDefault:"/data"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	CacheType        string        `env:"CACHE" envDefault:"memory"`
	CacheMemoryTiles int           `env:"CACHE_MEMORY_TILES" envDefault:"2000"`
	CacheFileDir     string        `env:"CACHE_FILE_DIR"`
	CacheSQLitePath  string        `env:"CACHE_SQLITE_PATH"`
	Redis            Redis         `envPrefix:"REDIS_"`
	LabelsStore      string        `env:"LABELS_STORE" envDefault:"sqlite"`
	LabelsSQLitePath string        `env:"LABELS_SQLITE_PATH"`
	UpstreamTimeout  time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UpstreamWorkers  int64         `env:"UPSTREAM_CONCURRENCY" envDefault:"8"`

	VipsMaxCacheMB  int   `env:"VIPS_MAX_CACHE_MB" envDefault:"256"`
	VipsConcurrency int   `env:"VIPS_CONCURRENCY" envDefault:"1"`
	ConvertMaxBytes int64 `env:"CONVERT_MAX_BYTES" envDefault:"1073741824"` // 1GB
	ConvertMaxPixel int64 `env:"CONVERT_MAX_PIXELS" envDefault:"400000000"`
	WarmupLevels    int   `env:"WARMUP_LEVELS" envDefault:"1"`
	WarmupWorkers   int   `env:"WARMUP_WORKERS" envDefault:"1"`

	PreloadInterval     time.Duration `env:"PRELOAD_INTERVAL" envDefault:"500ms"`
	LayerSwitchCooldown time.Duration `env:"LAYER_SWITCH_COOLDOWN" envDefault:"7s"`
	DefaultLayer        string        `env:"DEFAULT_LAYER" envDefault:"goes_east_geocolor"`
	DefaultResolution   string        `env:"DEFAULT_RESOLUTION" envDefault:"medium"`
	CapabilitiesURL     string        `env:"CAPABILITIES_URL" envDefault:"https://gibs.earthdata.nasa.gov/wmts/epsg3857/best/wmts.cgi?SERVICE=WMTS&REQUEST=GetCapabilities"`
	WarmupCapabilities  bool          `env:"WARMUP_CAPABILITIES" envDefault:"false"`

	CesiumIonToken  string `env:"CESIUM_ION_TOKEN"`
	PosthogAPIKey   string `env:"POSTHOG_API_KEY"`
	PosthogEndpoint string `env:"POSTHOG_ENDPOINT" envDefault:"https://us.i.posthog.com"`

	Telemetry Telemetry `envPrefix:"TELEMETRY_"`
}

type Redis struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"24h"`
}

type Telemetry struct {
	Enabled        bool   `env:"ENABLED" envDefault:"false"`
	ServiceName    string `env:"SERVICE_NAME" envDefault:"stellarview"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
	Environment    string `env:"ENVIRONMENT" envDefault:"production"`
	OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	// Paths below default relative to DATA_DIR, which is only known after parsing.
	if cfg.CacheFileDir == "" {
		cfg.CacheFileDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.CacheSQLitePath == "" {
		cfg.CacheSQLitePath = filepath.Join(cfg.DataDir, "tiles.db")
	}
	if cfg.LabelsSQLitePath == "" {
		cfg.LabelsSQLitePath = filepath.Join(cfg.DataDir, "labels.db")
	}

	return &cfg, nil
}

// ImagesDir holds imported deep-zoom source images and their JSON sidecars.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "images")
}

func (c *Config) PublicBase() string {
	return strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
}

func (c *Config) AnalyticsEnabled() bool {
	return strings.TrimSpace(c.PosthogAPIKey) != ""
}
