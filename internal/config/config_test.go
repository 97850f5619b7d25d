package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/stellar")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.CacheType)
	assert.Equal(t, 500*time.Millisecond, cfg.PreloadInterval)
	assert.Equal(t, 7*time.Second, cfg.LayerSwitchCooldown)
	assert.Equal(t, "goes_east_geocolor", cfg.DefaultLayer)
	assert.Equal(t, "medium", cfg.DefaultResolution)
	assert.Equal(t, filepath.Join("/srv/stellar", "cache"), cfg.CacheFileDir)
	assert.Equal(t, filepath.Join("/srv/stellar", "labels.db"), cfg.LabelsSQLitePath)
	assert.Equal(t, filepath.Join("/srv/stellar", "images"), cfg.ImagesDir())
	assert.False(t, cfg.AnalyticsEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_TTL", "1h")
	t.Setenv("PRELOAD_INTERVAL", "250ms")
	t.Setenv("PUBLIC_BASE_URL", "https://stellar.example.org/ ")
	t.Setenv("POSTHOG_API_KEY", "phc_test")
	t.Setenv("TELEMETRY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "redis", cfg.CacheType)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.PreloadInterval)
	assert.Equal(t, "https://stellar.example.org", cfg.PublicBase())
	assert.True(t, cfg.AnalyticsEnabled())
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("PRELOAD_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
