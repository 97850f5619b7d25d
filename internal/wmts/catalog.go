package wmts

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"stellarview/internal/clock"
)

const DefaultRefreshInterval = time.Hour

// Catalog keeps the last fetched capabilities document and refetches it once
// it is older than the refresh interval.
type Catalog struct {
	client  *http.Client
	url     string
	refresh time.Duration
	clock   clock.Clock
	logger  *zap.Logger
	group   singleflight.Group

	mu        sync.RWMutex
	caps      *Capabilities
	fetchedAt time.Time
}

func NewCatalog(client *http.Client, url string, clk clock.Clock, logger *zap.Logger) *Catalog {
	return &Catalog{
		client:  client,
		url:     url,
		refresh: DefaultRefreshInterval,
		clock:   clk,
		logger:  logger,
	}
}

func (c *Catalog) Capabilities(ctx context.Context) (*Capabilities, error) {
	c.mu.RLock()
	caps, fetchedAt := c.caps, c.fetchedAt
	c.mu.RUnlock()

	if caps != nil && c.clock.Now().Sub(fetchedAt) < c.refresh {
		return caps, nil
	}

	v, err, _ := c.group.Do("capabilities", func() (interface{}, error) {
		start := time.Now()
		fresh, err := FetchCapabilities(ctx, c.client, c.url)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.caps, c.fetchedAt = fresh, c.clock.Now()
		c.mu.Unlock()

		c.logger.Info("Fetched WMTS capabilities",
			zap.Int("layers", len(fresh.Contents.Layers)),
			zap.Duration("duration", time.Since(start)))
		return fresh, nil
	})
	if err != nil {
		// A stale document beats none.
		if caps != nil {
			c.logger.Warn("Capabilities refresh failed, serving stale copy", zap.Error(err))
			return caps, nil
		}
		return nil, err
	}
	return v.(*Capabilities), nil
}

// LatestTime is the default time GIBS advertises for a layer, which is the
// most recent date it has imagery for.
func (c *Catalog) LatestTime(ctx context.Context, layerID string) (string, error) {
	caps, err := c.Capabilities(ctx)
	if err != nil {
		return "", err
	}
	info, err := caps.Layer(layerID)
	if err != nil {
		return "", err
	}
	return info.DefaultTime, nil
}
