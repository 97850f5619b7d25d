package analytics

import (
	"fmt"
	"sync"

	"github.com/posthog/posthog-go"
	"go.uber.org/zap"
)

const (
	EventLayerSwitched      = "layer_switched"
	EventResolutionSwitched = "resolution_switched"
	EventPlanetSwitched     = "planet_switched"
	EventImageConverted     = "image_converted"
	EventImageImported      = "image_imported"
)

// Tracker records product usage events.
type Tracker interface {
	Track(distinctID, event string, props map[string]interface{})
	Close() error
}

func New(apiKey, endpoint string, logger *zap.Logger) (Tracker, error) {
	if apiKey == "" {
		return Noop{}, nil
	}

	client, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: endpoint})
	if err != nil {
		return nil, fmt.Errorf("failed to create posthog client: %w", err)
	}
	logger.Info("Analytics enabled", zap.String("endpoint", endpoint))
	return &PostHog{client: client, logger: logger}, nil
}

type PostHog struct {
	client posthog.Client
	logger *zap.Logger
	once   sync.Once
}

func (p *PostHog) Track(distinctID, event string, props map[string]interface{}) {
	if distinctID == "" {
		distinctID = "backend"
	}
	err := p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	})
	if err != nil {
		p.logger.Debug("Failed to enqueue analytics event", zap.String("event", event), zap.Error(err))
	}
}

func (p *PostHog) Close() error {
	var err error
	p.once.Do(func() { err = p.client.Close() })
	return err
}

type Noop struct{}

func (Noop) Track(string, string, map[string]interface{}) {}

func (Noop) Close() error { return nil }
