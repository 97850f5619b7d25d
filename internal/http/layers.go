package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stellarview/internal/layer_registry"
	"stellarview/internal/provider_cache"
	"stellarview/internal/time_format"
)

type layerList struct {
	Planet layer_registry.Planet        `json:"planet"`
	Groups []string                     `json:"groups"`
	Layers []layer_registry.LayerConfig `json:"layers"`
}

func (h *Handlers) ListLayers(c *gin.Context) {
	planet := layer_registry.Earth
	if q := c.Query("planet"); q != "" {
		p, err := layer_registry.ParsePlanet(q)
		if err != nil {
			h.fail(c, err)
			return
		}
		planet = p
	}

	c.JSON(http.StatusOK, layerList{
		Planet: planet,
		Groups: h.Registry.Groups(planet),
		Layers: h.Registry.ForPlanet(planet),
	})
}

func (h *Handlers) GetLayer(c *gin.Context) {
	layer, err := h.Registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, layer)
}

type resolved struct {
	Time     string                   `json:"time"`
	Provider *provider_cache.Provider `json:"provider"`
	Advisory string                   `json:"advisory,omitempty"`
}

// ResolveLayer answers which provider the globe would show for a layer at
// an instant, defaulting to now.
func (h *Handlers) ResolveLayer(c *gin.Context) {
	layer, err := h.Registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}

	now := h.Clock.Now().UTC()
	at := now
	if q := c.Query("at"); q != "" {
		at, err = time.Parse(time.RFC3339, q)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: at must be RFC 3339: %v", time_format.ErrInvalidTime, err))
			return
		}
	}

	res := layer_registry.Resolution(h.Config.DefaultResolution)
	if q := c.Query("resolution"); q != "" {
		res, err = layer_registry.ParseResolution(q)
		if err != nil {
			h.fail(c, err)
			return
		}
	}

	timeString, _ := time_format.Format(at, layer.Temporal)
	out := resolved{
		Time:     timeString,
		Provider: h.Factory(layer, timeString, res),
	}
	if time_format.IsFuture(at, now, layer.Temporal) {
		out.Advisory = time_format.Advisory(now)
	}
	c.JSON(http.StatusOK, out)
}

type latest struct {
	Layer  string `json:"layer"`
	Latest string `json:"latest,omitempty"`
}

// LatestLayerTime reports the newest date GIBS advertises for the layer.
// Static layers have none.
func (h *Handlers) LatestLayerTime(c *gin.Context) {
	layer, err := h.Registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !layer.Temporal.Temporal() {
		c.JSON(http.StatusOK, latest{Layer: layer.Key})
		return
	}

	t, err := h.Catalog.LatestTime(c.Request.Context(), layer.Layer)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, latest{Layer: layer.Key, Latest: t})
}
