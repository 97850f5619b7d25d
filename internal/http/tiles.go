package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stellarview/internal/layer_registry"
	"stellarview/internal/tile_proxy"
)

type tileURI struct {
	Layer string `uri:"layer" validate:"required"`
	Z     int    `uri:"z" validate:"min=0,max=30"`
	Row   int    `uri:"row" validate:"min=0"`
	Col   int    `uri:"col" validate:"min=0"`
}

func (h *Handlers) Tile(c *gin.Context) {
	var uri tileURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tile coordinates must be integers"})
		return
	}
	if err := h.validate.Struct(uri); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := tile_proxy.Request{
		Layer: uri.Layer,
		Time:  c.Query("time"),
		Z:     uri.Z,
		Row:   uri.Row,
		Col:   uri.Col,
	}
	if q := c.Query("resolution"); q != "" {
		res, err := layer_registry.ParseResolution(q)
		if err != nil {
			h.fail(c, err)
			return
		}
		req.Resolution = res
	}

	tile, err := h.Proxy.Fetch(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	if match := c.GetHeader("If-None-Match"); match == `"`+tile.ETag+`"` {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("ETag", `"`+tile.ETag+`"`)
	c.Header("X-Cache", cacheHeader(tile.Cached))
	// Time-stamped tiles never change; static ones may be re-published.
	if req.Time != "" {
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		c.Header("Cache-Control", "public, max-age=86400")
	}
	c.Header("Content-Length", strconv.Itoa(len(tile.Data)))
	c.Data(http.StatusOK, tile.ContentType, tile.Data)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}
