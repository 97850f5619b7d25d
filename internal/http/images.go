package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stellarview/internal/analytics"
	"stellarview/internal/convert"
	"stellarview/internal/image_list"
	"stellarview/internal/image_renderer"
)

// ConvertTIFF keeps the error body shape the image viewer expects: a JSON
// object with a single "error" field.
func (h *Handlers) ConvertTIFF(c *gin.Context) {
	sourceURL := c.Query("url")
	if sourceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": convert.ErrNoURL.Error()})
		return
	}

	png, err := h.Converter.Convert(c.Request.Context(), sourceURL)
	if err != nil {
		status := statusFor(err)
		if status != http.StatusRequestEntityTooLarge && status != http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.Error(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handlers) ListImages(c *gin.Context) {
	c.JSON(http.StatusOK, h.Scanner.GetImages())
}

func (h *Handlers) FeaturedImages(c *gin.Context) {
	c.JSON(http.StatusOK, image_list.FeaturedImages())
}

type importRequest struct {
	URL   string `json:"url" validate:"required,url"`
	Title string `json:"title" validate:"max=200"`
}

func (h *Handlers) ImportImage(c *gin.Context) {
	var req importRequest
	if !h.bind(c, &req) {
		return
	}

	info, err := h.Scanner.Import(c.Request.Context(), h.Downloader, req.URL, req.Title)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.Tracker.Track("", analytics.EventImageImported, map[string]interface{}{
		"url":    req.URL,
		"bytes":  info.Bytes,
		"width":  info.Width,
		"height": info.Height,
	})
	h.Logger.Info("Image imported", zap.String("id", info.ID), zap.String("url", req.URL))

	meta, err := h.Renderer.GetImageMeta(info.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, meta)
}

func (h *Handlers) ImageMeta(c *gin.Context) {
	meta, err := h.Renderer.GetImageMeta(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// parseTileCoords accepts y with or without an image extension, as deep-zoom
// viewers build paths like /3/2/5.jpg.
func parseTileCoords(zs, xs, ys string) (int, int, int, error) {
	ext := strings.ToLower(filepath.Ext(ys))
	if ext != "" && ext != ".jpg" && ext != ".jpeg" {
		return 0, 0, 0, fmt.Errorf("%w: format %s", image_renderer.ErrTileOutOfRange, ext)
	}

	var out [3]int
	for i, s := range []string{zs, xs, strings.TrimSuffix(ys, filepath.Ext(ys))} {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("%w: %q is not a non-negative integer", image_renderer.ErrTileOutOfRange, s)
		}
		out[i] = n
	}
	return out[0], out[1], out[2], nil
}

func (h *Handlers) ImageTile(c *gin.Context) {
	z, x, y, err := parseTileCoords(c.Param("z"), c.Param("x"), c.Param("y"))
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.Renderer.RenderTile(c.Request.Context(), c.Param("id"), z, x, y)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("ETag", `"`+result.ETag+`"`)
	c.Header("Cache-Control", "public, max-age=31536000")
	c.Header("Content-Length", strconv.Itoa(result.Size))
	c.Header("X-Tile-Bytes", strconv.Itoa(result.Size))
	c.Header("X-Cache", cacheHeader(result.Cached))

	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", "image/jpeg")
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", result.Data)
}
