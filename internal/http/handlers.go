package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stellarview/internal/analytics"
	"stellarview/internal/clock"
	"stellarview/internal/config"
	"stellarview/internal/convert"
	"stellarview/internal/image_list"
	"stellarview/internal/image_renderer"
	"stellarview/internal/labels"
	"stellarview/internal/layer_registry"
	"stellarview/internal/overlay"
	"stellarview/internal/provider_cache"
	"stellarview/internal/telemetry"
	"stellarview/internal/tile_proxy"
	"stellarview/internal/time_format"
	"stellarview/internal/viewer_session"
	"stellarview/internal/wmts"
)

// MarsAssetID is the Cesium ion tileset the client shows for Mars, which has
// no WMTS layers.
const MarsAssetID = 3644333

type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Clock      clock.Clock
	Registry   *layer_registry.Registry
	Factory    provider_cache.Factory
	Catalog    *wmts.Catalog
	Proxy      *tile_proxy.Proxy
	Scanner    *image_list.Scanner
	Renderer   *image_renderer.Renderer
	Downloader *image_list.Downloader
	Converter  *convert.Converter
	Labels     labels.Store
	Sessions   *viewer_session.Manager
	Tracker    analytics.Tracker
}

type Handlers struct {
	Deps
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func New(deps Deps) *Handlers {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Tracker == nil {
		deps.Tracker = analytics.Noop{}
	}
	h := &Handlers{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func NewRouter(h *Handlers, telemetryEnabled bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware())
	}
	r.Use(h.RequestLogging(), h.CORS())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/convert-tiff", h.ConvertTIFF)

	api := r.Group("/api")
	api.GET("/client-config", h.ClientConfig)

	api.GET("/layers", h.ListLayers)
	api.GET("/layers/:key", h.GetLayer)
	api.GET("/layers/:key/resolve", h.ResolveLayer)
	api.GET("/layers/:key/latest", h.LatestLayerTime)

	api.GET("/tiles/:layer/:z/:row/:col", h.Tile)

	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/ws", h.SessionSocket)
	api.GET("/sessions/:id", h.GetSession)

	api.GET("/images", h.ListImages)
	api.GET("/images/featured", h.FeaturedImages)
	api.POST("/images/import", h.ImportImage)
	api.GET("/images/:id/meta", h.ImageMeta)
	api.GET("/images/:id/tiles/:z/:x/:y", h.ImageTile)
	api.HEAD("/images/:id/tiles/:z/:x/:y", h.ImageTile)

	api.GET("/labels", h.GetLabels)
	api.POST("/labels", h.AddLabel)
	api.PUT("/labels", h.SaveLabels)
	api.POST("/overlays/layout", h.OverlayLayout)

	return r
}

func (h *Handlers) RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		start := time.Now()
		c.Header("X-Request-Id", requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", max(c.Writer.Size(), 0)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		h.Logger.Info("request", fields...)
	}
}

// allowedOrigin is ALLOWED_ORIGIN when set; otherwise same-host origins and
// requests without an Origin header are allowed.
func (h *Handlers) allowedOrigin(r *http.Request) string {
	if h.Config.AllowedOrigin != "" {
		return h.Config.AllowedOrigin
	}
	origin := r.Header.Get("Origin")
	switch {
	case origin == "":
		return "*"
	case origin == "http://"+r.Host || origin == "https://"+r.Host:
		return origin
	default:
		return ""
	}
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	allowed := h.allowedOrigin(r)
	origin := r.Header.Get("Origin")
	return allowed == "*" || allowed == origin || origin == ""
}

func (h *Handlers) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowed := h.allowedOrigin(c.Request); allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, HEAD, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type clientConfig struct {
	CesiumIonToken    string                      `json:"cesium_ion_token,omitempty"`
	PublicBaseURL     string                      `json:"public_base_url"`
	MarsAssetID       int                         `json:"mars_asset_id"`
	DefaultLayer      string                      `json:"default_layer"`
	DefaultResolution string                      `json:"default_resolution"`
	Planets           []layer_registry.Planet     `json:"planets"`
	Resolutions       []layer_registry.Resolution `json:"resolutions"`
	LayerAlpha        float64                     `json:"layer_alpha"`
	DefaultImageURL   string                      `json:"default_image_url"`
}

func (h *Handlers) ClientConfig(c *gin.Context) {
	c.JSON(http.StatusOK, clientConfig{
		CesiumIonToken:    h.Config.CesiumIonToken,
		PublicBaseURL:     h.Config.PublicBase(),
		MarsAssetID:       MarsAssetID,
		DefaultLayer:      h.Config.DefaultLayer,
		DefaultResolution: h.Config.DefaultResolution,
		Planets:           []layer_registry.Planet{layer_registry.Earth, layer_registry.Moon, layer_registry.Mars},
		Resolutions: []layer_registry.Resolution{
			layer_registry.Potato, layer_registry.Low, layer_registry.Medium, layer_registry.High,
		},
		LayerAlpha:      viewer_session.LayerAlpha,
		DefaultImageURL: image_list.DefaultImageURL(),
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, layer_registry.ErrUnknownLayer),
		errors.Is(err, image_list.ErrNotFound),
		errors.Is(err, wmts.ErrLayerNotFound),
		errors.Is(err, viewer_session.ErrSessionNotFound),
		errors.Is(err, tile_proxy.ErrUpstreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, layer_registry.ErrUnknownPlanet),
		errors.Is(err, layer_registry.ErrUnknownResolution),
		errors.Is(err, time_format.ErrInvalidTime),
		errors.Is(err, tile_proxy.ErrZoomOutOfRange),
		errors.Is(err, tile_proxy.ErrTileOutOfRange),
		errors.Is(err, image_renderer.ErrZoomOutOfRange),
		errors.Is(err, image_renderer.ErrTileOutOfRange),
		errors.Is(err, image_list.ErrBadURL),
		errors.Is(err, labels.ErrInvalidLabel),
		errors.Is(err, labels.ErrNoURL),
		errors.Is(err, overlay.ErrInvalidGeometry),
		errors.Is(err, convert.ErrNoURL):
		return http.StatusBadRequest
	case errors.Is(err, image_list.ErrTooLarge),
		errors.Is(err, convert.ErrTooManyPixels):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, tile_proxy.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// bind decodes a JSON body and runs the validate tags.
func (h *Handlers) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" failed "+fe.Tag())
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + strings.Join(fields, ", ")})
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
