package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stellarview/internal/layer_registry"
	"stellarview/internal/provider_cache"
	"stellarview/internal/time_format"
	"stellarview/internal/viewer_session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	outboundBuffer = 64
)

// Messages sent to the browser.
const (
	msgAddLayer    = "add_layer"
	msgRemoveLayer = "remove_layer"
	msgSetClock    = "set_clock"
	msgStatus      = "status"
	msgError       = "error"
)

// Messages accepted from the browser.
const (
	msgTick          = "tick"
	msgSwitchLayer   = "switch_layer"
	msgSetResolution = "set_resolution"
	msgSwitchPlanet  = "switch_planet"
	msgJumpToNow     = "jump_to_now"
)

type serverMessage struct {
	Type     string                   `json:"type"`
	ID       string                   `json:"id,omitempty"`
	Provider *provider_cache.Provider `json:"provider,omitempty"`
	Alpha    float64                  `json:"alpha,omitempty"`
	At       *time.Time               `json:"at,omitempty"`
	Status   *viewer_session.Status   `json:"status,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

type clientMessage struct {
	Type       string    `json:"type" validate:"required,oneof=tick switch_layer set_resolution switch_planet jump_to_now"`
	At         time.Time `json:"at"`
	Layer      string    `json:"layer"`
	Resolution string    `json:"resolution"`
	Planet     string    `json:"planet"`
}

// wsGlobe is the browser globe seen through a websocket. Layer commands are
// queued in order; status updates keep only the newest pending one.
type wsGlobe struct {
	out      chan serverMessage
	status   chan viewer_session.Status
	done     chan struct{}
	stopOnce sync.Once
}

func newWSGlobe() *wsGlobe {
	return &wsGlobe{
		out:    make(chan serverMessage, outboundBuffer),
		status: make(chan viewer_session.Status, 1),
		done:   make(chan struct{}),
	}
}

func (g *wsGlobe) send(m serverMessage) error {
	select {
	case <-g.done:
		return viewer_session.ErrGlobeGone
	default:
	}
	select {
	case g.out <- m:
		return nil
	case <-g.done:
		return viewer_session.ErrGlobeGone
	}
}

func (g *wsGlobe) AddLayer(id string, p *provider_cache.Provider, alpha float64) error {
	return g.send(serverMessage{Type: msgAddLayer, ID: id, Provider: p, Alpha: alpha})
}

func (g *wsGlobe) RemoveLayer(id string) error {
	return g.send(serverMessage{Type: msgRemoveLayer, ID: id})
}

func (g *wsGlobe) SetClock(t time.Time) error {
	return g.send(serverMessage{Type: msgSetClock, At: &t})
}

func (g *wsGlobe) sendError(err error, log *zap.Logger) {
	if serr := g.send(serverMessage{Type: msgError, Error: err.Error()}); serr != nil {
		log.Debug("Dropped error message", zap.String("message", err.Error()), zap.Error(serr))
	}
}

func (g *wsGlobe) pushStatus(st viewer_session.Status) {
	for {
		select {
		case g.status <- st:
			return
		default:
		}
		select {
		case <-g.status:
		default:
		}
	}
}

func (g *wsGlobe) stop() {
	g.stopOnce.Do(func() { close(g.done) })
}

func (g *wsGlobe) writeLoop(conn *websocket.Conn, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer g.stop()

	write := func(m serverMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			log.Debug("Websocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-g.done:
			return
		case m := <-g.out:
			if !write(m) {
				return
			}
		case st := <-g.status:
			if !write(serverMessage{Type: msgStatus, Status: &st}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func sessionOverrides(c *gin.Context) (viewer_session.Options, error) {
	var opts viewer_session.Options
	if q := c.Query("planet"); q != "" {
		p, err := layer_registry.ParsePlanet(q)
		if err != nil {
			return opts, err
		}
		opts.Planet = p
	}
	if q := c.Query("resolution"); q != "" {
		r, err := layer_registry.ParseResolution(q)
		if err != nil {
			return opts, err
		}
		opts.Resolution = r
	}
	opts.Layer = c.Query("layer")
	return opts, nil
}

// SessionSocket runs one viewer session for the lifetime of a websocket.
func (h *Handlers) SessionSocket(c *gin.Context) {
	opts, err := sessionOverrides(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	globe := newWSGlobe()
	opts.OnStatus = globe.pushStatus

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := h.Sessions.Open(ctx, globe, opts)
	if err != nil {
		h.fail(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered the request.
		session.Close()
		return
	}
	defer conn.Close()

	log := h.Logger.With(zap.String("session_id", session.ID()))
	log.Info("Viewer connected", zap.String("ip", c.ClientIP()))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		globe.writeLoop(conn, log)
	}()
	globe.pushStatus(session.Status())

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Websocket read failed", zap.Error(err))
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.dispatch(ctx, session, msg); err != nil {
			if errors.Is(err, viewer_session.ErrSessionClosed) {
				break
			}
			globe.sendError(err, log)
		}
	}

	// The writer is still up, so the final remove_layer reaches the browser
	// when the connection allows it.
	session.Close()
	globe.stop()
	<-writerDone
	log.Info("Viewer disconnected")
}

func (h *Handlers) dispatch(ctx context.Context, s *viewer_session.Session, msg clientMessage) error {
	if err := h.validate.Struct(msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch msg.Type {
	case msgTick:
		if msg.At.IsZero() {
			return fmt.Errorf("%w: tick needs at", time_format.ErrInvalidTime)
		}
		return s.Tick(ctx, msg.At)
	case msgSwitchLayer:
		return s.SwitchLayer(ctx, msg.Layer)
	case msgSetResolution:
		res, err := layer_registry.ParseResolution(msg.Resolution)
		if err != nil {
			return err
		}
		return s.SetResolution(ctx, res)
	case msgSwitchPlanet:
		planet, err := layer_registry.ParsePlanet(msg.Planet)
		if err != nil {
			return err
		}
		return s.SwitchPlanet(ctx, planet)
	case msgJumpToNow:
		return s.JumpToNow(ctx)
	}
	return nil
}

func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.Sessions.List())
}

func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.Sessions.Get(c.Param("id"))
	if !ok {
		h.fail(c, fmt.Errorf("%w: %s", viewer_session.ErrSessionNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, s.Status())
}
