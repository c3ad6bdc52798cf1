package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cubefolio/internal/cube"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
//   - A Hub tracks connected clients; each has its own write pump so one
//     slow client never blocks the others. Clients that cannot keep up are
//     disconnected.
//   - The read pump decodes input envelopes (wheel, touch, key, advance...)
//     and feeds them through that client's own InputRouter.
//   - The broadcaster turns reducer broadcasts into JSON frames. Animation
//     frames are coalesced latest-wins over wsFrameCoalesceWindow.
//   - The first message on connect is "state_init", built from a snapshot
//     requested through the daemon loop.
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// ============================================================================

// wsStateInitData is the JSON `data` payload for "state_init".
type wsStateInitData struct {
	Face         int         `json:"face"`
	Label        string      `json:"label"`
	Angle        float64     `json:"angle"`
	Target       float64     `json:"target"`
	Animating    bool        `json:"animating"`
	Faces        []cube.Face `json:"faces"`
	HintVisible  bool        `json:"hint_visible"`
	ProjectCount *int        `json:"project_count,omitempty"`
}

// wsFrameData is the JSON `data` payload for "frame".
type wsFrameData struct {
	Angle     float64 `json:"angle"`
	Target    float64 `json:"target"`
	Face      int     `json:"face"`
	Animating bool    `json:"animating"`
}

// wsFaceChangedData is the JSON `data` payload for "face_changed".
type wsFaceChangedData struct {
	Face  int    `json:"face"`
	Label string `json:"label"`
	Step  string `json:"step"`
}

// wsProjectsChangedData is the JSON `data` payload for "projects_changed".
type wsProjectsChangedData struct {
	Count int `json:"count"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalOutbound(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans serialized state events out to every connected viewer.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.Mutex
	viewers map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, positiveOr(cfg.BroadcastBuf, 128)),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		viewers:    make(map[*Client]struct{}),
		sendBuf:    positiveOr(cfg.SendBuf, 32),
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Run processes hub events until ctx is canceled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("state hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("state hub stopped", "viewers", h.Clients())
			h.closeAllClients()
			return

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			for _, c := range h.fanOut(msg) {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.viewers[c] = struct{}{}
	n := len(h.viewers)
	h.mu.Unlock()
	h.logger.Info("viewer connected", "remote_addr", c.remoteAddr, "viewers", n)
}

// fanOut queues msg on every viewer and returns those whose queue was full.
func (h *Hub) fanOut(msg []byte) (lagging []*Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.viewers {
		select {
		case c.send <- msg:
		default:
			lagging = append(lagging, c)
		}
	}
	return lagging
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.viewers {
		c.shutdown()
	}
	clear(h.viewers)
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.viewers[c]
	delete(h.viewers, c)
	n := len(h.viewers)
	h.mu.Unlock()

	if ok {
		c.shutdown()
		h.logger.Info("viewer disconnected", "remote_addr", c.remoteAddr, "reason", reason, "viewers", n)
	}
}

// leave asks the hub to drop c. It gives up once the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastBytes queues one serialized event for every viewer. A full hub
// queue drops the event.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("state hub queue full, dropping event", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

// Client is one viewer connection.
type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	// router normalises this client's raw input; nil for read-only clients.
	router *InputRouter

	closeOnce  sync.Once
	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, router *InputRouter, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil {
		sendBuf = positiveOr(hub.sendBuf, sendBuf)
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		router:     router,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// shutdown closes the connection and the send queue exactly once.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		close(c.send)
	})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// maxInputMessage bounds a single client input envelope.
	maxInputMessage = 4096
)

// wsFrameCoalesceWindow is the longest time a sampled frame waits before it
// is sent; newer frames replace older ones inside the window.
const wsFrameCoalesceWindow = 16 * time.Millisecond

// closeStatus unwraps a websocket close frame error.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, kind string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+kind+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue onto the socket and keeps it alive with
// pings. It returns when send is closed or a write fails.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump decodes input envelopes until the connection fails, then
// unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if c.router != nil {
			c.router.Close()
		}
		if c.hub != nil {
			c.hub.leave(c)
		}
	}()

	c.conn.SetReadLimit(maxInputMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", "read", err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleInput(msg)
	}
}

func (c *Client) handleInput(msg []byte) {
	if c.router == nil {
		return
	}
	ev, err := UnmarshalEvent(msg)
	if err != nil {
		c.logger.Debug("ws client sent invalid input", "remote_addr", c.remoteAddr, "error", err)
		return
	}
	c.router.Route(ev)
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// events receives the snapshot request on connect and client input.
	events chan<- Event

	input InputConfig
}

type ServerConfig struct {
	Hub   HubConfig
	Input InputConfig
}

// NewServer constructs the WS state server components. Call Register on a
// mux, then start hub.Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
		input:  cfg.Input,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// Origins are enforced by the CORS allow-list on the HTTP side.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	var router *InputRouter
	if s.events != nil {
		router = NewInputRouter(s.events, s.input, "ws:"+r.RemoteAddr, s.logger)
	}
	client := NewClient(s.hub, conn, router, r.RemoteAddr, s.logger)

	// Register first so broadcasts can reach it.
	s.hub.register <- client

	// The pumps outlive the request; net/http cancels r.Context() as soon as
	// the handler returns.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case <-r.Context().Done():
		return
	case s.events <- RequestStateSnapshot{Reply: reply}:
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	select {
	case <-waitCtx.Done():
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", waitCtx.Err())
		}
		return

	case snap := <-reply:
		initMsg, err := marshalOutbound(wsOutboundEvent{Type: "state_init", Data: stateInitData(snap), At: snap.At})
		if err != nil {
			s.logger.Warn("ws state_init marshal failed", "error", err)
			return
		}
		// If the client is already slow, disconnect it.
		select {
		case client.send <- initMsg:
		default:
			s.hub.leave(client)
		}
	}
}

func stateInitData(snap StateSnapshot) wsStateInitData {
	d := wsStateInitData{
		Face:        snap.Cube.Face,
		Label:       snap.Label,
		Angle:       snap.Cube.Current,
		Target:      snap.Cube.Target,
		Animating:   snap.Cube.Animating,
		Faces:       snap.Faces,
		HintVisible: snap.HintVisible,
	}
	if snap.ProjectsKnown {
		n := snap.ProjectCount
		d.ProjectCount = &n
	}
	return d
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted broadcasts, marshals them and fans
// them out through the hub. Frames are rate-limited: the latest pending
// frame is flushed at most once per wsFrameCoalesceWindow while frames keep
// arriving. Any other broadcast flushes the pending frame first so clients
// see events in order.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerCh <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		msg, err := marshalOutbound(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		emit(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	startTimerIfNeeded := func() {
		if timer != nil {
			return
		}
		timer = time.NewTimer(wsFrameCoalesceWindow)
		timerCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			// The timer fired, so its channel is drained.
			timer = nil
			timerCh = nil
			flushPending()

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "frame" {
				copyEv := ev
				pending = &copyEv
				startTimerIfNeeded()
				continue
			}

			flushPending()
			stopTimer()
			emit(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastFrame:
		return wsOutboundEvent{
			Type: "frame",
			Data: wsFrameData{Angle: ev.Angle, Target: ev.Target, Face: ev.Face, Animating: ev.Animating},
			At:   ev.At,
		}, true

	case BroadcastFaceChanged:
		return wsOutboundEvent{
			Type: "face_changed",
			Data: wsFaceChangedData{Face: ev.Face, Label: ev.Label, Step: ev.Step.String()},
			At:   ev.At,
		}, true

	case BroadcastHintHidden:
		return wsOutboundEvent{Type: "hint_hidden", At: ev.At}, true

	case BroadcastProjectsChanged:
		return wsOutboundEvent{
			Type: "projects_changed",
			Data: wsProjectsChangedData{Count: ev.Count},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
