package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Gesture WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Messages are JSON text frames {type, ts, data}:
//
//	state_init        DecoderSnapshot, sent once on connect
//	gesture           {"direction": "left"}
//	interrupts        {"counts": {"fifo_valid": 3, ...}}, coalesced
//	cycle_error       {"error": "..."}
//	decoder_changed   DecoderSnapshot
//
// The snapshot on connect goes through the daemon loop like any other
// command. Clients that cannot keep up are disconnected.
//
// ============================================================================

type wsGestureData struct {
	Direction string `json:"direction"`
}

type wsInterruptsData struct {
	Counts map[string]int `json:"counts"`
}

type wsCycleErrorData struct {
	Error string `json:"error"`
}

// envelope is the wire format for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: typ, Ts: &at, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans serialised frames out to registered clients.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero selects 32.
	SendBuf int
	// BroadcastBuf is the hub inbound queue size. Zero selects 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run processes registrations and broadcasts until ctx is canceled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			for _, c := range h.deliver(msg) {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// deliver queues msg on every client and returns the ones whose queue was full.
func (h *Hub) deliver(msg []byte) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes enqueues a serialised frame. It drops the frame when the
// hub queue is full.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send queue.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// close shuts the connection and the send queue. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// writePump exits when send is closed.
		close(c.send)
	})
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames so control frames are processed and
// disconnects are noticed, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsInterruptCoalesceWindow bounds how long raw status tags are counted
// before they are flushed as one "interrupts" message.
const wsInterruptCoalesceWindow = interruptCoalesceWinMS * time.Millisecond

// ============================================================================
// HTTP handler
// ============================================================================

type Server struct {
	logger   *slog.Logger
	hub      *Hub
	commands chan<- Command
}

// NewServer constructs the WS server. Start Hub().Run and RunBroadcaster
// separately.
func NewServer(logger *slog.Logger, commands chan<- Command, cfg HubConfig) *Server {
	return &Server{
		logger:   logger,
		hub:      NewHub(logger, cfg),
		commands: commands,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register mounts the WS handler on mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades, registers the client and sends state_init.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// The pumps outlive the handler; net/http cancels r.Context() on return.
	go client.writePump()
	go client.readPump()

	snap, err := requestSnapshot(r.Context(), s.commands)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	msg, err := marshalEnvelope("state_init", time.Time{}, snap)
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	select {
	case client.send <- msg:
	default:
		s.hub.unregister <- client
	}
}

// requestSnapshot round-trips a RequestSnapshot through the daemon loop.
// Without a deadline on ctx it waits at most one second.
func requestSnapshot(ctx context.Context, commands chan<- Command) (DecoderSnapshot, error) {
	if commands == nil {
		return DecoderSnapshot{}, errors.New("no command channel")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second)
		defer cancel()
	}

	reply := make(chan DecoderSnapshot, 1)
	select {
	case <-ctx.Done():
		return DecoderSnapshot{}, ctx.Err()
	case commands <- RequestSnapshot{Reply: reply}:
	}

	select {
	case <-ctx.Done():
		return DecoderSnapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster serialises daemon broadcasts and hands them to hub.
//
// Raw status tags arrive once per bit per cycle, so they are counted and
// flushed at most once per wsInterruptCoalesceWindow. Any other broadcast
// flushes pending counts first, then goes out immediately.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan Broadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var (
		counts    map[string]int
		countsAt  time.Time
		flushTick *time.Timer
		flushCh   <-chan time.Time
	)

	send := func(typ string, at time.Time, data any) {
		msg, err := marshalEnvelope(typ, at, data)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", typ)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flush := func() {
		if flushTick != nil {
			flushTick.Stop()
			flushTick, flushCh = nil, nil
		}
		if len(counts) == 0 {
			return
		}
		send("interrupts", countsAt, wsInterruptsData{Counts: counts})
		counts = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-flushCh:
			flushTick, flushCh = nil, nil
			flush()

		case b, ok := <-src:
			if !ok {
				flush()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			if ev, isTag := b.(BroadcastInterrupt); isTag {
				if counts == nil {
					counts = make(map[string]int)
					countsAt = ev.At
				}
				counts[ev.Tag]++
				if flushTick == nil {
					flushTick = time.NewTimer(wsInterruptCoalesceWindow)
					flushCh = flushTick.C
				}
				continue
			}

			flush()
			typ, at, data, ok := convertBroadcast(b)
			if !ok {
				continue
			}
			send(typ, at, data)
		}
	}
}

func convertBroadcast(b Broadcast) (typ string, at time.Time, data any, ok bool) {
	switch ev := b.(type) {
	case BroadcastGesture:
		return "gesture", ev.At, wsGestureData{Direction: ev.Direction}, true
	case BroadcastCycleError:
		return "cycle_error", ev.At, wsCycleErrorData{Error: ev.Error}, true
	case BroadcastDecoderChanged:
		return "decoder_changed", ev.At, ev.Snapshot, true
	default:
		return "", time.Time{}, nil, false
	}
}
