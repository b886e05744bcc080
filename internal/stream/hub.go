// Package stream fans session events out to websocket subscribers.
package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/hark/internal/session"
)

const (
	defaultQueueSize = 64
	writeTimeout     = 5 * time.Second
)

// Hub is a session.EventSink and an http.Handler serving the event stream.
// Each subscriber owns a bounded queue; a subscriber that falls behind is
// disconnected rather than slowing the controller down.
type Hub struct {
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	queueSize int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn   *websocket.Conn
	remote string
	queue  chan session.Event
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.queue) })
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger:    logger.With("component", "stream"),
		queueSize: defaultQueueSize,
		clients:   make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Emit queues the event for every subscriber without blocking.
func (h *Hub) Emit(event session.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.queue <- event:
		default:
			h.logger.Warn("event subscriber too slow; disconnecting", "remote", c.remote)
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("event stream upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		queue:  make(chan session.Event, h.queueSize),
	}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}
	h.logger.Debug("event subscriber connected", "remote", c.remote)

	go h.readLoop(c)
	h.writeLoop(c)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// readLoop discards client frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	for event := range c.queue {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(event); err != nil {
			h.logger.Debug("event subscriber write failed", "error", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}
