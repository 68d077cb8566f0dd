// Package web exposes the engine's operations over HTTP and streams
// engine events to WebSocket clients.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/events"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// connection is a single WebSocket client. A client may filter to one
// session's events or receive everything.
type connection struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans engine events out to WebSocket clients.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*connection
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]*connection),
		logger: logger.With("component", "ws"),
	}
}

// Run pumps bus events to connected clients until the context is
// cancelled.
func (h *Hub) Run(ctx context.Context, bus *events.EventBus) {
	ch := bus.SubscribeAll()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case event, ok := <-ch:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(event)
		}
	}
}

func (h *Hub) broadcast(event shared.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if c.sessionID != "" && c.sessionID != event.SessionID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow client: drop the event rather than stall the hub.
		}
	}
}

// Serve upgrades an HTTP request to a WebSocket connection and pumps
// events until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &connection{
		id:        uuid.NewString(),
		sessionID: sessionID,
		conn:      ws,
		send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.logger.Info("client connected", "connectionId", c.id, "sessionId", sessionID)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) writePump(c *connection) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(c)
			return
		}
	}
}

// readPump discards client messages; it exists to detect disconnects.
func (h *Hub) readPump(c *connection) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.id]; !ok {
		return
	}
	delete(h.conns, c.id)
	close(c.send)
	c.conn.Close()
	h.logger.Info("client disconnected", "connectionId", c.id)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		delete(h.conns, id)
		close(c.send)
		c.conn.Close()
	}
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
