// Package events fans engine notifications out to websocket subscribers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/iudanet/fieldsync/internal/models"
)

const (
	// DefaultBuffer is the per-subscriber queue length.
	DefaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is a reconcile.Publisher that writes every event to all connected
// websocket clients. A slow client loses events instead of stalling the
// engine.
type Hub struct {
	logger  *slog.Logger
	clients map[*subscriber]struct{}
	origins []string
	buffer  int
	mu      sync.RWMutex
}

// NewHub creates a hub. origins are passed to websocket.AcceptOptions;
// nil allows same-origin requests only.
func NewHub(logger *slog.Logger, buffer int, origins []string) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*subscriber]struct{}),
		origins: origins,
		buffer:  buffer,
	}
}

// Publish never blocks.
func (h *Hub) Publish(event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.clients {
		select {
		case s.send <- data:
		default:
			h.logger.Warn("Subscriber too slow, dropping event", "type", event.Type)
		}
	}
}

// ServeHTTP handles GET /api/v1/admin/events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, h.buffer)}
	count := h.add(s)
	h.logger.Info("Event subscriber connected", "remote_addr", r.RemoteAddr, "total", count)
	defer func() {
		count := h.remove(s)
		h.logger.Info("Event subscriber disconnected", "remote_addr", r.RemoteAddr, "total", count)
	}()

	// Client messages are ignored; CloseRead notices the disconnect.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case data, ok := <-s.send:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("Failed to write event", "error", err)
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		close(s.send)
		delete(h.clients, s)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(s *subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[s] = struct{}{}
	return len(h.clients)
}

func (h *Hub) remove(s *subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, s)
	return len(h.clients)
}
