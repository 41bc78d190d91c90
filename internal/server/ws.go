package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans measurement events out to connected WebSocket clients. It
// implements session.EventSink; slow or dead clients are dropped rather
// than allowed to stall the stream.
type Hub struct {
	conns  map[*websocket.Conn]bool
	mu     sync.Mutex
	logger *slog.Logger

	// gorilla/websocket permits at most one concurrent writer per
	// connection, and Emit is called from every UDP worker plus the
	// session cleanup goroutine. writeMu serializes all broadcasts.
	writeMu sync.Mutex
}

// NewHub creates an empty WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
	}
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Emit broadcasts the event as a JSON text message to every client.
func (h *Hub) Emit(ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event for broadcast", slog.String("error", err.Error()))
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	for _, c := range h.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = c.Close()
			h.remove(c)
		}
	}
}

// handleWS upgrades the connection and parks it in the hub until the
// client goes away.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.add(conn)
	h.logger.Debug("websocket client connected", slog.String("remote_addr", r.RemoteAddr))

	defer func() {
		h.remove(conn)
		conn.Close()
		h.logger.Debug("websocket client disconnected", slog.String("remote_addr", r.RemoteAddr))
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
