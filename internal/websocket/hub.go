// Package websocket delivers live document snapshots to connected clients.
// Unlike a broadcast hub, every client holds its own set of path
// subscriptions; each subscription bridges one docstore watch onto the
// client's connection, so subscribers see states in commit order.
package websocket

import (
	"log/slog"
	"sync"

	"github.com/bpires/listd/internal/docstore"
)

// Frame is one message sent to a client over the wire.
type Frame struct {
	Type   string `json:"type"`
	Path   string `json:"path,omitempty"`
	Exists bool   `json:"exists,omitempty"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Hub tracks connected clients and hands them docstore subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	docs    *docstore.Store
	logger  *slog.Logger
}

func NewHub(docs *docstore.Store, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		docs:    docs,
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client connected", "client_id", c.id, "user_id", c.userID)
}

// Unregister removes a client, cancels its subscriptions, and stops its
// frame delivery. A forwarder still draining its watch channel finds the
// client shut down and drops the frame instead of racing a closed channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	c.cancelAll()
	c.shutdown()
	h.logger.Debug("client disconnected", "client_id", c.id, "user_id", c.userID)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
