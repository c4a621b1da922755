package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cellwars/cellwars-server/internal/match"
)

// Hub tracks one websocket client per user and routes match notifications
// to them. It implements match.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Notify queues n for userID. Users without a client miss the message and
// receive a fresh state on reconnect.
func (h *Hub) Notify(userID string, n match.Notification) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	c.enqueue(encodeNotification(n))
}

// Connected reports whether userID has a live client.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// register makes c the client of its user, closing any older connection.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	old := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if old != nil {
		h.logger.Info("replacing client", zap.String("user", c.userID))
		old.close()
	}
	h.logger.Debug("client registered", zap.String("user", c.userID), zap.String("match_id", c.match.ID))
}

// unregister removes c if it is still the user's current client.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] != c {
		return false
	}
	delete(h.clients, c.userID)
	h.logger.Debug("client unregistered", zap.String("user", c.userID))
	return true
}

// CloseAll drops every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
