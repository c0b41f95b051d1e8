package websocket

import (
	"sync"
	"time"

	"pairchat/pkg/logger"
)

// Hub maintains the set of active clients, one per signed-in user. A new
// connection for a user already connected supersedes the old one.
type Hub struct {
	clients     map[*Client]bool
	userClients map[string]*Client

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	mu sync.RWMutex
}

// HubStats contains hub statistics
type HubStats struct {
	TotalClients int       `json:"total_clients"`
	LastUpdated  time.Time `json:"last_updated"`
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[string]*Client),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
	}
}

// Run handles client registration and periodic stats logging. Meant to
// run in its own goroutine for the life of the process.
func (h *Hub) Run() {
	statsTicker := time.NewTicker(1 * time.Minute)
	defer statsTicker.Stop()

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-statsTicker.C:
			h.logStats()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	superseded := h.userClients[client.UserID]
	if superseded == client {
		superseded = nil
	}
	if superseded != nil {
		delete(h.clients, superseded)
	}
	h.clients[client] = true
	h.userClients[client.UserID] = client
	total := len(h.clients)
	h.mu.Unlock()

	// Signal the old connection and let its own read-pump teardown close
	// the controller. The send channel stays open: subscription callbacks
	// may still be delivering into it.
	if superseded != nil {
		superseded.Shutdown()
	}

	logger.WithFields(map[string]interface{}{
		"user_id":       client.UserID,
		"total_clients": total,
	}).Info("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	if h.userClients[client.UserID] == client {
		delete(h.userClients, client.UserID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.Shutdown()

	logger.WithFields(map[string]interface{}{
		"user_id":       client.UserID,
		"total_clients": total,
	}).Info("Client unregistered")
}

// IsUserConnected reports whether the user has an active connection
func (h *Hub) IsUserConnected(uid string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.userClients[uid]
	return ok
}

// Stats returns a snapshot of hub statistics
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		TotalClients: len(h.clients),
		LastUpdated:  time.Now(),
	}
}

func (h *Hub) logStats() {
	stats := h.Stats()
	logger.WithFields(map[string]interface{}{
		"total_clients": stats.TotalClients,
	}).Debug("Hub stats")
}
