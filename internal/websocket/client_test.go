package websocket

import (
	"testing"
	"time"

	"pairchat/internal/config"
	"pairchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shutdownSignalled(c *Client) func() bool {
	return func() bool {
		select {
		case <-c.done:
			return true
		default:
			return false
		}
	}
}

func TestSupersededClientAcceptsSinkPushes(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	old := NewClient(nil, hub, "u1", config.WebSocketConfig{})
	hub.Register <- old
	replacement := NewClient(nil, hub, "u1", config.WebSocketConfig{})
	hub.Register <- replacement

	require.Eventually(t, shutdownSignalled(old), 2*time.Second, 10*time.Millisecond)

	// Subscription callbacks for the old controller may still be running;
	// their pushes must be dropped, not crash the process.
	require.NotPanics(t, func() {
		old.RosterUpdated([]models.Contact{{UID: "b1", Name: "Bob"}})
		old.ThreadUpdated([]models.Message{{ID: "m1", SenderUID: "b1", Text: "hi"}})
		old.ContactTyping("b1", true)
	})
	assert.Empty(t, old.Send, "frames pushed after supersede must be dropped")

	assert.True(t, hub.IsUserConnected("u1"))
	assert.Equal(t, 1, hub.Stats().TotalClients)
}

func TestUnregisteredClientAcceptsSinkPushes(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(nil, hub, "u1", config.WebSocketConfig{})
	hub.Register <- client
	hub.Unregister <- client

	require.Eventually(t, shutdownSignalled(client), 2*time.Second, 10*time.Millisecond)

	require.NotPanics(t, func() {
		client.RosterUpdated([]models.Contact{{UID: "b1", Name: "Bob"}})
	})
	assert.Empty(t, client.Send)
	assert.False(t, hub.IsUserConnected("u1"))
}

func TestClientShutdownIsIdempotent(t *testing.T) {
	client := NewClient(nil, NewHub(), "u1", config.WebSocketConfig{})

	require.NotPanics(t, func() {
		client.Shutdown()
		client.Shutdown()
	})
}

func TestNormalizeWSConfig(t *testing.T) {
	cfg := normalizeWSConfig(config.WebSocketConfig{})
	assert.Equal(t, defaultWriteWait, cfg.WriteWait)
	assert.Equal(t, defaultPongWait, cfg.PongWait)
	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Less(t, cfg.PingPeriod, cfg.PongWait)

	cfg = normalizeWSConfig(config.WebSocketConfig{
		PongWait:   10 * time.Second,
		PingPeriod: 20 * time.Second,
	})
	assert.Less(t, cfg.PingPeriod, cfg.PongWait, "ping period must leave room for the pong")

	cfg = normalizeWSConfig(config.WebSocketConfig{
		WriteWait:      2 * time.Second,
		PongWait:       30 * time.Second,
		PingPeriod:     25 * time.Second,
		MaxMessageSize: 1024,
	})
	assert.Equal(t, 2*time.Second, cfg.WriteWait)
	assert.Equal(t, 25*time.Second, cfg.PingPeriod)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
}
