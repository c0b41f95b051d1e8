package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"pairchat/internal/config"
	"pairchat/internal/models"
	"pairchat/internal/session"
	"pairchat/internal/utils"
	"pairchat/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Fallbacks when the config leaves a websocket tunable unset
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024

	// Buffer size for client send channel
	sendBufferSize = 256

	// Timeout for store writes triggered by inbound frames
	sendTimeout = 10 * time.Second
)

var newline = []byte{'\n'}

// Client is one signed-in WebSocket connection. It feeds inbound frames
// to the session controller and implements session.Sink to push the
// controller's derived state back out.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte

	UserID      string
	ConnectedAt time.Time

	controller *session.Controller
	cfg        config.WebSocketConfig

	// done signals the pumps to exit. Send is never closed: subscription
	// callbacks may still be pushing frames while the client tears down,
	// and a send on a closed channel would panic the process.
	done      chan struct{}
	closeOnce sync.Once

	// searchQuery is the last roster filter the client asked for; roster
	// pushes are filtered through it. Written by the read pump, read
	// from subscription callbacks.
	mu          sync.RWMutex
	searchQuery string
}

// NewClient creates a client for an authenticated connection
func NewClient(conn *websocket.Conn, hub *Hub, userID string, cfg config.WebSocketConfig) *Client {
	return &Client{
		Conn:        conn,
		Hub:         hub,
		Send:        make(chan []byte, sendBufferSize),
		UserID:      userID,
		ConnectedAt: time.Now(),
		cfg:         normalizeWSConfig(cfg),
		done:        make(chan struct{}),
	}
}

func normalizeWSConfig(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	// The ping period must leave room for the pong to come back.
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	return cfg
}

// Shutdown signals the pumps to exit and stops push from queuing further
// frames. Safe to call more than once and from any goroutine.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Bind attaches the session controller driving this connection. Must be
// called before ReadPump.
func (c *Client) Bind(controller *session.Controller) {
	c.controller = controller
}

// ReadPump pumps frames from the WebSocket connection into the session
// controller
func (c *Client) ReadPump() {
	defer func() {
		if c.controller != nil {
			c.controller.Close()
		}
		c.Shutdown()
		c.Hub.Unregister <- c
		c.Conn.Close()
		logger.LogUserAction(c.UserID, "ws_disconnected", map[string]interface{}{
			"duration_s": time.Since(c.ConnectedAt).Seconds(),
		})
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	logger.LogUserAction(c.UserID, "ws_connected", nil)

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Error("WebSocket read error")
			}
			break
		}

		wsMsg, err := c.parseMessage(message)
		if err != nil {
			c.sendError(utils.CodeInvalidRequest, fmt.Sprintf("Invalid message format: %v", err))
			continue
		}

		if err := wsMsg.Validate(); err != nil {
			c.sendError(utils.CodeInvalidRequest, err.Error())
			continue
		}

		c.handleMessage(wsMsg)
	}
}

// WritePump pumps frames from the send channel to the WebSocket
// connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) parseMessage(data []byte) (*WSMessage, error) {
	var wsMsg WSMessage
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		return nil, err
	}
	return &wsMsg, nil
}

func (c *Client) handleMessage(msg *WSMessage) {
	switch msg.Type {
	case MessageTypeSelectContact:
		if err := c.controller.SelectContact(msg.stringData("uid")); err != nil {
			c.sendError(utils.CodeInvalidRequest, err.Error())
		}

	case MessageTypeSendMessage:
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := c.controller.Send(ctx, msg.Content)
		cancel()
		if err != nil {
			c.handleSendError(err)
			return
		}
		c.sendSuccess(msg.ID)

	case MessageTypeDraft:
		c.controller.DraftEdited()

	case MessageTypeSearch:
		c.mu.Lock()
		c.searchQuery = msg.stringData("query")
		c.mu.Unlock()
		c.pushRoster(c.controller.Roster())

	case MessageTypeHeartbeat:
		// Pong handling covers liveness; nothing else to do.

	default:
		c.sendError(utils.CodeInvalidRequest, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// handleSendError maps controller errors to client-facing frames. The
// client keeps its draft on any failure.
func (c *Client) handleSendError(err error) {
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		c.sendError(utils.CodeInvalidRequest, "Message is empty")
	case errors.Is(err, session.ErrMessageTooLong):
		c.sendError(utils.CodeInvalidRequest, "Message is too long")
	case errors.Is(err, session.ErrNoContactSelected):
		c.sendError(utils.CodeInvalidRequest, "No contact selected")
	case errors.Is(err, session.ErrSessionClosed):
		c.sendError(utils.CodeInvalidRequest, "Session is closed")
	default:
		logger.LogError(err, "Send failed", map[string]interface{}{
			"user_id": c.UserID,
		})
		c.sendError(utils.CodeNetworkError, "Failed to send message. Please try again.")
	}
}

// session.Sink implementation

// RosterUpdated pushes the contact list, filtered through the client's
// active search query
func (c *Client) RosterUpdated(contacts []models.Contact) {
	c.pushRoster(contacts)
}

// ThreadUpdated pushes the active thread's messages
func (c *Client) ThreadUpdated(messages []models.Message) {
	c.push(NewWSMessage(MessageTypeMessages, map[string]interface{}{
		"messages": messages,
	}))
}

// ContactTyping pushes a typing-state change for one contact
func (c *Client) ContactTyping(uid string, typing bool) {
	c.push(NewWSMessage(MessageTypeTyping, map[string]interface{}{
		"uid":    uid,
		"typing": typing,
	}))
}

func (c *Client) pushRoster(contacts []models.Contact) {
	c.mu.RLock()
	query := c.searchQuery
	c.mu.RUnlock()

	c.push(NewWSMessage(MessageTypeRoster, map[string]interface{}{
		"contacts": session.FilterRoster(contacts, query),
	}))
}

func (c *Client) push(msg *WSMessage) {
	data, err := msg.ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal frame")
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.Send <- data:
	case <-c.done:
	default:
		logger.WithFields(map[string]interface{}{
			"user_id": c.UserID,
			"type":    msg.Type,
		}).Warn("Send buffer full, dropping frame")
	}
}

func (c *Client) sendError(code, message string) {
	msg := NewWSMessage(MessageTypeError, map[string]interface{}{
		"code": code,
	})
	msg.Content = message
	c.push(msg)
}

func (c *Client) sendSuccess(inReplyTo string) {
	c.push(NewWSMessage(MessageTypeSuccess, map[string]interface{}{
		"in_reply_to": inReplyTo,
	}))
}
