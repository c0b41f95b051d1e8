package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType represents different types of WebSocket frames
type MessageType string

const (
	// Client to server
	MessageTypeSelectContact MessageType = "select_contact"
	MessageTypeSendMessage   MessageType = "send_message"
	MessageTypeDraft         MessageType = "draft"
	MessageTypeSearch        MessageType = "search"
	MessageTypeHeartbeat     MessageType = "heartbeat"

	// Server to client
	MessageTypeRoster   MessageType = "roster"
	MessageTypeMessages MessageType = "messages"
	MessageTypeTyping   MessageType = "typing"
	MessageTypeError    MessageType = "error"
	MessageTypeSuccess  MessageType = "success"
)

// WSMessage represents a WebSocket frame in either direction
type WSMessage struct {
	ID        string                 `json:"id"`
	Type      MessageType            `json:"type"`
	Content   string                 `json:"content,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewWSMessage creates an outbound frame with a fresh id
func NewWSMessage(msgType MessageType, data map[string]interface{}) *WSMessage {
	return &WSMessage{
		ID:        uuid.New().String(),
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Validate checks basic frame integrity
func (m *WSMessage) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message type is required")
	}

	switch m.Type {
	case MessageTypeSelectContact:
		if m.stringData("uid") == "" {
			return fmt.Errorf("select_contact requires a uid")
		}
	case MessageTypeSendMessage:
		if m.Content == "" {
			return fmt.Errorf("send_message requires content")
		}
	}

	return nil
}

// stringData reads a string field out of the data payload
func (m *WSMessage) stringData(key string) string {
	if m.Data == nil {
		return ""
	}
	if v, ok := m.Data[key].(string); ok {
		return v
	}
	return ""
}

// ToJSON serializes the message
func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
