package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket frame types
const (
	FrameNotification = "notification"
	FrameChatMessage  = "chat_message"
	FrameTyping       = "typing"
	FrameBidUpdate    = "bid_update"
	FrameMarkRead     = "mark_read"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameError        = "error"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type             string      `json:"type"`
	Timestamp        int64       `json:"timestamp,omitempty"`
	ConversationID   string      `json:"conversation_id,omitempty"`
	NotificationID   string      `json:"notification_id,omitempty"`
	UserID           string      `json:"user_id,omitempty"`
	Title            string      `json:"title,omitempty"`
	NotificationType string      `json:"notification_type,omitempty"`
	Message          string      `json:"message,omitempty"`
	Data             interface{} `json:"data,omitempty"`
}

// Conn is the part of *websocket.Conn the hub writes to
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one registered connection. A user may hold several.
type Client struct {
	UserID string

	conn Conn
	mu   sync.Mutex
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Send writes one message to this connection only
func (c *Client) Send(message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.write(data)
}

// WSHub manages WebSocket connections
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[string]map[*Client]struct{})}
}

// Register adds a connection for a user
func (h *WSHub) Register(userID string, conn Conn) *Client {
	c := &Client{UserID: userID, conn: conn}

	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Int("connections", n).Msg("WebSocket connection registered")
	return c
}

// Unregister removes and closes one connection
func (h *WSHub) Unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.UserID]
	if ok {
		if _, found := set[c]; !found {
			ok = false
		}
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()

	if ok {
		c.conn.Close()
		log.Info().Str("user_id", c.UserID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser sends a message to every connection of a user. A connection whose
// write fails is dropped.
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	delivered := 0
	for _, c := range targets {
		if err := c.write(data); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Dropping WebSocket connection after failed write")
			h.Unregister(c)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("failed to send message to user %s", userID)
	}
	return nil
}

// IsOnline checks if a user has at least one connection
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// CloseAll closes every connection, used on shutdown
func (h *WSHub) CloseAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.conn.Close()
		}
	}
}
