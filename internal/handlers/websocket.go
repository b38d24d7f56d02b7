package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxFrameBytes = 8 << 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // mobile clients send no Origin
	},
}

// TypingRelay is the part of *services.MessageService the socket uses
type TypingRelay interface {
	Typing(ctx context.Context, userID, conversationID string) error
}

// NotificationReader is the part of *services.NotificationService the socket uses
type NotificationReader interface {
	MarkRead(ctx context.Context, userID, id string) error
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub           *services.WSHub
	users         middleware.TokenValidator
	messages      TypingRelay
	notifications NotificationReader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	users middleware.TokenValidator,
	messages TypingRelay,
	notifications NotificationReader,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		users:         users,
		messages:      messages,
		notifications: notifications,
	}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ValidateWebSocketToken(r.Context(), r.URL.Query().Get("token"), h.users)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := h.hub.Register(userID, conn)
	defer h.hub.Unregister(client)

	ctx := r.Context()
	h.users.TouchLastSeen(ctx, userID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(client, "Invalid message format")
			continue
		}
		if err := h.handleMessage(ctx, client, msg); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
			h.sendError(client, err.Error())
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, client *services.Client, msg services.WSMessage) error {
	switch msg.Type {
	case services.FramePing:
		h.users.TouchLastSeen(ctx, client.UserID)
		return client.Send(services.WSMessage{Type: services.FramePong, Timestamp: time.Now().UnixMilli()})
	case services.FrameTyping:
		if msg.ConversationID == "" {
			h.sendError(client, "conversation_id is required")
			return nil
		}
		return h.messages.Typing(ctx, client.UserID, msg.ConversationID)
	case services.FrameMarkRead:
		if msg.NotificationID == "" {
			h.sendError(client, "notification_id is required")
			return nil
		}
		return h.notifications.MarkRead(ctx, client.UserID, msg.NotificationID)
	default:
		h.sendError(client, "Unknown message type")
		return nil
	}
}

// sendError sends an error frame to this connection only
func (h *WebSocketHandler) sendError(client *services.Client, message string) {
	if err := client.Send(services.WSMessage{Type: services.FrameError, Message: message}); err != nil {
		log.Debug().Err(err).Str("user_id", client.UserID).Msg("Failed to send error frame")
	}
}
