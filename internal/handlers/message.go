package handlers

import (
	"net/http"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// MessageHandler handles conversation HTTP requests
type MessageHandler struct {
	messageService *services.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

type startConversationRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	OtherUserID string `json:"other_user_id"`
}

type sendMessageRequest struct {
	Content       string  `json:"content"`
	AttachmentKey *string `json:"attachment_key"`
}

// StartConversation handles POST /api/v1/conversations
func (h *MessageHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.messageService.StartConversation(r.Context(), middleware.GetUserID(r.Context()), req.SubjectType, req.SubjectID, req.OtherUserID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to start conversation")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Conversations handles GET /api/v1/conversations
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.messageService.Conversations(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list conversations")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Messages handles GET /api/v1/conversations/{conversation_id}/messages
func (h *MessageHandler) Messages(w http.ResponseWriter, r *http.Request) {
	list, err := h.messageService.Messages(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "conversation_id"), queryInt(r, "page", 0))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list messages")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Send handles POST /api/v1/conversations/{conversation_id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.messageService.Send(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "conversation_id"), req.Content, req.AttachmentKey)
	if err != nil {
		respondServiceError(w, r, err, "Failed to send message")
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// AttachmentUpload handles POST /api/v1/conversations/{conversation_id}/attachments
func (h *MessageHandler) AttachmentUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	up, err := h.messageService.AttachmentUpload(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "conversation_id"), req.ContentType)
	if err != nil {
		respondServiceError(w, r, err, "Failed to generate upload URL")
		return
	}
	respondJSON(w, http.StatusOK, up)
}

// Typing handles GET /api/v1/conversations/{conversation_id}/typing
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	users, err := h.messageService.TypingUsers(r.Context(),
		middleware.GetUserID(r.Context()), chi.URLParam(r, "conversation_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get typing users")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"typing_users": users})
}

// UnreadCount handles GET /api/v1/conversations/unread
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.messageService.UnreadCount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to count unread messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}
