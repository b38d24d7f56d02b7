package handlers

import (
	"net/http"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/models"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	notificationService *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// List handles GET /api/v1/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.notificationService.List(r.Context(), middleware.GetUserID(r.Context()),
		queryBool(r, "unread"), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list notifications")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// UnreadCount handles GET /api/v1/notifications/unread
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.notificationService.UnreadCount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to count notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

// MarkRead handles POST /api/v1/notifications/{notification_id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.MarkRead(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "notification_id")); err != nil {
		respondServiceError(w, r, err, "Failed to mark notification read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/v1/notifications/read
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notificationService.MarkAllRead(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to mark notifications read")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

// Settings handles GET /api/v1/notifications/settings
func (h *NotificationHandler) Settings(w http.ResponseWriter, r *http.Request) {
	s, err := h.notificationService.GetSettings(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get notification settings")
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PUT /api/v1/notifications/settings
func (h *NotificationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.NotificationSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.notificationService.UpdateSettings(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update notification settings")
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// TestPush handles POST /api/v1/notifications/test-push
func (h *NotificationHandler) TestPush(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.TestPush(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		respondServiceError(w, r, err, "Failed to send test push")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
