package handlers

import (
	"net/http"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// AdminHandler handles the staff endpoints
type AdminHandler struct {
	adminService   *services.AdminService
	paymentService *services.PaymentService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(adminService *services.AdminService, paymentService *services.PaymentService) *AdminHandler {
	return &AdminHandler{
		adminService:   adminService,
		paymentService: paymentService,
	}
}

type broadcastRequest struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	UserType string `json:"user_type"`
}

type staffRequest struct {
	Message string `json:"message"`
}

type categoryRequest struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

type processWithdrawalRequest struct {
	Notes string `json:"notes"`
}

// Dashboard handles GET /api/v1/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.Dashboard(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to load dashboard")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Users handles GET /api/v1/admin/users
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	list, err := h.adminService.Users(r.Context(), r.URL.Query().Get("search"), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list users")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// ToggleActive handles POST /api/v1/admin/users/{user_id}/toggle-active
func (h *AdminHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	u, err := h.adminService.ToggleActive(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to toggle user")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// ToggleVerified handles POST /api/v1/admin/users/{user_id}/toggle-verified
func (h *AdminHandler) ToggleVerified(w http.ResponseWriter, r *http.Request) {
	u, err := h.adminService.ToggleVerified(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to toggle user")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// PendingWithdrawals handles GET /api/v1/admin/withdrawals
func (h *AdminHandler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.paymentService.PendingWithdrawals(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to list withdrawals")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// CompleteWithdrawal handles POST /api/v1/admin/withdrawals/{withdrawal_id}/complete
func (h *AdminHandler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.processWithdrawal(w, r, true)
}

// FailWithdrawal handles POST /api/v1/admin/withdrawals/{withdrawal_id}/fail
func (h *AdminHandler) FailWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.processWithdrawal(w, r, false)
}

func (h *AdminHandler) processWithdrawal(w http.ResponseWriter, r *http.Request, complete bool) {
	var req processWithdrawalRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	adminID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "withdrawal_id")

	wr, err := h.paymentService.ProcessWithdrawal(r.Context(), adminID, id, complete, req.Notes)
	if err != nil {
		respondServiceError(w, r, err, "Failed to process withdrawal")
		return
	}
	log.Info().
		Str("admin_id", adminID).
		Str("withdrawal_id", id).
		Bool("completed", complete).
		Msg("Withdrawal processed")
	respondJSON(w, http.StatusOK, wr)
}

// Broadcast handles POST /api/v1/admin/broadcast
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.adminService.Broadcast(r.Context(), req.Title, req.Message, req.UserType)
	if err != nil {
		respondServiceError(w, r, err, "Failed to queue broadcast")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"recipients": n})
}

// NotifyStaff handles POST /api/v1/admin/notify-staff
func (h *AdminHandler) NotifyStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.adminService.NotifyStaff(r.Context(), req.Message)
	if err != nil {
		respondServiceError(w, r, err, "Failed to notify staff")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"recipients": n})
}

// CreateCategory handles POST /api/v1/admin/categories
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.adminService.CreateCategory(r.Context(), req.Name, req.Icon, req.Description)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create category")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// RecentTransactions handles GET /api/v1/admin/transactions
func (h *AdminHandler) RecentTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := h.adminService.RecentTransactions(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, list)
}
