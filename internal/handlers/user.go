package handlers

import (
	"net/http"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// UserHandler handles account and profile HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type codeRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type locationRequest struct {
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`
	Location  string          `json:"location"`
	City      string          `json:"city"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

type uploadRequest struct {
	ContentType string `json:"content_type"`
	Caption     string `json:"caption"`
}

type rateRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// Register handles POST /api/v1/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to register user")
		return
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	respondJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "Account created. Check your email for the verification code.",
	})
}

// VerifyEmail handles POST /api/v1/auth/verify
func (h *UserHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.userService.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		respondServiceError(w, r, err, "Failed to verify email")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ResendVerification handles POST /api/v1/auth/verify/resend
func (h *UserHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.userService.ResendVerification(r.Context(), req.Email); err != nil {
		respondServiceError(w, r, err, "Failed to resend verification code")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Login == "" || req.Password == "" {
		respondError(w, "login and password are required", http.StatusBadRequest)
		return
	}

	res, err := h.userService.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		respondServiceError(w, r, err, "Failed to log in")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// RequestPasswordReset handles POST /api/v1/auth/password/reset
func (h *UserHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.userService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respondServiceError(w, r, err, "Failed to request password reset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /api/v1/auth/password/confirm
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.userService.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		respondServiceError(w, r, err, "Failed to reset password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get profile")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateProfile handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req services.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.userService.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update profile")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateLocation handles PUT /api/v1/users/me/location
func (h *UserHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.userService.UpdateLocation(r.Context(), userID, req.Latitude, req.Longitude, req.Location, req.City); err != nil {
		respondServiceError(w, r, err, "Failed to update location")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPushToken handles PUT /api/v1/users/me/push-token; an empty token unregisters the device
func (h *UserHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.userService.SetPushToken(r.Context(), middleware.GetUserID(r.Context()), req.Token); err != nil {
		respondServiceError(w, r, err, "Failed to update push token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProfilePictureUpload handles POST /api/v1/users/me/picture
func (h *UserHandler) ProfilePictureUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	up, err := h.userService.ProfilePictureUpload(r.Context(), middleware.GetUserID(r.Context()), req.ContentType)
	if err != nil {
		respondServiceError(w, r, err, "Failed to generate upload URL")
		return
	}
	respondJSON(w, http.StatusOK, up)
}

// Affiliate handles GET /api/v1/users/me/affiliate
func (h *UserHandler) Affiliate(w http.ResponseWriter, r *http.Request) {
	dash, err := h.userService.Affiliate(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get affiliate dashboard")
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

// PublicProfile handles GET /api/v1/users/{user_id}
func (h *UserHandler) PublicProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.userService.GetPublicProfile(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get profile")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// RateUser handles POST /api/v1/users/{user_id}/rating
func (h *UserHandler) RateUser(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	raterID := middleware.GetUserID(r.Context())
	if err := h.userService.RateUser(r.Context(), raterID, chi.URLParam(r, "user_id"), req.Rating, req.Review); err != nil {
		respondServiceError(w, r, err, "Failed to rate user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
