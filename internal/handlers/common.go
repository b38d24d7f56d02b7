package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mjolobid-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends v as a JSON body
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrInactiveAccount):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrInvalidCode):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrSubscriptionRequired), errors.Is(err, models.ErrPremiumRequired),
		errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError logs err and answers with its mapped status. Internal
// errors are not echoed to the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := errorStatus(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg(msg)

	if status == http.StatusInternalServerError {
		respondError(w, msg, status)
		return
	}
	respondError(w, err.Error(), status)
}

// decodeJSON reads a JSON body into dst, answering 400 itself on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// queryInt returns the integer query parameter name, or def when it is absent or malformed
func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return def
}

// queryDecimal returns the decimal query parameter name, or nil when it is absent or malformed
func queryDecimal(r *http.Request, name string) *decimal.Decimal {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := decimal.NewFromString(s); err == nil {
			return &v
		}
	}
	return nil
}

// queryBool is true for "1" and "true"
func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
