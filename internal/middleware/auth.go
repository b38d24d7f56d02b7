package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mjolobid-backend/internal/models"
	"mjolobid-backend/internal/services"

	"github.com/rs/zerolog/log"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenValidator checks access tokens. *services.UserService implements it.
type TokenValidator interface {
	ValidateJWT(token string) (*services.Claims, error)
	CheckActive(ctx context.Context, userID string) error
	TouchLastSeen(ctx context.Context, userID string)
}

// AuthMiddleware creates a middleware for JWT authentication
func AuthMiddleware(users TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := users.ValidateJWT(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if err := users.CheckActive(r.Context(), claims.UserID); err != nil {
				if errors.Is(err, models.ErrInactiveAccount) {
					respondError(w, "Account is inactive", http.StatusUnauthorized)
					return
				}
				log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to check account status")
				respondError(w, "Failed to check account status", http.StatusInternalServerError)
				return
			}
			users.TouchLastSeen(r.Context(), claims.UserID)

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly rejects requests from non-staff users. It must run after AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil || !claims.IsStaff {
			respondError(w, "Staff access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithClaims stores claims in ctx, as AuthMiddleware does
func WithClaims(ctx context.Context, claims *services.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims extracts the token claims from context
func GetClaims(ctx context.Context) *services.Claims {
	claims, _ := ctx.Value(claimsKey).(*services.Claims)
	return claims
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

// ValidateWebSocketToken validates JWT token from WebSocket query parameter
// and rejects deactivated accounts
func ValidateWebSocketToken(ctx context.Context, token string, users TokenValidator) (*services.Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("token required")
	}
	claims, err := users.ValidateJWT(token)
	if err != nil {
		return nil, err
	}
	if err := users.CheckActive(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return claims, nil
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
