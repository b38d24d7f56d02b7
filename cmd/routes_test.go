package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mjolobid-backend/internal/handlers"
	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/services"

	"github.com/stretchr/testify/assert"
)

type stubAuth struct{}

func (stubAuth) ValidateJWT(token string) (*services.Claims, error) {
	if token == "member" {
		return &services.Claims{UserID: "u1"}, nil
	}
	return nil, errors.New("bad token")
}

func (stubAuth) CheckActive(ctx context.Context, userID string) error { return nil }

func (stubAuth) TouchLastSeen(ctx context.Context, userID string) {}

func testRouter() http.Handler {
	users := services.NewUserService(nil, nil, services.LogMailer{}, nil, market.DefaultRules(), "secret", 0)
	return newRouter(routes{
		users:         handlers.NewUserHandler(users),
		bids:          handlers.NewBidHandler(nil),
		offers:        handlers.NewOfferHandler(nil),
		payments:      handlers.NewPaymentHandler(nil),
		messages:      handlers.NewMessageHandler(nil),
		notifications: handlers.NewNotificationHandler(nil),
		admin:         handlers.NewAdminHandler(nil, nil),
		ws:            handlers.NewWebSocketHandler(services.NewWSHub(), stubAuth{}, nil, nil),
		auth:          stubAuth{},
	})
}

func TestRouter(t *testing.T) {
	r := testRouter()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"preflight", http.MethodOptions, "/api/v1/bids", "", http.StatusOK},
		{"protected without token", http.MethodGet, "/api/v1/wallet", "", http.StatusUnauthorized},
		{"admin for members", http.MethodGet, "/api/v1/admin/dashboard", "member", http.StatusForbidden},
		{"public login validates", http.MethodPost, "/api/v1/auth/login", "", http.StatusBadRequest},
		{"websocket without token", http.MethodGet, "/ws", "", http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/api/v1/pairs", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRouter_CORSHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/offers", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
