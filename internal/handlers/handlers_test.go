package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mjolobid-backend/internal/gateway"
	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: title is required", models.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("bid: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrAlreadyExists, http.StatusConflict},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrInactiveAccount, http.StatusForbidden},
		{models.ErrInvalidCredentials, http.StatusUnauthorized},
		{models.ErrSubscriptionRequired, http.StatusPaymentRequired},
		{models.ErrInsufficientFunds, http.StatusPaymentRequired},
		{models.ErrQueueFull, http.StatusServiceUnavailable},
		{fmt.Errorf("paynow: %w", models.ErrGatewayUnavailable), http.StatusBadGateway},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestRespondServiceError_HidesInternalErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)

	rec := httptest.NewRecorder()
	respondServiceError(rec, req, errors.New("pq: password authentication failed"), "Failed to get wallet")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to get wallet"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	respondServiceError(rec, req, fmt.Errorf("%w: amount must be positive", models.ErrValidation), "Failed")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "amount must be positive")
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&offset=abc&min_amount=12.50&max_amount=x&unread=true", nil)

	assert.Equal(t, 5, queryInt(req, "limit", 20))
	assert.Equal(t, 0, queryInt(req, "offset", 0))
	assert.Equal(t, 7, queryInt(req, "missing", 7))

	min := queryDecimal(req, "min_amount")
	require.NotNil(t, min)
	assert.Equal(t, "12.5", min.String())
	assert.Nil(t, queryDecimal(req, "max_amount"))

	assert.True(t, queryBool(req, "unread"))
	assert.False(t, queryBool(req, "missing"))
}

func TestLogin_RejectsBadBodies(t *testing.T) {
	h := NewUserHandler(services.NewUserService(nil, nil, services.LogMailer{}, nil, market.DefaultRules(), "secret", 0))

	for _, body := range []string{`not json`, `{"login":"","password":"x"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

type stubPayments struct {
	services.PaymentStore
	txs map[string]*models.Transaction
}

func (s *stubPayments) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	t, ok := s.txs[reference]
	if !ok {
		return nil, fmt.Errorf("transaction: %w", models.ErrNotFound)
	}
	return t, nil
}

type stubGateway struct {
	status *gateway.PaymentStatus
	err    error
}

func (g *stubGateway) Name() string { return gateway.Paynow }

func (g *stubGateway) Initiate(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	return nil, errors.New("not used")
}

func (g *stubGateway) Verify(ctx context.Context, ref string) (*gateway.PaymentStatus, error) {
	return g.status, g.err
}

func (g *stubGateway) ParseWebhook(body []byte) (*gateway.PaymentStatus, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.status, nil
}

type stubGateways map[string]gateway.Gateway

func (s stubGateways) Get(name string) (gateway.Gateway, error) {
	if g, ok := s[name]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrGatewayUnavailable, name)
}

func (s stubGateways) Names() []string { return []string{gateway.Paynow} }

func webhookRouter(gw *stubGateway) http.Handler {
	payments := &stubPayments{txs: map[string]*models.Transaction{
		"MJB-1": {Reference: "MJB-1", Gateway: gateway.Paynow, Status: models.TxPending},
	}}
	svc := services.NewPaymentService(payments, nil, stubGateways{gateway.Paynow: gw}, nil, market.DefaultRules(), "https://mjolobid.example")
	h := NewPaymentHandler(svc)

	r := chi.NewRouter()
	r.Post("/api/v1/payments/webhooks/{gateway}", h.Webhook)
	r.Get("/api/v1/payments/gateways", h.Gateways)
	return r
}

func TestWebhook(t *testing.T) {
	pending := &stubGateway{status: &gateway.PaymentStatus{Reference: "MJB-1", Status: models.TxPending, Verified: true}}

	tests := []struct {
		name string
		path string
		gw   *stubGateway
		want int
	}{
		{"still pending", "/api/v1/payments/webhooks/paynow", pending, http.StatusOK},
		{"bad signature", "/api/v1/payments/webhooks/paynow", &stubGateway{err: gateway.ErrBadSignature}, http.StatusBadRequest},
		{"unknown reference", "/api/v1/payments/webhooks/paynow", &stubGateway{status: &gateway.PaymentStatus{Reference: "MJB-404", Verified: true}}, http.StatusNotFound},
		{"disabled gateway", "/api/v1/payments/webhooks/pesepay", pending, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader("status=Paid"))
			rec := httptest.NewRecorder()
			webhookRouter(tt.gw).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGateways(t *testing.T) {
	rec := httptest.NewRecorder()
	webhookRouter(&stubGateway{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/gateways", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"paynow"}, body["gateways"])
}
