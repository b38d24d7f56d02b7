package handlers

import (
	"io"
	"net/http"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles wallet, gateway and withdrawal HTTP requests
type PaymentHandler struct {
	paymentService *services.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

type paymentMethodRequest struct {
	PaymentType   string `json:"payment_type"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type depositRequest struct {
	Gateway string          `json:"gateway"`
	Amount  decimal.Decimal `json:"amount"`
	Phone   string          `json:"phone"`
}

type subscribeRequest struct {
	SubscriptionType string `json:"subscription_type"`
	Gateway          string `json:"gateway"`
	Phone            string `json:"phone"`
}

type withdrawRequest struct {
	PaymentMethodID string          `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	Notes           string          `json:"notes"`
}

// Wallet handles GET /api/v1/wallet
func (h *PaymentHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.paymentService.Wallet(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get wallet")
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// History handles GET /api/v1/wallet/transactions
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.paymentService.History(r.Context(), middleware.GetUserID(r.Context()),
		r.URL.Query().Get("type"), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// AddPaymentMethod handles POST /api/v1/payment-methods
func (h *PaymentHandler) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.paymentService.AddPaymentMethod(r.Context(), middleware.GetUserID(r.Context()), req.PaymentType, req.AccountNumber, req.AccountName)
	if err != nil {
		respondServiceError(w, r, err, "Failed to add payment method")
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// PaymentMethods handles GET /api/v1/payment-methods
func (h *PaymentHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	list, err := h.paymentService.PaymentMethods(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list payment methods")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// SetPrimaryPaymentMethod handles POST /api/v1/payment-methods/{method_id}/primary
func (h *PaymentHandler) SetPrimaryPaymentMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.paymentService.SetPrimaryPaymentMethod(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "method_id")); err != nil {
		respondServiceError(w, r, err, "Failed to set primary payment method")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePaymentMethod handles DELETE /api/v1/payment-methods/{method_id}
func (h *PaymentHandler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.paymentService.DeletePaymentMethod(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "method_id")); err != nil {
		respondServiceError(w, r, err, "Failed to delete payment method")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deposit handles POST /api/v1/payments/deposit
func (h *PaymentHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.paymentService.Deposit(r.Context(), middleware.GetUserID(r.Context()), req.Gateway, req.Amount, req.Phone)
	if err != nil {
		respondServiceError(w, r, err, "Failed to start deposit")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Subscribe handles POST /api/v1/payments/subscribe
func (h *PaymentHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.paymentService.Subscribe(r.Context(), middleware.GetUserID(r.Context()), req.SubscriptionType, req.Gateway, req.Phone)
	if err != nil {
		respondServiceError(w, r, err, "Failed to start subscription")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Verify handles POST /api/v1/payments/{reference}/verify
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.paymentService.VerifyPayment(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "reference"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to verify payment")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Webhook handles POST /api/v1/payments/webhooks/{gateway}. It is unauthenticated;
// the gateway payload is checked by the gateway client.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "gateway")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.paymentService.HandleWebhook(r.Context(), name, body)
	if err != nil {
		respondServiceError(w, r, err, "Failed to handle payment webhook")
		return
	}
	log.Info().
		Str("gateway", name).
		Str("reference", res.Transaction.Reference).
		Str("status", res.Transaction.Status).
		Bool("applied", res.Applied).
		Msg("Payment webhook processed")
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Withdraw handles POST /api/v1/withdrawals
func (h *PaymentHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wr, err := h.paymentService.Withdraw(r.Context(), middleware.GetUserID(r.Context()), req.PaymentMethodID, req.Amount, req.Notes)
	if err != nil {
		respondServiceError(w, r, err, "Failed to request withdrawal")
		return
	}
	respondJSON(w, http.StatusCreated, wr)
}

// Withdrawals handles GET /api/v1/withdrawals
func (h *PaymentHandler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.paymentService.Withdrawals(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list withdrawals")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Escrow handles GET /api/v1/escrow/{subject_type}/{subject_id}
func (h *PaymentHandler) Escrow(w http.ResponseWriter, r *http.Request) {
	e, err := h.paymentService.Escrow(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "subject_type"), chi.URLParam(r, "subject_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get escrow")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// Subscriptions handles GET /api/v1/subscriptions
func (h *PaymentHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.paymentService.Subscriptions(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list subscriptions")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Gateways handles GET /api/v1/payments/gateways
func (h *PaymentHandler) Gateways(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"gateways": h.paymentService.Gateways()})
}
