package handlers

import (
	"net/http"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OfferHandler handles offer-related HTTP requests
type OfferHandler struct {
	offerService *services.OfferService
}

// NewOfferHandler creates a new offer handler
func NewOfferHandler(offerService *services.OfferService) *OfferHandler {
	return &OfferHandler{offerService: offerService}
}

type placeBidRequest struct {
	BidAmount decimal.Decimal `json:"bid_amount"`
	Message   string          `json:"message"`
}

type chooseOfferBidRequest struct {
	OfferBidID string `json:"offer_bid_id"`
}

// Create handles POST /api/v1/offers
func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.OfferInput
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.offerService.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create offer")
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

// Browse handles GET /api/v1/offers
func (h *OfferHandler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.offerService.Browse(r.Context(), middleware.GetUserID(r.Context()),
		q.Get("category"), q.Get("location"), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		respondServiceError(w, r, err, "Failed to browse offers")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/offers/{offer_id}
func (h *OfferHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.offerService.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get offer")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Update handles PUT /api/v1/offers/{offer_id}
func (h *OfferHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req services.OfferInput
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.offerService.Update(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update offer")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Delete handles DELETE /api/v1/offers/{offer_id}
func (h *OfferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.offerService.Delete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id")); err != nil {
		respondServiceError(w, r, err, "Failed to delete offer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /api/v1/offers/{offer_id}/cancel
func (h *OfferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.offerService.Cancel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to cancel offer")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// PlaceBid handles POST /api/v1/offers/{offer_id}/bids
func (h *OfferHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.offerService.PlaceBid(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"), req.BidAmount, req.Message)
	if err != nil {
		respondServiceError(w, r, err, "Failed to place bid")
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

// ListBids handles GET /api/v1/offers/{offer_id}/bids
func (h *OfferHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	list, err := h.offerService.ListBids(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list offer bids")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// WithdrawBid handles DELETE /api/v1/offers/{offer_id}/bids
func (h *OfferHandler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	if err := h.offerService.WithdrawBid(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id")); err != nil {
		respondServiceError(w, r, err, "Failed to withdraw bid")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChooseBid handles POST /api/v1/offers/{offer_id}/choose
func (h *OfferHandler) ChooseBid(w http.ResponseWriter, r *http.Request) {
	var req chooseOfferBidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OfferBidID == "" {
		respondError(w, "offer_bid_id is required", http.StatusBadRequest)
		return
	}
	res, err := h.offerService.ChooseBid(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"), req.OfferBidID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to choose bid")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Complete handles POST /api/v1/offers/{offer_id}/complete
func (h *OfferHandler) Complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.offerService.Complete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to complete offer")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Boost handles POST /api/v1/offers/{offer_id}/boost
func (h *OfferHandler) Boost(w http.ResponseWriter, r *http.Request) {
	until, err := h.offerService.Boost(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "offer_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to boost offer")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"boost_expires": until})
}

// MyOffers handles GET /api/v1/offers/mine
func (h *OfferHandler) MyOffers(w http.ResponseWriter, r *http.Request) {
	list, err := h.offerService.MyOffers(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list offers")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// MyBids handles GET /api/v1/offers/bids/mine
func (h *OfferHandler) MyBids(w http.ResponseWriter, r *http.Request) {
	list, err := h.offerService.MyBids(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list offer bids")
		return
	}
	respondJSON(w, http.StatusOK, list)
}
