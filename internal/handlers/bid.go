package handlers

import (
	"net/http"

	"mjolobid-backend/internal/middleware"
	"mjolobid-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// BidHandler handles bid-related HTTP requests
type BidHandler struct {
	bidService *services.BidService
}

// NewBidHandler creates a new bid handler
func NewBidHandler(bidService *services.BidService) *BidHandler {
	return &BidHandler{bidService: bidService}
}

type acceptRequest struct {
	Message string `json:"message"`
}

type chooseRequest struct {
	AcceptanceID string `json:"acceptance_id"`
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// Create handles POST /api/v1/bids
func (h *BidHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateBidInput
	if !decodeJSON(w, r, &req) {
		return
	}
	bid, err := h.bidService.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create bid")
		return
	}
	respondJSON(w, http.StatusCreated, bid)
}

// Browse handles GET /api/v1/bids
func (h *BidHandler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := services.BrowseInput{
		CategoryID: q.Get("category"),
		BidType:    q.Get("bid_type"),
		MinAmount:  queryDecimal(r, "min_amount"),
		MaxAmount:  queryDecimal(r, "max_amount"),
		Location:   q.Get("location"),
		Sort:       q.Get("sort"),
		Limit:      queryInt(r, "limit", 20),
		Offset:     queryInt(r, "offset", 0),
	}
	bids, err := h.bidService.Browse(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		respondServiceError(w, r, err, "Failed to browse bids")
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

// Get handles GET /api/v1/bids/{bid_id}
func (h *BidHandler) Get(w http.ResponseWriter, r *http.Request) {
	bid, err := h.bidService.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get bid")
		return
	}
	respondJSON(w, http.StatusOK, bid)
}

// Accept handles POST /api/v1/bids/{bid_id}/accept
func (h *BidHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.bidService.Accept(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"), req.Message)
	if err != nil {
		respondServiceError(w, r, err, "Failed to accept bid")
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// ListAcceptances handles GET /api/v1/bids/{bid_id}/acceptances
func (h *BidHandler) ListAcceptances(w http.ResponseWriter, r *http.Request) {
	list, err := h.bidService.ListAcceptances(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list acceptances")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// WithdrawAcceptance handles DELETE /api/v1/bids/{bid_id}/accept
func (h *BidHandler) WithdrawAcceptance(w http.ResponseWriter, r *http.Request) {
	if err := h.bidService.WithdrawAcceptance(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id")); err != nil {
		respondServiceError(w, r, err, "Failed to withdraw acceptance")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Choose handles POST /api/v1/bids/{bid_id}/choose
func (h *BidHandler) Choose(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AcceptanceID == "" {
		respondError(w, "acceptance_id is required", http.StatusBadRequest)
		return
	}
	userID := middleware.GetUserID(r.Context())
	bidID := chi.URLParam(r, "bid_id")

	res, err := h.bidService.Choose(r.Context(), userID, bidID, req.AcceptanceID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to choose acceptance")
		return
	}
	log.Info().Str("user_id", userID).Str("bid_id", bidID).Msg("Acceptance chosen")
	respondJSON(w, http.StatusOK, res)
}

// Complete handles POST /api/v1/bids/{bid_id}/complete
func (h *BidHandler) Complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.bidService.Complete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to complete bid")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Cancel handles POST /api/v1/bids/{bid_id}/cancel
func (h *BidHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.bidService.Cancel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to cancel bid")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Boost handles POST /api/v1/bids/{bid_id}/boost
func (h *BidHandler) Boost(w http.ResponseWriter, r *http.Request) {
	until, err := h.bidService.Boost(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to boost bid")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"boost_expires": until})
}

// Review handles POST /api/v1/bids/{bid_id}/review
func (h *BidHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rev, err := h.bidService.Review(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"), req.Rating, req.Review)
	if err != nil {
		respondServiceError(w, r, err, "Failed to review bid")
		return
	}
	respondJSON(w, http.StatusCreated, rev)
}

// ImageUpload handles POST /api/v1/bids/{bid_id}/images
func (h *BidHandler) ImageUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	up, err := h.bidService.ImageUpload(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "bid_id"), req.ContentType, req.Caption)
	if err != nil {
		respondServiceError(w, r, err, "Failed to generate upload URL")
		return
	}
	respondJSON(w, http.StatusOK, up)
}

// MyBids handles GET /api/v1/bids/mine
func (h *BidHandler) MyBids(w http.ResponseWriter, r *http.Request) {
	list, err := h.bidService.MyBids(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list bids")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// MyAcceptances handles GET /api/v1/bids/accepted
func (h *BidHandler) MyAcceptances(w http.ResponseWriter, r *http.Request) {
	list, err := h.bidService.MyAcceptances(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list acceptances")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Categories handles GET /api/v1/categories
func (h *BidHandler) Categories(w http.ResponseWriter, r *http.Request) {
	list, err := h.bidService.Categories(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to list categories")
		return
	}
	respondJSON(w, http.StatusOK, list)
}
