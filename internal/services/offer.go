package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Enqueuer accepts bulk notification jobs. *BroadcastQueue implements it.
type Enqueuer interface {
	Enqueue(job BroadcastJob) error
}

// OfferService implements offers posted by female users and the bids men place on them
type OfferService struct {
	offers     OfferStore
	users      UserStore
	categories CategoryStore
	notifier   Notifier
	broadcast  Enqueuer
	rules      market.Rules
	now        func() time.Time
}

// NewOfferService creates a new offer service. broadcast may be nil.
func NewOfferService(offers OfferStore, users UserStore, categories CategoryStore, notifier Notifier, broadcast Enqueuer, rules market.Rules) *OfferService {
	return &OfferService{
		offers:     offers,
		users:      users,
		categories: categories,
		notifier:   notifier,
		broadcast:  broadcast,
		rules:      rules,
		now:        time.Now,
	}
}

// OfferInput is the offer form, used for creation and edits
type OfferInput struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	CategoryID    *string         `json:"category_id"`
	EventDate     *time.Time      `json:"event_date"`
	AvailableDate *time.Time      `json:"available_date"`
	EventLocation string          `json:"event_location"`
	EventAddress  string          `json:"event_address"`
	MinimumBid    decimal.Decimal `json:"minimum_bid"`
}

func (s *OfferService) activeUser(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, models.ErrInactiveAccount
	}
	return u, nil
}

// apply validates in and copies it onto o
func (s *OfferService) apply(ctx context.Context, o *models.Offer, in OfferInput, now time.Time) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return validationError("title is required")
	}
	if in.MinimumBid.IsNegative() {
		return validationError("minimum bid cannot be negative")
	}
	if in.MinimumBid.GreaterThan(s.rules.MaxBid) {
		return validationError("minimum bid cannot exceed $%s", s.rules.MaxBid.StringFixed(2))
	}
	if in.CategoryID != nil && *in.CategoryID != "" {
		ok, err := s.categories.Exists(ctx, *in.CategoryID)
		if err != nil {
			return err
		}
		if !ok {
			return validationError("unknown category")
		}
	}

	o.ExpiresAt = nil
	if in.EventDate != nil {
		if err := s.rules.ValidateEventDate(*in.EventDate, now); err != nil {
			return err
		}
		exp := s.rules.ExpiresAt(*in.EventDate)
		o.ExpiresAt = &exp
	}

	o.Title = in.Title
	o.Description = in.Description
	o.CategoryID = in.CategoryID
	o.EventDate = in.EventDate
	o.AvailableDate = in.AvailableDate
	o.EventLocation = in.EventLocation
	o.EventAddress = in.EventAddress
	o.MinimumBid = in.MinimumBid
	o.CommissionAmount = market.Commission(in.MinimumBid, s.rules.CommissionRate)
	o.UpdatedAt = now
	return nil
}

// Create posts an offer for a female user and announces it to active male users
func (s *OfferService) Create(ctx context.Context, userID string, in OfferInput) (*models.Offer, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsFemale() {
		return nil, fmt.Errorf("%w: only female users can create offers", models.ErrForbidden)
	}

	now := s.now()
	o := &models.Offer{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    models.StatusPending,
		CreatedAt: now,
	}
	if err := s.apply(ctx, o, in, now); err != nil {
		return nil, err
	}
	if err := s.offers.Create(ctx, o); err != nil {
		return nil, err
	}
	log.Info().Str("offer_id", o.ID).Str("user_id", userID).Msg("Offer created")

	s.announce(ctx, user, o)
	return o, nil
}

func (s *OfferService) announce(ctx context.Context, creator *models.User, o *models.Offer) {
	if s.broadcast == nil {
		return
	}
	ids, err := s.users.ListActiveIDs(ctx, models.UserTypeMale)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list offer audience")
		return
	}
	if len(ids) == 0 {
		return
	}
	err = s.broadcast.Enqueue(BroadcastJob{
		UserIDs: ids,
		Type:    models.NotifSystemAnnouncement,
		Title:   "New Offer Available!",
		Message: fmt.Sprintf("%s created a new offer: %s - Starting at $%s", creator.Username, o.Title, o.MinimumBid.StringFixed(2)),
	})
	if err != nil {
		log.Warn().Err(err).Str("offer_id", o.ID).Msg("Failed to enqueue offer announcement")
	}
}

// Browse lists open offers for male users
func (s *OfferService) Browse(ctx context.Context, userID, categoryID, location string, limit, offset int) ([]models.Offer, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsMale() {
		return nil, fmt.Errorf("%w: only male users can browse offers", models.ErrForbidden)
	}
	limit, offset = page(limit, offset, 20, 100)
	list, err := s.offers.Browse(ctx, models.OfferFilter{
		ViewerID:   userID,
		CategoryID: categoryID,
		Location:   location,
		Now:        s.now(),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Offer{}
	}
	return list, nil
}

// Get returns an offer and counts a view for non-owners
func (s *OfferService) Get(ctx context.Context, viewerID, offerID string) (*models.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if viewerID != o.UserID {
		if err := s.offers.RecordView(ctx, offerID, viewerID); err != nil {
			log.Warn().Err(err).Str("offer_id", offerID).Msg("Failed to record offer view")
		}
	}
	return o, nil
}

// Update edits the owner's pending offer
func (s *OfferService) Update(ctx context.Context, userID, offerID string, in OfferInput) (*models.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: only the owner can edit an offer", models.ErrForbidden)
	}
	if o.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: only pending offers can be edited", models.ErrInvalidTransition)
	}
	if err := s.apply(ctx, o, in, s.now()); err != nil {
		return nil, err
	}
	if err := s.offers.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Delete cancels the owner's pending offer and rejects its bids
func (s *OfferService) Delete(ctx context.Context, userID, offerID string) error {
	res, err := s.offers.Cancel(ctx, offerID, userID, true, s.now())
	if err != nil {
		return err
	}
	s.notifyCancelled(ctx, res)
	return nil
}

// Cancel cancels a pending or accepted offer and refunds a held escrow
func (s *OfferService) Cancel(ctx context.Context, userID, offerID string) (*models.SettlementResult, error) {
	res, err := s.offers.Cancel(ctx, offerID, userID, false, s.now())
	if err != nil {
		return nil, err
	}
	s.notifyCancelled(ctx, res)
	return res, nil
}

func (s *OfferService) notifyCancelled(ctx context.Context, res *models.SettlementResult) {
	o, err := s.offers.GetByID(ctx, res.SubjectID)
	if err != nil {
		log.Warn().Err(err).Str("offer_id", res.SubjectID).Msg("Failed to load cancelled offer")
		return
	}
	owner := ""
	if u, err := s.users.GetByID(ctx, o.UserID); err == nil {
		owner = u.Username
	}
	log.Info().Str("offer_id", o.ID).Msg("Offer cancelled")
	for _, id := range res.AffectedUserIDs {
		notify(ctx, s.notifier, NotificationInput{
			UserID:            id,
			Type:              models.NotifBidCancelled,
			Title:             "Offer Cancelled",
			Message:           fmt.Sprintf("%s has cancelled their offer: %s", owner, o.Title),
			RelatedObjectType: models.SubjectOffer,
			RelatedObjectID:   o.ID,
		})
	}
}

// PlaceBid records a male user's bid on an offer
func (s *OfferService) PlaceBid(ctx context.Context, userID, offerID string, amount decimal.Decimal, message string) (*models.OfferBid, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsMale() {
		return nil, fmt.Errorf("%w: only male users can bid on offers", models.ErrForbidden)
	}
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if o.UserID == userID {
		return nil, fmt.Errorf("%w: cannot bid on your own offer", models.ErrForbidden)
	}
	if !o.IsOpen(now) {
		return nil, fmt.Errorf("%w: offer is no longer open", models.ErrInvalidTransition)
	}
	if err := s.rules.ValidateOfferBid(amount, o.MinimumBid); err != nil {
		return nil, err
	}

	b := &models.OfferBid{
		ID:        uuid.New().String(),
		OfferID:   offerID,
		BidderID:  userID,
		BidAmount: amount,
		Message:   strings.TrimSpace(message),
		Status:    models.CandidatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.offers.PlaceBid(ctx, b, now); err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, NotificationInput{
		UserID:            o.UserID,
		Type:              models.NotifBidAccepted,
		Title:             "New Bid on Your Offer!",
		Message:           fmt.Sprintf("%s has placed a $%s bid on your offer: %s", user.Username, amount.StringFixed(2), o.Title),
		RelatedObjectType: models.SubjectOffer,
		RelatedObjectID:   offerID,
	})
	return b, nil
}

// ListBids returns the bids on an offer to its owner
func (s *OfferService) ListBids(ctx context.Context, userID, offerID string) ([]models.OfferBid, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: only the owner can see bids", models.ErrForbidden)
	}
	list, err := s.offers.ListBids(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.OfferBid{}
	}
	return list, nil
}

// WithdrawBid withdraws the caller's pending bid
func (s *OfferService) WithdrawBid(ctx context.Context, userID, offerID string) error {
	return s.offers.WithdrawBid(ctx, offerID, userID, s.now())
}

// ChooseBid selects a bid and holds its amount in escrow from the bidder's wallet
func (s *OfferService) ChooseBid(ctx context.Context, ownerID, offerID, offerBidID string) (*models.SelectionResult, error) {
	res, err := s.offers.SelectBid(ctx, offerID, offerBidID, ownerID, s.rules, s.now())
	if err != nil {
		return nil, err
	}
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	owner := ""
	if u, err := s.users.GetByID(ctx, ownerID); err == nil {
		owner = u.Username
	}
	log.Info().Str("offer_id", offerID).Str("selected_user_id", res.SelectedUserID).Msg("Offer bid selected")

	notify(ctx, s.notifier, NotificationInput{
		UserID:            res.SelectedUserID,
		Type:              models.NotifBidAccepted,
		Title:             "Your Bid Was Selected!",
		Message:           fmt.Sprintf("Congratulations! %s has selected your bid for their offer: %s", owner, o.Title),
		RelatedObjectType: models.SubjectOffer,
		RelatedObjectID:   offerID,
	})
	for _, id := range res.RejectedUserIDs {
		notify(ctx, s.notifier, NotificationInput{
			UserID:            id,
			Type:              models.NotifBidCancelled,
			Title:             "Bid Selection Update",
			Message:           fmt.Sprintf("Sorry, %s has selected someone else for their offer: %s", owner, o.Title),
			RelatedObjectType: models.SubjectOffer,
			RelatedObjectID:   offerID,
		})
	}
	return res, nil
}

// Complete releases the escrow of an accepted offer to its owner
func (s *OfferService) Complete(ctx context.Context, userID, offerID string) (*models.SettlementResult, error) {
	res, err := s.offers.Complete(ctx, offerID, userID, s.rules.Currency, s.now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("offer_id", offerID).Str("user_id", userID).Msg("Offer completed")
	notifySettlement(ctx, s.notifier, res)
	return res, nil
}

// Boost promotes a premium user's pending offer
func (s *OfferService) Boost(ctx context.Context, userID, offerID string) (time.Time, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now()
	if !user.HasActivePremium(now) {
		return time.Time{}, models.ErrPremiumRequired
	}
	until := now.Add(s.rules.BoostDuration)
	if err := s.offers.Boost(ctx, offerID, userID, until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// MyOffers lists the offers created by the user
func (s *OfferService) MyOffers(ctx context.Context, userID string) ([]models.Offer, error) {
	list, err := s.offers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Offer{}
	}
	return list, nil
}

// MyBids lists the user's bids on offers
func (s *OfferService) MyBids(ctx context.Context, userID string) ([]models.OfferBid, error) {
	list, err := s.offers.ListBidsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.OfferBid{}
	}
	return list, nil
}
