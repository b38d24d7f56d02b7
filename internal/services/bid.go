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

// BidService implements posting, browsing and settling bids
type BidService struct {
	bids       BidStore
	users      UserStore
	categories CategoryStore
	media      *MediaService
	notifier   Notifier
	hub        Hub
	rules      market.Rules
	now        func() time.Time
}

// NewBidService creates a new bid service
func NewBidService(bids BidStore, users UserStore, categories CategoryStore, media *MediaService, notifier Notifier, hub Hub, rules market.Rules) *BidService {
	return &BidService{
		bids:       bids,
		users:      users,
		categories: categories,
		media:      media,
		notifier:   notifier,
		hub:        hub,
		rules:      rules,
		now:        time.Now,
	}
}

// PerkInput is one perk of a PERKS bid
type PerkInput struct {
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Quantity       int             `json:"quantity"`
}

// CreateBidInput is the bid posting form
type CreateBidInput struct {
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	CategoryID    *string          `json:"category_id"`
	EventDate     time.Time        `json:"event_date"`
	EventLocation string           `json:"event_location"`
	EventAddress  string           `json:"event_address"`
	Latitude      *decimal.Decimal `json:"latitude"`
	Longitude     *decimal.Decimal `json:"longitude"`
	BidType       string           `json:"bid_type"`
	BidAmount     *decimal.Decimal `json:"bid_amount"`
	Perks         []PerkInput      `json:"perks"`
}

// BrowseInput carries the browse filters
type BrowseInput struct {
	CategoryID string
	BidType    string
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Location   string
	Sort       string
	Limit      int
	Offset     int
}

func (s *BidService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, models.ErrInactiveAccount
	}
	return u, nil
}

func (s *BidService) checkCategory(ctx context.Context, id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	ok, err := s.categories.Exists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return validationError("unknown category")
	}
	return nil
}

// Create posts a new bid for a male user
func (s *BidService) Create(ctx context.Context, userID string, in CreateBidInput) (*models.Bid, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsMale() {
		return nil, fmt.Errorf("%w: only male users can post bids", models.ErrForbidden)
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, validationError("title is required")
	}
	if strings.TrimSpace(in.EventLocation) == "" {
		return nil, validationError("event location is required")
	}
	now := s.now()
	if err := s.rules.ValidateEventDate(in.EventDate, now); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	bid := &models.Bid{
		ID:            uuid.New().String(),
		UserID:        userID,
		Title:         in.Title,
		Description:   in.Description,
		CategoryID:    in.CategoryID,
		EventDate:     in.EventDate,
		EventLocation: in.EventLocation,
		EventAddress:  in.EventAddress,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		BidType:       in.BidType,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     s.rules.ExpiresAt(in.EventDate),
	}

	switch in.BidType {
	case models.BidTypeMoney:
		if in.BidAmount == nil {
			return nil, validationError("bid_amount is required for money bids")
		}
		if err := s.rules.ValidateBidAmount(*in.BidAmount); err != nil {
			return nil, err
		}
		amount := *in.BidAmount
		bid.BidAmount = &amount
		bid.CommissionAmount = market.Commission(amount, s.rules.CommissionRate)
	case models.BidTypePerks:
		if len(in.Perks) == 0 {
			return nil, validationError("perks bids need at least one perk")
		}
		for _, p := range in.Perks {
			if !models.PerkCategories[p.Category] {
				return nil, validationError("unknown perk category %q", p.Category)
			}
			if p.Quantity < 1 {
				return nil, validationError("perk quantity must be at least 1")
			}
			if !p.EstimatedValue.IsPositive() {
				return nil, validationError("perk value must be positive")
			}
			bid.Perks = append(bid.Perks, models.BidPerk{
				Category:       p.Category,
				Description:    p.Description,
				EstimatedValue: p.EstimatedValue,
				Quantity:       p.Quantity,
			})
		}
		total := market.PerkTotal(bid.Perks)
		bid.TotalPerkValue = &total
		bid.CommissionAmount = decimal.Zero
	default:
		return nil, validationError("bid_type must be MONEY or PERKS")
	}

	if err := s.bids.Create(ctx, bid); err != nil {
		return nil, err
	}
	log.Info().Str("bid_id", bid.ID).Str("user_id", userID).Str("bid_type", bid.BidType).Msg("Bid posted")
	return bid, nil
}

// Browse lists open bids for a subscribed female user
func (s *BidService) Browse(ctx context.Context, userID string, in BrowseInput) ([]models.Bid, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !user.IsFemale() {
		return nil, fmt.Errorf("%w: only female users can browse bids", models.ErrForbidden)
	}
	if !user.HasActiveSubscription(now) {
		return nil, models.ErrSubscriptionRequired
	}

	limit, offset := page(in.Limit, in.Offset, 20, 100)
	bids, err := s.bids.Browse(ctx, models.BidFilter{
		ViewerID:   userID,
		CategoryID: in.CategoryID,
		BidType:    in.BidType,
		MinAmount:  in.MinAmount,
		MaxAmount:  in.MaxAmount,
		Location:   in.Location,
		Sort:       in.Sort,
		Now:        now,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	return bids, nil
}

// Get returns a bid with its perks and images; a view is counted for non-owners
func (s *BidService) Get(ctx context.Context, viewerID, bidID string) (*models.Bid, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.Perks, err = s.bids.ListPerks(ctx, bidID); err != nil {
		return nil, err
	}
	if bid.Images, err = s.bids.ListImages(ctx, bidID); err != nil {
		return nil, err
	}
	if viewerID != bid.UserID {
		if err := s.bids.RecordView(ctx, bidID, viewerID); err != nil {
			log.Warn().Err(err).Str("bid_id", bidID).Msg("Failed to record bid view")
		}
	}
	return bid, nil
}

// Accept records a subscribed female user's interest in a bid
func (s *BidService) Accept(ctx context.Context, userID, bidID, message string) (*models.BidAcceptance, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !user.IsFemale() {
		return nil, fmt.Errorf("%w: only female users can accept bids", models.ErrForbidden)
	}
	if !user.HasActiveSubscription(now) {
		return nil, models.ErrSubscriptionRequired
	}

	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.UserID == userID {
		return nil, fmt.Errorf("%w: cannot accept your own bid", models.ErrForbidden)
	}
	if !bid.IsOpen(now) {
		return nil, fmt.Errorf("%w: bid is no longer open", models.ErrInvalidTransition)
	}

	acc := &models.BidAcceptance{
		ID:        uuid.New().String(),
		BidID:     bidID,
		UserID:    userID,
		Message:   strings.TrimSpace(message),
		Status:    models.CandidatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.bids.Accept(ctx, acc, now); err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, NotificationInput{
		UserID:            bid.UserID,
		Type:              models.NotifBidAccepted,
		Title:             "Bid Accepted!",
		Message:           fmt.Sprintf("%s has accepted your bid for %s", user.Username, bid.Title),
		RelatedObjectType: models.SubjectBid,
		RelatedObjectID:   bidID,
	})
	s.bidUpdate(bid.UserID, bidID, "accepted")
	return acc, nil
}

// ListAcceptances returns the acceptances of a bid to its poster
func (s *BidService) ListAcceptances(ctx context.Context, userID, bidID string) ([]models.BidAcceptance, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.UserID != userID {
		return nil, fmt.Errorf("%w: only the poster can see acceptances", models.ErrForbidden)
	}
	list, err := s.bids.ListAcceptances(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.BidAcceptance{}
	}
	return list, nil
}

// WithdrawAcceptance withdraws the caller's pending acceptance
func (s *BidService) WithdrawAcceptance(ctx context.Context, userID, bidID string) error {
	if err := s.bids.WithdrawAcceptance(ctx, bidID, userID, s.now()); err != nil {
		return err
	}
	if bid, err := s.bids.GetByID(ctx, bidID); err == nil {
		s.bidUpdate(bid.UserID, bidID, "withdrawn")
	}
	return nil
}

// Choose selects one acceptance, rejects the rest and funds escrow for money bids
func (s *BidService) Choose(ctx context.Context, posterID, bidID, acceptanceID string) (*models.SelectionResult, error) {
	res, err := s.bids.SelectAcceptance(ctx, bidID, acceptanceID, posterID, s.now())
	if err != nil {
		return nil, err
	}
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("bid_id", bidID).Str("selected_user_id", res.SelectedUserID).Msg("Bid acceptance selected")

	notify(ctx, s.notifier, NotificationInput{
		UserID:            res.SelectedUserID,
		Type:              models.NotifBidAccepted,
		Title:             "You Were Selected!",
		Message:           fmt.Sprintf("You have been selected for %s", bid.Title),
		RelatedObjectType: models.SubjectBid,
		RelatedObjectID:   bidID,
	})
	s.bidUpdate(res.SelectedUserID, bidID, "selected")
	for _, id := range res.RejectedUserIDs {
		notify(ctx, s.notifier, NotificationInput{
			UserID:            id,
			Type:              models.NotifBidCancelled,
			Title:             "Bid Selection Update",
			Message:           fmt.Sprintf("Someone else was selected for %s", bid.Title),
			RelatedObjectType: models.SubjectBid,
			RelatedObjectID:   bidID,
		})
		s.bidUpdate(id, bidID, "rejected")
	}
	return res, nil
}

// Complete marks an accepted bid completed and pays out its escrow
func (s *BidService) Complete(ctx context.Context, userID, bidID string) (*models.SettlementResult, error) {
	res, err := s.bids.Complete(ctx, bidID, userID, s.rules.Currency, s.now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("bid_id", bidID).Str("user_id", userID).Msg("Bid completed")
	notifySettlement(ctx, s.notifier, res)
	return res, nil
}

// notifySettlement tells both parties about a released escrow
func notifySettlement(ctx context.Context, n Notifier, res *models.SettlementResult) {
	if res.Escrow == nil || res.Escrow.Status != models.EscrowReleased {
		return
	}
	payout := res.Escrow.Amount.Sub(res.Escrow.CommissionAmount)
	notify(ctx, n, NotificationInput{
		UserID:            res.Escrow.PayerID,
		Type:              models.NotifPaymentSent,
		Title:             "Payment Update",
		Message:           fmt.Sprintf("Payment sent: $%s", res.Escrow.Amount.StringFixed(2)),
		RelatedObjectType: res.SubjectType,
		RelatedObjectID:   res.SubjectID,
	})
	notify(ctx, n, NotificationInput{
		UserID:            res.Escrow.PayeeID,
		Type:              models.NotifPaymentReceived,
		Title:             "Payment Update",
		Message:           fmt.Sprintf("Payment received: $%s", payout.StringFixed(2)),
		RelatedObjectType: res.SubjectType,
		RelatedObjectID:   res.SubjectID,
	})
}

// Cancel cancels the poster's bid and refunds any held escrow
func (s *BidService) Cancel(ctx context.Context, posterID, bidID string) (*models.SettlementResult, error) {
	res, err := s.bids.Cancel(ctx, bidID, posterID, s.now())
	if err != nil {
		return nil, err
	}
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("bid_id", bidID).Msg("Bid cancelled")
	for _, id := range res.AffectedUserIDs {
		notify(ctx, s.notifier, NotificationInput{
			UserID:            id,
			Type:              models.NotifBidCancelled,
			Title:             "Bid Cancelled",
			Message:           fmt.Sprintf("The bid for %s has been cancelled", bid.Title),
			RelatedObjectType: models.SubjectBid,
			RelatedObjectID:   bidID,
		})
		s.bidUpdate(id, bidID, "cancelled")
	}
	return res, nil
}

// Boost promotes a premium user's pending bid
func (s *BidService) Boost(ctx context.Context, userID, bidID string) (time.Time, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now()
	if !user.HasActivePremium(now) {
		return time.Time{}, models.ErrPremiumRequired
	}
	until := now.Add(s.rules.BoostDuration)
	if err := s.bids.Boost(ctx, bidID, userID, until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Review rates the other party of a completed bid
func (s *BidService) Review(ctx context.Context, reviewerID, bidID string, rating int, text string) (*models.BidReview, error) {
	if rating < 1 || rating > 5 {
		return nil, validationError("rating must be between 1 and 5")
	}
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: only completed bids can be reviewed", models.ErrInvalidTransition)
	}
	if bid.AcceptedBy == nil {
		return nil, fmt.Errorf("%w: bid has no selected partner", models.ErrInvalidTransition)
	}

	var reviewed string
	switch reviewerID {
	case bid.UserID:
		reviewed = *bid.AcceptedBy
	case *bid.AcceptedBy:
		reviewed = bid.UserID
	default:
		return nil, fmt.Errorf("%w: only participants can review a bid", models.ErrForbidden)
	}

	review := &models.BidReview{
		ID:             uuid.New().String(),
		BidID:          bidID,
		ReviewerID:     reviewerID,
		ReviewedUserID: reviewed,
		Rating:         rating,
		ReviewText:     strings.TrimSpace(text),
		CreatedAt:      s.now(),
	}
	if err := s.bids.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// MyBids lists the bids posted by the user
func (s *BidService) MyBids(ctx context.Context, userID string) ([]models.Bid, error) {
	bids, err := s.bids.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	return bids, nil
}

// MyAcceptances lists the user's acceptances with their bid titles
func (s *BidService) MyAcceptances(ctx context.Context, userID string) ([]models.BidAcceptance, error) {
	list, err := s.bids.ListAcceptancesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.BidAcceptance{}
	}
	return list, nil
}

// ImageUpload presigns an image upload for the poster's bid and records it
func (s *BidService) ImageUpload(ctx context.Context, userID, bidID, contentType, caption string) (*UploadURL, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.UserID != userID {
		return nil, fmt.Errorf("%w: only the poster can add images", models.ErrForbidden)
	}
	existing, err := s.bids.ListImages(ctx, bidID)
	if err != nil {
		return nil, err
	}

	up, err := s.media.PresignUpload(ctx, MediaBid, bidID, contentType)
	if err != nil {
		return nil, err
	}
	if err := s.bids.AddImage(ctx, &models.BidImage{
		ID:        uuid.New().String(),
		BidID:     bidID,
		ObjectKey: up.ObjectKey,
		Caption:   caption,
		IsPrimary: len(existing) == 0,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, err
	}
	return up, nil
}

// Categories lists the active event categories
func (s *BidService) Categories(ctx context.Context) ([]models.EventCategory, error) {
	list, err := s.categories.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.EventCategory{}
	}
	return list, nil
}

// bidUpdate pushes a live status frame when the user is connected
func (s *BidService) bidUpdate(userID, bidID, event string) {
	if s.hub == nil || !s.hub.IsOnline(userID) {
		return
	}
	err := s.hub.SendToUser(userID, WSMessage{
		Type:      FrameBidUpdate,
		Timestamp: s.now().UnixMilli(),
		Data:      map[string]string{"bid_id": bidID, "event": event},
	})
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("Failed to send bid update")
	}
}
