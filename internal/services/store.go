package services

import (
	"context"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/shopspring/decimal"
)

// UserStore is the persistence used by the account services. *repository.UserRepository implements it.
type UserStore interface {
	Create(ctx context.Context, user *models.User, minWithdrawal decimal.Decimal) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	UpdateProfile(ctx context.Context, u *models.User) error
	UpdateLocation(ctx context.Context, userID string, lat, lng decimal.Decimal, location, city string) error
	UpdateProfilePicture(ctx context.Context, userID, objectKey string) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
	UpdatePassword(ctx context.Context, userID, hash string) error
	Activate(ctx context.Context, userID string) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	SetFlags(ctx context.Context, userID string, active, verified *bool) error
	List(ctx context.Context, search string, limit, offset int) ([]models.User, error)
	ListReferrals(ctx context.Context, userID string) ([]models.Referral, error)
	ListActiveIDs(ctx context.Context, userType string) ([]string, error)
	ListStaffIDs(ctx context.Context) ([]string, error)
	CreateCode(ctx context.Context, code *models.VerificationCode) error
	ConsumeCode(ctx context.Context, userID, purpose, code string, now time.Time) error
	UpsertRating(ctx context.Context, rating *models.UserRating) error
}

// BidStore is implemented by *repository.BidRepository
type BidStore interface {
	Create(ctx context.Context, bid *models.Bid) error
	GetByID(ctx context.Context, id string) (*models.Bid, error)
	ListPerks(ctx context.Context, bidID string) ([]models.BidPerk, error)
	AddImage(ctx context.Context, img *models.BidImage) error
	ListImages(ctx context.Context, bidID string) ([]models.BidImage, error)
	Browse(ctx context.Context, f models.BidFilter) ([]models.Bid, error)
	ListByUser(ctx context.Context, userID string) ([]models.Bid, error)
	RecordView(ctx context.Context, bidID, viewerID string) error
	Accept(ctx context.Context, acc *models.BidAcceptance, now time.Time) error
	ListAcceptances(ctx context.Context, bidID string) ([]models.BidAcceptance, error)
	ListAcceptancesByUser(ctx context.Context, userID string) ([]models.BidAcceptance, error)
	HasAcceptance(ctx context.Context, bidID, userID string) (bool, error)
	WithdrawAcceptance(ctx context.Context, bidID, userID string, now time.Time) error
	SelectAcceptance(ctx context.Context, bidID, acceptanceID, posterID string, now time.Time) (*models.SelectionResult, error)
	Complete(ctx context.Context, bidID, actorID, currency string, now time.Time) (*models.SettlementResult, error)
	Cancel(ctx context.Context, bidID, posterID string, now time.Time) (*models.SettlementResult, error)
	ExpireDue(ctx context.Context, now time.Time) ([]models.ExpiredListing, error)
	Boost(ctx context.Context, bidID, userID string, until time.Time) error
	CreateReview(ctx context.Context, review *models.BidReview) error
}

// OfferStore is implemented by *repository.OfferRepository
type OfferStore interface {
	Create(ctx context.Context, o *models.Offer) error
	Update(ctx context.Context, o *models.Offer) error
	GetByID(ctx context.Context, id string) (*models.Offer, error)
	Browse(ctx context.Context, f models.OfferFilter) ([]models.Offer, error)
	ListByUser(ctx context.Context, userID string) ([]models.Offer, error)
	RecordView(ctx context.Context, offerID, viewerID string) error
	PlaceBid(ctx context.Context, b *models.OfferBid, now time.Time) error
	ListBids(ctx context.Context, offerID string) ([]models.OfferBid, error)
	ListBidsByUser(ctx context.Context, userID string) ([]models.OfferBid, error)
	HasBid(ctx context.Context, offerID, userID string) (bool, error)
	WithdrawBid(ctx context.Context, offerID, userID string, now time.Time) error
	SelectBid(ctx context.Context, offerID, offerBidID, ownerID string, rules market.Rules, now time.Time) (*models.SelectionResult, error)
	Complete(ctx context.Context, offerID, actorID, currency string, now time.Time) (*models.SettlementResult, error)
	Cancel(ctx context.Context, offerID, ownerID string, pendingOnly bool, now time.Time) (*models.SettlementResult, error)
	ExpireDue(ctx context.Context, now time.Time) ([]models.ExpiredListing, error)
	Boost(ctx context.Context, offerID, userID string, until time.Time) error
}

// CategoryStore is implemented by *repository.CategoryRepository
type CategoryStore interface {
	ListActive(ctx context.Context) ([]models.EventCategory, error)
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, c *models.EventCategory) error
}

// PaymentStore is implemented by *repository.PaymentRepository
type PaymentStore interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error)
	RecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	GetEscrow(ctx context.Context, subjectType, subjectID string) (*models.Escrow, error)
	CreatePendingPayment(ctx context.Context, t *models.Transaction, sub *models.Subscription) error
	SetGatewayReference(ctx context.Context, reference, gatewayRef string, response []byte) error
	ConfirmPayment(ctx context.Context, reference string, completed bool, response []byte, rules market.Rules, now time.Time) (*models.PaymentConfirmation, error)
	PurchaseWithWallet(ctx context.Context, userID, subType string, rules market.Rules, now time.Time) (*models.Subscription, *models.Transaction, error)
	ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
	ClaimExpiryNotices(ctx context.Context, now time.Time, window time.Duration) ([]models.Subscription, error)
	CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest, rules market.Rules, now time.Time) (*models.Transaction, error)
	ProcessWithdrawal(ctx context.Context, id, adminID string, complete bool, notes, currency string, now time.Time) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, status string) ([]models.WithdrawalRequest, error)
	ListWithdrawalsByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error)
	AddPaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
	ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error)
	SetPrimaryPaymentMethod(ctx context.Context, userID, id string) error
	DeletePaymentMethod(ctx context.Context, userID, id string) error
}

// MessageStore is implemented by *repository.MessageRepository
type MessageStore interface {
	GetOrCreateConversation(ctx context.Context, subjectType, subjectID, userID, otherID string, now time.Time) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, now time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// NotificationStore is implemented by *repository.NotificationRepository
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, id string) error
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string, now time.Time) error
	MarkAllRead(ctx context.Context, userID string, now time.Time) (int64, error)
	GetSettings(ctx context.Context, userID string) (*models.NotificationSettings, error)
	UpdateSettings(ctx context.Context, s *models.NotificationSettings) error
}

// StatsStore is implemented by *repository.StatsRepository
type StatsStore interface {
	Dashboard(ctx context.Context, now time.Time, onlineWindow time.Duration) (*models.DashboardStats, error)
}

// Notifier delivers a notification to one user
type Notifier interface {
	Notify(ctx context.Context, in NotificationInput) error
}

// Presence reports live WebSocket connections
type Presence interface {
	IsOnline(userID string) bool
}

// page clamps list paging parameters
func page(limit, offset, def, max int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
