package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	UserTypeMale   = "M"
	UserTypeFemale = "F"
)

// User represents a registered account together with its profile and counters
type User struct {
	ID                  string           `json:"id"`
	Username            string           `json:"username"`
	Email               string           `json:"email"`
	PasswordHash        string           `json:"-"`
	FirstName           string           `json:"first_name"`
	LastName            string           `json:"last_name"`
	Gender              string           `json:"gender"`
	UserType            string           `json:"user_type"`
	DateOfBirth         *time.Time       `json:"date_of_birth,omitempty"`
	PhoneNumber         string           `json:"phone_number"`
	ProfilePicture      *string          `json:"profile_picture,omitempty"`
	Bio                 string           `json:"bio"`
	City                string           `json:"city"`
	Location            string           `json:"location"`
	Latitude            *decimal.Decimal `json:"latitude,omitempty"`
	Longitude           *decimal.Decimal `json:"longitude,omitempty"`
	IsActive            bool             `json:"is_active"`
	IsStaff             bool             `json:"is_staff"`
	IsVerified          bool             `json:"is_verified"`
	IsPremium           bool             `json:"is_premium"`
	PremiumExpires      *time.Time       `json:"premium_expires,omitempty"`
	SubscriptionActive  bool             `json:"subscription_active"`
	SubscriptionExpires *time.Time       `json:"subscription_expires,omitempty"`
	ReferralCode        string           `json:"referral_code"`
	ReferredBy          *string          `json:"referred_by,omitempty"`
	TotalReferrals      int              `json:"total_referrals"`
	ReferralEarnings    decimal.Decimal  `json:"referral_earnings"`
	TotalEarned         decimal.Decimal  `json:"total_earned"`
	TotalSpent          decimal.Decimal  `json:"total_spent"`
	AverageRating       decimal.Decimal  `json:"average_rating"`
	TotalReviews        int              `json:"total_reviews"`
	PushToken           *string          `json:"-"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	LastSeen            time.Time        `json:"last_seen"`
}

func (u *User) IsMale() bool   { return u.UserType == UserTypeMale }
func (u *User) IsFemale() bool { return u.UserType == UserTypeFemale }

// HasActiveSubscription reports whether the user may browse and accept bids at now
func (u *User) HasActiveSubscription(now time.Time) bool {
	return u.SubscriptionActive && u.SubscriptionExpires != nil && u.SubscriptionExpires.After(now)
}

// HasActivePremium reports whether premium features are unlocked at now
func (u *User) HasActivePremium(now time.Time) bool {
	return u.IsPremium && u.PremiumExpires != nil && u.PremiumExpires.After(now)
}

// PublicProfile is what other users see
type PublicProfile struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	FirstName      string          `json:"first_name"`
	UserType       string          `json:"user_type"`
	ProfilePicture *string         `json:"profile_picture,omitempty"`
	Bio            string          `json:"bio"`
	City           string          `json:"city"`
	IsVerified     bool            `json:"is_verified"`
	IsPremium      bool            `json:"is_premium"`
	AverageRating  decimal.Decimal `json:"average_rating"`
	TotalReviews   int             `json:"total_reviews"`
	Online         bool            `json:"online"`
	LastSeen       time.Time       `json:"last_seen"`
}

// Public strips private fields from the user
func (u *User) Public(online bool) PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		UserType:       u.UserType,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		City:           u.City,
		IsVerified:     u.IsVerified,
		IsPremium:      u.IsPremium,
		AverageRating:  u.AverageRating,
		TotalReviews:   u.TotalReviews,
		Online:         online,
		LastSeen:       u.LastSeen,
	}
}

const (
	CodePurposeVerifyEmail   = "VERIFY_EMAIL"
	CodePurposeResetPassword = "RESET_PASSWORD"
)

// VerificationCode is a one-time code sent to the user's email
type VerificationCode struct {
	ID        string
	UserID    string
	Code      string
	Purpose   string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// UserRating is a direct rating of one user by another
type UserRating struct {
	ID           string    `json:"id"`
	RatedUserID  string    `json:"rated_user_id"`
	RatingUserID string    `json:"rating_user_id"`
	Rating       int       `json:"rating"`
	Review       string    `json:"review"`
	CreatedAt    time.Time `json:"created_at"`
}

// Referral is a user brought in through someone's referral code
type Referral struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	UserType  string    `json:"user_type"`
	CreatedAt time.Time `json:"created_at"`
}

// AffiliateDashboard summarises a user's referrals
type AffiliateDashboard struct {
	ReferralCode     string          `json:"referral_code"`
	TotalReferrals   int             `json:"total_referrals"`
	ReferralEarnings decimal.Decimal `json:"referral_earnings"`
	Referrals        []Referral      `json:"referrals"`
}

// EventCategory groups bids and offers by event kind
type EventCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// Subject types tie records to a bid or an offer
const (
	SubjectBid   = "bid"
	SubjectOffer = "offer"
)

// Listing statuses shared by bids and offers
const (
	StatusPending   = "PENDING"
	StatusAccepted  = "ACCEPTED"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// Candidate statuses shared by bid acceptances and offer bids
const (
	CandidatePending   = "PENDING"
	CandidateSelected  = "SELECTED"
	CandidateRejected  = "REJECTED"
	CandidateWithdrawn = "WITHDRAWN"
)

const (
	BidTypeMoney = "MONEY"
	BidTypePerks = "PERKS"
)

// PerkCategories lists the accepted perk categories
var PerkCategories = map[string]bool{
	"CONCERT_TICKETS": true,
	"ALCOHOL":         true,
	"DINING":          true,
	"FUEL":            true,
	"TRANSPORT":       true,
	"SHOPPING":        true,
	"ENTERTAINMENT":   true,
	"OTHER":           true,
}

// Bid is a male user's posted request for event companionship
type Bid struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	CategoryID       *string          `json:"category_id,omitempty"`
	EventDate        time.Time        `json:"event_date"`
	EventLocation    string           `json:"event_location"`
	EventAddress     string           `json:"event_address"`
	Latitude         *decimal.Decimal `json:"latitude,omitempty"`
	Longitude        *decimal.Decimal `json:"longitude,omitempty"`
	BidType          string           `json:"bid_type"`
	BidAmount        *decimal.Decimal `json:"bid_amount,omitempty"`
	TotalPerkValue   *decimal.Decimal `json:"total_perk_value,omitempty"`
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
	Status           string           `json:"status"`
	AcceptedBy       *string          `json:"accepted_by,omitempty"`
	AcceptedAt       *time.Time       `json:"accepted_at,omitempty"`
	IsBoosted        bool             `json:"is_boosted"`
	BoostExpires     *time.Time       `json:"boost_expires,omitempty"`
	ViewCount        int              `json:"view_count"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	ExpiresAt        time.Time        `json:"expires_at"`

	Perks           []BidPerk  `json:"perks,omitempty"`
	Images          []BidImage `json:"images,omitempty"`
	AcceptanceCount int        `json:"acceptance_count"`
}

// IsOpen reports whether the bid can still receive acceptances at now
func (b *Bid) IsOpen(now time.Time) bool {
	return b.Status == StatusPending && b.ExpiresAt.After(now)
}

// BidPerk is a non-monetary item promised by a PERKS bid
type BidPerk struct {
	ID             string          `json:"id"`
	BidID          string          `json:"bid_id"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Quantity       int             `json:"quantity"`
}

// BidImage is an uploaded picture attached to a bid
type BidImage struct {
	ID        string    `json:"id"`
	BidID     string    `json:"bid_id"`
	ObjectKey string    `json:"object_key"`
	Caption   string    `json:"caption"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// BidAcceptance records a female user's interest in a bid
type BidAcceptance struct {
	ID        string    `json:"id"`
	BidID     string    `json:"bid_id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username string `json:"username,omitempty"`
	BidTitle string `json:"bid_title,omitempty"`
}

// BidReview is left by a participant of a completed bid
type BidReview struct {
	ID             string    `json:"id"`
	BidID          string    `json:"bid_id"`
	ReviewerID     string    `json:"reviewer_id"`
	ReviewedUserID string    `json:"reviewed_user_id"`
	Rating         int       `json:"rating"`
	ReviewText     string    `json:"review_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// BidFilter narrows the browse listing
type BidFilter struct {
	ViewerID   string
	CategoryID string
	BidType    string
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Location   string
	Sort       string
	Now        time.Time
	Limit      int
	Offset     int
}

// Offer is a female user's posted availability
type Offer struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	CategoryID       *string          `json:"category_id,omitempty"`
	EventDate        *time.Time       `json:"event_date,omitempty"`
	AvailableDate    *time.Time       `json:"available_date,omitempty"`
	EventLocation    string           `json:"event_location"`
	EventAddress     string           `json:"event_address"`
	MinimumBid       decimal.Decimal  `json:"minimum_bid"`
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
	Status           string           `json:"status"`
	AcceptedBy       *string          `json:"accepted_by,omitempty"`
	AcceptedAt       *time.Time       `json:"accepted_at,omitempty"`
	AcceptedAmount   *decimal.Decimal `json:"accepted_amount,omitempty"`
	IsBoosted        bool             `json:"is_boosted"`
	BoostExpires     *time.Time       `json:"boost_expires,omitempty"`
	ViewCount        int              `json:"view_count"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`

	BidCount int `json:"bid_count"`
}

// IsOpen reports whether the offer can still receive bids at now
func (o *Offer) IsOpen(now time.Time) bool {
	return o.Status == StatusPending && (o.ExpiresAt == nil || o.ExpiresAt.After(now))
}

// OfferBid is a male user's bid on an offer
type OfferBid struct {
	ID        string          `json:"id"`
	OfferID   string          `json:"offer_id"`
	BidderID  string          `json:"bidder_id"`
	BidAmount decimal.Decimal `json:"bid_amount"`
	Message   string          `json:"message"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Username   string `json:"username,omitempty"`
	OfferTitle string `json:"offer_title,omitempty"`
}

// OfferFilter narrows the offer browse listing
type OfferFilter struct {
	ViewerID   string
	CategoryID string
	Location   string
	Now        time.Time
	Limit      int
	Offset     int
}

// Candidate is the status view of a bid acceptance or offer bid used during selection
type Candidate struct {
	ID     string
	UserID string
	Status string
	Amount decimal.Decimal
}

// SelectionResult describes the outcome of choosing a candidate
type SelectionResult struct {
	SubjectType     string   `json:"subject_type"`
	SubjectID       string   `json:"subject_id"`
	SelectedID      string   `json:"selected_id"`
	SelectedUserID  string   `json:"selected_user_id"`
	RejectedUserIDs []string `json:"rejected_user_ids"`
	Escrow          *Escrow  `json:"escrow,omitempty"`
}

// SettlementResult describes a completed or cancelled listing
type SettlementResult struct {
	SubjectType     string   `json:"subject_type"`
	SubjectID       string   `json:"subject_id"`
	PosterID        string   `json:"poster_id"`
	CounterpartyID  string   `json:"counterparty_id,omitempty"`
	AffectedUserIDs []string `json:"affected_user_ids,omitempty"`
	Escrow          *Escrow  `json:"escrow,omitempty"`
}

// ExpiredListing is a listing flipped to EXPIRED by the sweeper
type ExpiredListing struct {
	ID       string
	PosterID string
	Title    string
}

// Ledger entry types
const (
	TxDeposit        = "DEPOSIT"
	TxBidPayment     = "BID_PAYMENT"
	TxSubscription   = "SUBSCRIPTION"
	TxCommission     = "COMMISSION"
	TxWithdrawal     = "WITHDRAWAL"
	TxRefund         = "REFUND"
	TxReferralBonus  = "REFERRAL_BONUS"
	TxPremiumUpgrade = "PREMIUM_UPGRADE"
)

// Ledger entry statuses
const (
	TxPending    = "PENDING"
	TxProcessing = "PROCESSING"
	TxCompleted  = "COMPLETED"
	TxFailed     = "FAILED"
	TxCancelled  = "CANCELLED"
	TxRefunded   = "REFUNDED"
)

// Wallet holds a user's running balances
type Wallet struct {
	UserID              string          `json:"user_id"`
	Balance             decimal.Decimal `json:"balance"`
	FrozenBalance       decimal.Decimal `json:"frozen_balance"`
	TotalDeposited      decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn      decimal.Decimal `json:"total_withdrawn"`
	MinWithdrawalAmount decimal.Decimal `json:"min_withdrawal_amount"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Available is the balance not held in escrow
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.FrozenBalance)
}

// Transaction is one ledger entry. Credits are positive, debits negative.
type Transaction struct {
	ID               string          `json:"id"`
	Reference        string          `json:"reference"`
	UserID           string          `json:"user_id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	PaymentMethodID  *string         `json:"payment_method_id,omitempty"`
	SubjectType      string          `json:"subject_type,omitempty"`
	SubjectID        *string         `json:"subject_id,omitempty"`
	Gateway          string          `json:"gateway,omitempty"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	GatewayResponse  json.RawMessage `json:"gateway_response,omitempty"`
	Description      string          `json:"description"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}

// PaymentConfirmation is the outcome of settling a gateway-backed ledger row
type PaymentConfirmation struct {
	Transaction  *Transaction  `json:"transaction"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Applied      bool          `json:"applied"`
}

// Escrow statuses
const (
	EscrowHeld     = "HELD"
	EscrowReleased = "RELEASED"
	EscrowRefunded = "REFUNDED"
	EscrowDisputed = "DISPUTED"
)

// Escrow holds a payer's funds until the listing completes or is cancelled
type Escrow struct {
	ID               string          `json:"id"`
	SubjectType      string          `json:"subject_type"`
	SubjectID        string          `json:"subject_id"`
	PayerID          string          `json:"payer_id"`
	PayeeID          string          `json:"payee_id"`
	Amount           decimal.Decimal `json:"amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	HeldAt           *time.Time      `json:"held_at,omitempty"`
	ReleasedAt       *time.Time      `json:"released_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
}

// Subscription types
const (
	SubWomenAccess  = "WOMEN_ACCESS"
	SubPremiumMen   = "PREMIUM_MEN"
	SubPremiumWomen = "PREMIUM_WOMEN"
)

// Subscription is a paid access period
type Subscription struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          string          `json:"subscription_type"`
	Amount        decimal.Decimal `json:"amount"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	IsActive      bool            `json:"is_active"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsPremium reports whether the subscription unlocks premium features
func (s *Subscription) IsPremium() bool {
	return s.Type == SubPremiumMen || s.Type == SubPremiumWomen
}

// PaymentTypes lists the accepted payment method types
var PaymentTypes = map[string]bool{
	"ECOCASH":       true,
	"ONEMONEY":      true,
	"INNBUCKS":      true,
	"BANK_TRANSFER": true,
	"CARD":          true,
}

// PaymentMethod is a payout or funding account of a user
type PaymentMethod struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	PaymentType   string    `json:"payment_type"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	IsPrimary     bool      `json:"is_primary"`
	IsVerified    bool      `json:"is_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Withdrawal statuses
const (
	WithdrawalPending    = "PENDING"
	WithdrawalProcessing = "PROCESSING"
	WithdrawalCompleted  = "COMPLETED"
	WithdrawalFailed     = "FAILED"
	WithdrawalCancelled  = "CANCELLED"
)

// WithdrawalRequest asks an admin to pay out wallet funds
type WithdrawalRequest struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID string          `json:"payment_method_id"`
	Status          string          `json:"status"`
	TransactionID   *string         `json:"transaction_id,omitempty"`
	ProcessedBy     *string         `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	Notes           string          `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Conversation is a two-party chat about a bid or offer
type Conversation struct {
	ID          string    `json:"id"`
	SubjectType string    `json:"subject_type"`
	SubjectID   string    `json:"subject_id"`
	UserAID     string    `json:"user_a_id"`
	UserBID     string    `json:"user_b_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// HasParticipant reports whether userID is one of the two participants
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// OtherParticipant returns the participant that is not userID
func (c *Conversation) OtherParticipant(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Message is a chat message inside a conversation
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	AttachmentKey  *string    `json:"attachment_key,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Notification types
const (
	NotifBidAccepted         = "BID_ACCEPTED"
	NotifBidCancelled        = "BID_CANCELLED"
	NotifNewMessage          = "NEW_MESSAGE"
	NotifPaymentReceived     = "PAYMENT_RECEIVED"
	NotifPaymentSent         = "PAYMENT_SENT"
	NotifWithdrawalProcessed = "WITHDRAWAL_PROCESSED"
	NotifReferralBonus       = "REFERRAL_BONUS"
	NotifPremiumExpiring     = "PREMIUM_EXPIRING"
	NotifEventReminder       = "EVENT_REMINDER"
	NotifSystemAnnouncement  = "SYSTEM_ANNOUNCEMENT"
)

// Notification is a per-user notification record
type Notification struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	Type              string     `json:"notification_type"`
	RelatedObjectType string     `json:"related_object_type,omitempty"`
	RelatedObjectID   string     `json:"related_object_id,omitempty"`
	IsRead            bool       `json:"is_read"`
	IsSent            bool       `json:"is_sent"`
	CreatedAt         time.Time  `json:"created_at"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
}

// NotificationSettings holds per-channel, per-category delivery flags
type NotificationSettings struct {
	UserID          string    `json:"user_id"`
	EmailBidUpdates bool      `json:"email_bid_updates"`
	EmailMessages   bool      `json:"email_messages"`
	EmailPayments   bool      `json:"email_payments"`
	EmailPromotions bool      `json:"email_promotions"`
	EmailSystem     bool      `json:"email_system"`
	PushBidUpdates  bool      `json:"push_bid_updates"`
	PushMessages    bool      `json:"push_messages"`
	PushPayments    bool      `json:"push_payments"`
	PushPromotions  bool      `json:"push_promotions"`
	PushSystem      bool      `json:"push_system"`
	SMSPayments     bool      `json:"sms_payments"`
	SMSUrgent       bool      `json:"sms_urgent"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultNotificationSettings returns the settings a new user starts with
func DefaultNotificationSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:          userID,
		EmailBidUpdates: true,
		EmailMessages:   true,
		EmailPayments:   true,
		EmailPromotions: true,
		EmailSystem:     true,
		PushBidUpdates:  true,
		PushMessages:    true,
		PushPayments:    true,
		PushPromotions:  false,
		PushSystem:      true,
		SMSPayments:     false,
		SMSUrgent:       true,
	}
}

// DashboardStats is the admin overview
type DashboardStats struct {
	Users struct {
		Total    int `json:"total"`
		Active   int `json:"active"`
		Online   int `json:"online"`
		NewToday int `json:"new_today"`
		Male     int `json:"male"`
		Female   int `json:"female"`
		Premium  int `json:"premium"`
		Verified int `json:"verified"`
	} `json:"users"`
	Bids struct {
		Total    int            `json:"total"`
		Today    int            `json:"today"`
		ByStatus map[string]int `json:"by_status"`
	} `json:"bids"`
	Offers struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
	} `json:"offers"`
	Revenue struct {
		Week  decimal.Decimal `json:"week"`
		Month decimal.Decimal `json:"month"`
	} `json:"revenue"`
	PendingWithdrawals struct {
		Count  int             `json:"count"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"pending_withdrawals"`
	EscrowHeld decimal.Decimal `json:"escrow_held"`
}
