package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mjolobid-backend/internal/gateway"
	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeUsers keeps users in memory. Methods a test does not need panic through the nil interface.
type fakeUsers struct {
	UserStore

	mu      sync.Mutex
	byID    map[string]*models.User
	codes   []*models.VerificationCode
	ratings []*models.UserRating
	flags   map[string][2]*bool
	touched map[string]time.Time
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{
		byID:    make(map[string]*models.User),
		flags:   make(map[string][2]*bool),
		touched: make(map[string]time.Time),
	}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(ctx context.Context, user *models.User, minWithdrawal decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("user: %w", models.ErrAlreadyExists)
		}
	}
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user: %w", models.ErrNotFound)
}

func (f *fakeUsers) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Username == login || u.Email == login })
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsers) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ReferralCode == code })
}

func (f *fakeUsers) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := f.GetByReferralCode(ctx, code)
	return err == nil, nil
}

func (f *fakeUsers) CreateCode(ctx context.Context, code *models.VerificationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeUsers) ConsumeCode(ctx context.Context, userID, purpose, code string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.UserID == userID && c.Purpose == purpose && c.Code == code && !c.Used && c.ExpiresAt.After(now) {
			c.Used = true
			return nil
		}
	}
	return models.ErrInvalidCode
}

func (f *fakeUsers) Activate(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[userID].IsActive = true
	f.byID[userID].IsVerified = true
	return nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[userID].PasswordHash = hash
	return nil
}

func (f *fakeUsers) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[userID] = at
	return nil
}

func (f *fakeUsers) UpsertRating(ctx context.Context, rating *models.UserRating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings = append(f.ratings, rating)
	return nil
}

func (f *fakeUsers) SetFlags(ctx context.Context, userID string, active, verified *bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if active != nil {
		f.byID[userID].IsActive = *active
	}
	if verified != nil {
		f.byID[userID].IsVerified = *verified
	}
	return nil
}

func (f *fakeUsers) ListActiveIDs(ctx context.Context, userType string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, u := range f.byID {
		if u.IsActive && (userType == "" || u.UserType == userType) {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (f *fakeUsers) ListStaffIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, u := range f.byID {
		if u.IsStaff {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// fakeNotifier records every notification
type fakeNotifier struct {
	mu   sync.Mutex
	sent []NotificationInput
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, in NotificationInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, in)
	return nil
}

func (f *fakeNotifier) forUser(userID string) []NotificationInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []NotificationInput
	for _, n := range f.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// fakeHub records frames sent to online users
type fakeHub struct {
	mu     sync.Mutex
	online map[string]bool
	frames map[string][]WSMessage
}

func newFakeHub(online ...string) *fakeHub {
	h := &fakeHub{online: make(map[string]bool), frames: make(map[string][]WSMessage)}
	for _, id := range online {
		h.online[id] = true
	}
	return h
}

func (h *fakeHub) SendToUser(userID string, msg WSMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.online[userID] {
		return fmt.Errorf("user %s is not connected", userID)
	}
	h.frames[userID] = append(h.frames[userID], msg)
	return nil
}

func (h *fakeHub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online[userID]
}

func (h *fakeHub) framesFor(userID string) []WSMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]WSMessage(nil), h.frames[userID]...)
}

// fakeBids keeps bids in memory
type fakeBids struct {
	BidStore

	bids        map[string]*models.Bid
	acceptances map[string][]models.BidAcceptance
	views       []string
	images      []models.BidImage
	reviews     []*models.BidReview
	selection   *models.SelectionResult
	settlement  *models.SettlementResult
	boosted     map[string]time.Time
	expired     []models.ExpiredListing
}

func newFakeBids(bids ...*models.Bid) *fakeBids {
	f := &fakeBids{
		bids:        make(map[string]*models.Bid),
		acceptances: make(map[string][]models.BidAcceptance),
		boosted:     make(map[string]time.Time),
	}
	for _, b := range bids {
		f.bids[b.ID] = b
	}
	return f
}

func (f *fakeBids) Create(ctx context.Context, bid *models.Bid) error {
	f.bids[bid.ID] = bid
	return nil
}

func (f *fakeBids) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	b, ok := f.bids[id]
	if !ok {
		return nil, fmt.Errorf("bid: %w", models.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBids) ListPerks(ctx context.Context, bidID string) ([]models.BidPerk, error) {
	return f.bids[bidID].Perks, nil
}

func (f *fakeBids) ListImages(ctx context.Context, bidID string) ([]models.BidImage, error) {
	var out []models.BidImage
	for _, img := range f.images {
		if img.BidID == bidID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (f *fakeBids) AddImage(ctx context.Context, img *models.BidImage) error {
	f.images = append(f.images, *img)
	return nil
}

func (f *fakeBids) Browse(ctx context.Context, filter models.BidFilter) ([]models.Bid, error) {
	var out []models.Bid
	for _, b := range f.bids {
		if b.UserID != filter.ViewerID && b.IsOpen(filter.Now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBids) RecordView(ctx context.Context, bidID, viewerID string) error {
	f.views = append(f.views, viewerID)
	return nil
}

func (f *fakeBids) Accept(ctx context.Context, acc *models.BidAcceptance, now time.Time) error {
	for _, a := range f.acceptances[acc.BidID] {
		if a.UserID == acc.UserID {
			return fmt.Errorf("acceptance: %w", models.ErrAlreadyExists)
		}
	}
	f.acceptances[acc.BidID] = append(f.acceptances[acc.BidID], *acc)
	return nil
}

func (f *fakeBids) ListAcceptances(ctx context.Context, bidID string) ([]models.BidAcceptance, error) {
	return f.acceptances[bidID], nil
}

func (f *fakeBids) HasAcceptance(ctx context.Context, bidID, userID string) (bool, error) {
	for _, a := range f.acceptances[bidID] {
		if a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBids) SelectAcceptance(ctx context.Context, bidID, acceptanceID, posterID string, now time.Time) (*models.SelectionResult, error) {
	return f.selection, nil
}

func (f *fakeBids) Complete(ctx context.Context, bidID, actorID, currency string, now time.Time) (*models.SettlementResult, error) {
	return f.settlement, nil
}

func (f *fakeBids) Cancel(ctx context.Context, bidID, posterID string, now time.Time) (*models.SettlementResult, error) {
	return f.settlement, nil
}

func (f *fakeBids) Boost(ctx context.Context, bidID, userID string, until time.Time) error {
	f.boosted[bidID] = until
	return nil
}

func (f *fakeBids) CreateReview(ctx context.Context, review *models.BidReview) error {
	f.reviews = append(f.reviews, review)
	return nil
}

func (f *fakeBids) ExpireDue(ctx context.Context, now time.Time) ([]models.ExpiredListing, error) {
	return f.expired, nil
}

// fakeOffers keeps offers in memory
type fakeOffers struct {
	OfferStore

	offers  map[string]*models.Offer
	bids    map[string][]models.OfferBid
	expired []models.ExpiredListing
}

func newFakeOffers(offers ...*models.Offer) *fakeOffers {
	f := &fakeOffers{offers: make(map[string]*models.Offer), bids: make(map[string][]models.OfferBid)}
	for _, o := range offers {
		f.offers[o.ID] = o
	}
	return f
}

func (f *fakeOffers) Create(ctx context.Context, o *models.Offer) error {
	f.offers[o.ID] = o
	return nil
}

func (f *fakeOffers) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	o, ok := f.offers[id]
	if !ok {
		return nil, fmt.Errorf("offer: %w", models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOffers) PlaceBid(ctx context.Context, b *models.OfferBid, now time.Time) error {
	f.bids[b.OfferID] = append(f.bids[b.OfferID], *b)
	return nil
}

func (f *fakeOffers) HasBid(ctx context.Context, offerID, userID string) (bool, error) {
	for _, b := range f.bids[offerID] {
		if b.BidderID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOffers) ExpireDue(ctx context.Context, now time.Time) ([]models.ExpiredListing, error) {
	return f.expired, nil
}

// fakeCategories knows a fixed set of category ids
type fakeCategories struct {
	CategoryStore
	ids map[string]bool
}

func (f *fakeCategories) Exists(ctx context.Context, id string) (bool, error) {
	return f.ids[id], nil
}

// fakePayments records ledger operations
type fakePayments struct {
	PaymentStore

	txs          map[string]*models.Transaction
	subs         []*models.Subscription
	gatewayRefs  map[string]string
	confirmed    map[string]bool
	withdrawals  []*models.WithdrawalRequest
	escrow       *models.Escrow
	expiring     []models.Subscription
	expiredCount int64
	withdrawErr  error
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		txs:         make(map[string]*models.Transaction),
		gatewayRefs: make(map[string]string),
		confirmed:   make(map[string]bool),
	}
}

func (f *fakePayments) CreatePendingPayment(ctx context.Context, t *models.Transaction, sub *models.Subscription) error {
	f.txs[t.Reference] = t
	if sub != nil {
		sub.TransactionID = &t.ID
		f.subs = append(f.subs, sub)
	}
	return nil
}

func (f *fakePayments) SetGatewayReference(ctx context.Context, reference, gatewayRef string, response []byte) error {
	f.gatewayRefs[reference] = gatewayRef
	f.txs[reference].GatewayReference = gatewayRef
	return nil
}

func (f *fakePayments) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	t, ok := f.txs[reference]
	if !ok {
		return nil, fmt.Errorf("transaction: %w", models.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakePayments) ConfirmPayment(ctx context.Context, reference string, completed bool, response []byte, rules market.Rules, now time.Time) (*models.PaymentConfirmation, error) {
	t := f.txs[reference]
	if t.Status != models.TxPending {
		return &models.PaymentConfirmation{Transaction: t}, nil
	}
	t.Status = models.TxFailed
	if completed {
		t.Status = models.TxCompleted
	}
	f.confirmed[reference] = completed
	return &models.PaymentConfirmation{Transaction: t, Applied: true}, nil
}

func (f *fakePayments) PurchaseWithWallet(ctx context.Context, userID, subType string, rules market.Rules, now time.Time) (*models.Subscription, *models.Transaction, error) {
	fee, err := rules.FeeFor(subType)
	if err != nil {
		return nil, nil, err
	}
	sub := &models.Subscription{ID: "sub-w", UserID: userID, Type: subType, Amount: fee, IsActive: true}
	t := &models.Transaction{Reference: "TXN_WALLET", UserID: userID, Amount: fee.Neg(), Status: models.TxCompleted}
	f.subs = append(f.subs, sub)
	return sub, t, nil
}

func (f *fakePayments) CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest, rules market.Rules, now time.Time) (*models.Transaction, error) {
	if f.withdrawErr != nil {
		return nil, f.withdrawErr
	}
	req.Status = models.WithdrawalPending
	f.withdrawals = append(f.withdrawals, req)
	return &models.Transaction{Amount: req.Amount.Neg(), Status: models.TxPending}, nil
}

func (f *fakePayments) ProcessWithdrawal(ctx context.Context, id, adminID string, complete bool, notes, currency string, now time.Time) (*models.WithdrawalRequest, error) {
	for _, w := range f.withdrawals {
		if w.ID == id {
			w.Status = models.WithdrawalFailed
			if complete {
				w.Status = models.WithdrawalCompleted
			}
			return w, nil
		}
	}
	return nil, fmt.Errorf("withdrawal request: %w", models.ErrNotFound)
}

func (f *fakePayments) GetEscrow(ctx context.Context, subjectType, subjectID string) (*models.Escrow, error) {
	if f.escrow == nil {
		return nil, fmt.Errorf("escrow: %w", models.ErrNotFound)
	}
	return f.escrow, nil
}

func (f *fakePayments) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	return f.expiredCount, nil
}

func (f *fakePayments) ClaimExpiryNotices(ctx context.Context, now time.Time, window time.Duration) ([]models.Subscription, error) {
	claimed := f.expiring
	f.expiring = nil
	return claimed, nil
}

// fakeGateway answers initiations and verifications from canned values
type fakeGateway struct {
	name      string
	initErr   error
	webhook   *gateway.PaymentStatus
	verify    *gateway.PaymentStatus
	verified  []string
	initiated []gateway.PaymentRequest
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Initiate(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	g.initiated = append(g.initiated, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.PaymentResult{GatewayReference: "GW-" + req.Reference, RedirectURL: "https://pay.example/" + req.Reference}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, gatewayReference string) (*gateway.PaymentStatus, error) {
	g.verified = append(g.verified, gatewayReference)
	return g.verify, nil
}

func (g *fakeGateway) ParseWebhook(body []byte) (*gateway.PaymentStatus, error) {
	return g.webhook, nil
}

type fakeGateways map[string]gateway.Gateway

func (f fakeGateways) Get(name string) (gateway.Gateway, error) {
	g, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", models.ErrGatewayUnavailable, name)
	}
	return g, nil
}

func (f fakeGateways) Names() []string {
	var names []string
	for n := range f {
		names = append(names, n)
	}
	return names
}

func activeUser(id, userType string) *models.User {
	return &models.User{
		ID:          id,
		Username:    id,
		Email:       id + "@example.com",
		UserType:    userType,
		PhoneNumber: "+263771234567",
		IsActive:    true,
		LastSeen:    testNow.Add(-time.Hour),
	}
}

func subscribed(u *models.User) *models.User {
	end := testNow.Add(24 * time.Hour)
	u.SubscriptionActive = true
	u.SubscriptionExpires = &end
	return u
}

func premium(u *models.User) *models.User {
	end := testNow.Add(24 * time.Hour)
	u.IsPremium = true
	u.PremiumExpires = &end
	return u
}
