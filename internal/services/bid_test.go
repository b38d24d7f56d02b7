package services

import (
	"context"
	"testing"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bidFixture struct {
	svc      *BidService
	bids     *fakeBids
	users    *fakeUsers
	notifier *fakeNotifier
	hub      *fakeHub
}

func newBidFixture(users []*models.User, bids ...*models.Bid) *bidFixture {
	f := &bidFixture{
		bids:     newFakeBids(bids...),
		users:    newFakeUsers(users...),
		notifier: &fakeNotifier{},
		hub:      newFakeHub("man", "woman"),
	}
	cats := &fakeCategories{ids: map[string]bool{"cat-1": true}}
	f.svc = NewBidService(f.bids, f.users, cats, nil, f.notifier, f.hub, market.DefaultRules())
	f.svc.now = fixedNow
	return f
}

func openBid(id, posterID string) *models.Bid {
	amount := dec("50")
	return &models.Bid{
		ID:        id,
		UserID:    posterID,
		Title:     "Wedding in Borrowdale",
		BidType:   models.BidTypeMoney,
		BidAmount: &amount,
		Status:    models.StatusPending,
		EventDate: testNow.Add(48 * time.Hour),
		ExpiresAt: testNow.Add(46 * time.Hour),
	}
}

func TestBidCreate_Money(t *testing.T) {
	f := newBidFixture([]*models.User{activeUser("man", models.UserTypeMale)})
	amount := dec("100")
	cat := "cat-1"

	bid, err := f.svc.Create(context.Background(), "man", CreateBidInput{
		Title:         "Concert date",
		CategoryID:    &cat,
		EventDate:     testNow.Add(24 * time.Hour),
		EventLocation: "HICC",
		BidType:       models.BidTypeMoney,
		BidAmount:     &amount,
	})
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(bid.CommissionAmount))
	assert.Equal(t, testNow.Add(22*time.Hour), bid.ExpiresAt)
	assert.Equal(t, models.StatusPending, bid.Status)
	assert.Contains(t, f.bids.bids, bid.ID)
}

func TestBidCreate_Perks(t *testing.T) {
	f := newBidFixture([]*models.User{activeUser("man", models.UserTypeMale)})

	bid, err := f.svc.Create(context.Background(), "man", CreateBidInput{
		Title:         "Dinner",
		EventDate:     testNow.Add(24 * time.Hour),
		EventLocation: "Avondale",
		BidType:       models.BidTypePerks,
		Perks: []PerkInput{
			{Category: "DINING", Description: "Three courses", EstimatedValue: dec("40"), Quantity: 1},
			{Category: "FUEL", Description: "Fuel coupons", EstimatedValue: dec("5"), Quantity: 4},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, bid.TotalPerkValue)
	assert.True(t, dec("60").Equal(*bid.TotalPerkValue))
	assert.True(t, bid.CommissionAmount.IsZero())
	assert.Nil(t, bid.BidAmount)
}

func TestBidCreate_Rejections(t *testing.T) {
	low := dec("2")
	ok := dec("50")
	bad := "cat-x"
	tests := []struct {
		name   string
		userID string
		in     CreateBidInput
		want   error
	}{
		{"female poster", "woman", CreateBidInput{Title: "x", EventLocation: "x", EventDate: testNow.Add(24 * time.Hour), BidType: models.BidTypeMoney, BidAmount: &ok}, models.ErrForbidden},
		{"below minimum", "man", CreateBidInput{Title: "x", EventLocation: "x", EventDate: testNow.Add(24 * time.Hour), BidType: models.BidTypeMoney, BidAmount: &low}, models.ErrValidation},
		{"missing amount", "man", CreateBidInput{Title: "x", EventLocation: "x", EventDate: testNow.Add(24 * time.Hour), BidType: models.BidTypeMoney}, models.ErrValidation},
		{"too soon", "man", CreateBidInput{Title: "x", EventLocation: "x", EventDate: testNow.Add(time.Hour), BidType: models.BidTypeMoney, BidAmount: &ok}, models.ErrValidation},
		{"no perks", "man", CreateBidInput{Title: "x", EventLocation: "x", EventDate: testNow.Add(24 * time.Hour), BidType: models.BidTypePerks}, models.ErrValidation},
		{"unknown perk", "man", CreateBidInput{Title: "x", EventLocation: "x", EventDate: testNow.Add(24 * time.Hour), BidType: models.BidTypePerks, Perks: []PerkInput{{Category: "YACHT", EstimatedValue: ok, Quantity: 1}}}, models.ErrValidation},
		{"unknown category", "man", CreateBidInput{Title: "x", EventLocation: "x", CategoryID: &bad, EventDate: testNow.Add(24 * time.Hour), BidType: models.BidTypeMoney, BidAmount: &ok}, models.ErrValidation},
		{"bad type", "man", CreateBidInput{Title: "x", EventLocation: "x", EventDate: testNow.Add(24 * time.Hour), BidType: "GOLD"}, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBidFixture([]*models.User{activeUser("man", models.UserTypeMale), activeUser("woman", models.UserTypeFemale)})
			_, err := f.svc.Create(context.Background(), tt.userID, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBidBrowse_RequiresSubscription(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture([]*models.User{
		activeUser("man", models.UserTypeMale),
		activeUser("woman", models.UserTypeFemale),
		subscribed(activeUser("subscriber", models.UserTypeFemale)),
	}, openBid("b1", "man"))

	_, err := f.svc.Browse(ctx, "woman", BrowseInput{})
	require.ErrorIs(t, err, models.ErrSubscriptionRequired)

	_, err = f.svc.Browse(ctx, "man", BrowseInput{})
	require.ErrorIs(t, err, models.ErrForbidden)

	bids, err := f.svc.Browse(ctx, "subscriber", BrowseInput{})
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "b1", bids[0].ID)
}

func TestBidGet_RecordsViewForOthers(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture(nil, openBid("b1", "man"))

	_, err := f.svc.Get(ctx, "man", "b1")
	require.NoError(t, err)
	assert.Empty(t, f.bids.views)

	_, err = f.svc.Get(ctx, "woman", "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"woman"}, f.bids.views)
}

func TestBidAccept(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture([]*models.User{
		activeUser("man", models.UserTypeMale),
		subscribed(activeUser("woman", models.UserTypeFemale)),
	}, openBid("b1", "man"))

	acc, err := f.svc.Accept(ctx, "woman", "b1", " I'd love to ")
	require.NoError(t, err)
	assert.Equal(t, "I'd love to", acc.Message)
	assert.Equal(t, models.CandidatePending, acc.Status)

	sent := f.notifier.forUser("man")
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotifBidAccepted, sent[0].Type)
	assert.Equal(t, "woman has accepted your bid for Wedding in Borrowdale", sent[0].Message)

	frames := f.hub.framesFor("man")
	require.Len(t, frames, 1)
	assert.Equal(t, FrameBidUpdate, frames[0].Type)

	_, err = f.svc.Accept(ctx, "woman", "b1", "")
	require.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestBidAccept_Rejections(t *testing.T) {
	ctx := context.Background()
	expired := openBid("old", "man")
	expired.ExpiresAt = testNow.Add(-time.Minute)
	f := newBidFixture([]*models.User{
		activeUser("man", models.UserTypeMale),
		activeUser("unsubscribed", models.UserTypeFemale),
		subscribed(activeUser("woman", models.UserTypeFemale)),
	}, openBid("b1", "man"), expired)

	_, err := f.svc.Accept(ctx, "man", "b1", "")
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.Accept(ctx, "unsubscribed", "b1", "")
	require.ErrorIs(t, err, models.ErrSubscriptionRequired)

	_, err = f.svc.Accept(ctx, "woman", "old", "")
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestBidChoose_NotifiesSelectedAndRejected(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture(nil, openBid("b1", "man"))
	f.bids.selection = &models.SelectionResult{
		SubjectType:     models.SubjectBid,
		SubjectID:       "b1",
		SelectedID:      "acc-1",
		SelectedUserID:  "woman",
		RejectedUserIDs: []string{"w2", "w3"},
	}

	res, err := f.svc.Choose(ctx, "man", "b1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "woman", res.SelectedUserID)

	require.Len(t, f.notifier.forUser("woman"), 1)
	assert.Equal(t, models.NotifBidAccepted, f.notifier.forUser("woman")[0].Type)
	for _, id := range []string{"w2", "w3"} {
		got := f.notifier.forUser(id)
		require.Len(t, got, 1)
		assert.Equal(t, models.NotifBidCancelled, got[0].Type)
	}
}

func TestBidComplete_NotifiesBothParties(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture(nil, openBid("b1", "man"))
	f.bids.settlement = &models.SettlementResult{
		SubjectType: models.SubjectBid,
		SubjectID:   "b1",
		Escrow: &models.Escrow{
			PayerID:          "man",
			PayeeID:          "woman",
			Amount:           dec("50"),
			CommissionAmount: dec("7.5"),
			Status:           models.EscrowReleased,
		},
	}

	_, err := f.svc.Complete(ctx, "man", "b1")
	require.NoError(t, err)

	paid := f.notifier.forUser("man")
	require.Len(t, paid, 1)
	assert.Equal(t, models.NotifPaymentSent, paid[0].Type)
	assert.Equal(t, "Payment sent: $50.00", paid[0].Message)

	got := f.notifier.forUser("woman")
	require.Len(t, got, 1)
	assert.Equal(t, models.NotifPaymentReceived, got[0].Type)
	assert.Equal(t, "Payment received: $42.50", got[0].Message)
}

func TestBidCancel_NotifiesAffected(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture(nil, openBid("b1", "man"))
	f.bids.settlement = &models.SettlementResult{SubjectType: models.SubjectBid, SubjectID: "b1", AffectedUserIDs: []string{"w1", "w2"}}

	_, err := f.svc.Cancel(ctx, "man", "b1")
	require.NoError(t, err)
	assert.Len(t, f.notifier.forUser("w1"), 1)
	assert.Len(t, f.notifier.forUser("w2"), 1)
	assert.Equal(t, models.NotifBidCancelled, f.notifier.forUser("w1")[0].Type)
}

func TestBidBoost_RequiresPremium(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture([]*models.User{
		activeUser("man", models.UserTypeMale),
		premium(activeUser("vip", models.UserTypeMale)),
	}, openBid("b1", "man"), openBid("b2", "vip"))

	_, err := f.svc.Boost(ctx, "man", "b1")
	require.ErrorIs(t, err, models.ErrPremiumRequired)

	until, err := f.svc.Boost(ctx, "vip", "b2")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(24*time.Hour), until)
	assert.Equal(t, until, f.bids.boosted["b2"])
}

func TestBidReview(t *testing.T) {
	ctx := context.Background()
	done := openBid("b1", "man")
	done.Status = models.StatusCompleted
	partner := "woman"
	done.AcceptedBy = &partner
	f := newBidFixture(nil, done, openBid("b2", "man"))

	_, err := f.svc.Review(ctx, "man", "b2", 5, "")
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.Review(ctx, "stranger", "b1", 5, "")
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.Review(ctx, "man", "b1", 0, "")
	require.ErrorIs(t, err, models.ErrValidation)

	review, err := f.svc.Review(ctx, "woman", "b1", 4, " lovely evening ")
	require.NoError(t, err)
	assert.Equal(t, "man", review.ReviewedUserID)
	assert.Equal(t, "lovely evening", review.ReviewText)
}

func TestBidListAcceptances_PosterOnly(t *testing.T) {
	ctx := context.Background()
	f := newBidFixture(nil, openBid("b1", "man"))

	_, err := f.svc.ListAcceptances(ctx, "woman", "b1")
	require.ErrorIs(t, err, models.ErrForbidden)

	list, err := f.svc.ListAcceptances(ctx, "man", "b1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
