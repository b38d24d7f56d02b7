package repository

import (
	"context"
	"testing"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offerCols = []string{
	"id", "user_id", "title", "description", "category_id", "event_date", "available_date", "event_location",
	"event_address", "minimum_bid", "commission_amount", "status", "accepted_by", "accepted_at", "accepted_amount",
	"is_boosted", "boost_expires", "view_count", "created_at", "updated_at", "expires_at",
}

func offerRow(now time.Time, status string, acceptedBy *string) *pgxmock.Rows {
	expires := now.Add(48 * time.Hour)
	return pgxmock.NewRows(offerCols).AddRow(
		"offer-1", "owner", "Dinner date", "", nil, nil, nil, "Bulawayo",
		"", decimal.NewFromInt(40), decimal.NewFromInt(6), status, acceptedBy, nil, nil,
		false, nil, 0, now, now, &expires,
	)
}

func offerEscrowRow(now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(escrowCols).AddRow(
		"esc-1", models.SubjectOffer, "offer-1", "m1", "owner", decimal.NewFromInt(60), decimal.NewFromInt(9),
		models.EscrowHeld, now, &now, nil, nil,
	)
}

func expectOfferSelection(mock pgxmock.PgxPoolIface, now time.Time) {
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM offers WHERE offers.id = \$1 FOR UPDATE`).
		WithArgs("offer-1").
		WillReturnRows(offerRow(now, models.StatusPending, nil))
	mock.ExpectQuery(`SELECT id, bidder_id, status, bid_amount FROM offer_bids WHERE offer_id = \$1 FOR UPDATE`).
		WithArgs("offer-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "bidder_id", "status", "bid_amount"}).
			AddRow("ob-1", "m1", models.CandidatePending, decimal.NewFromInt(60)).
			AddRow("ob-2", "m2", models.CandidatePending, decimal.NewFromInt(45)).
			AddRow("ob-3", "m3", models.CandidateWithdrawn, decimal.NewFromInt(80)))
	mock.ExpectExec(`UPDATE offer_bids SET status = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("ob-1", models.CandidateSelected, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE offer_bids SET status = \$3`).
		WithArgs("offer-1", "ob-1", models.CandidateRejected, now, models.CandidatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE offers SET status = \$2, accepted_by = \$3`).
		WithArgs("offer-1", models.StatusAccepted, "m1", now, dec("60"), dec("9")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestSelectBid_HoldsEscrowFromBidder(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	expectOfferSelection(mock, now)
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(walletRow("m1", "100.00", "0", now))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("m1", dec("100"), dec("60"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO escrows`).
		WithArgs(pgxmock.AnyArg(), models.SubjectOffer, "offer-1", "m1", "owner", dec("60"), dec("9"), models.EscrowHeld, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := NewOfferRepository(mock).SelectBid(context.Background(), "offer-1", "ob-1", "owner", market.DefaultRules(), now)
	require.NoError(t, err)

	assert.Equal(t, models.SubjectOffer, res.SubjectType)
	assert.Equal(t, "m1", res.SelectedUserID)
	assert.Equal(t, []string{"m2"}, res.RejectedUserIDs)
	require.NotNil(t, res.Escrow)
	assert.Equal(t, "m1", res.Escrow.PayerID)
	assert.Equal(t, "owner", res.Escrow.PayeeID)
	assert.True(t, dec("9").Match(res.Escrow.CommissionAmount))
}

func TestSelectBid_InsufficientFundsRollsBack(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	expectOfferSelection(mock, now)
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(walletRow("m1", "70.00", "20.00", now))
	mock.ExpectRollback()

	_, err := NewOfferRepository(mock).SelectBid(context.Background(), "offer-1", "ob-1", "owner", market.DefaultRules(), now)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestSelectBid_OwnerOnly(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM offers WHERE offers.id = \$1 FOR UPDATE`).
		WithArgs("offer-1").
		WillReturnRows(offerRow(now, models.StatusPending, nil))
	mock.ExpectRollback()

	_, err := NewOfferRepository(mock).SelectBid(context.Background(), "offer-1", "ob-1", "m1", market.DefaultRules(), now)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestOfferComplete_ReleasesToOwner(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	m1 := "m1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM offers WHERE offers.id = \$1 FOR UPDATE`).
		WithArgs("offer-1").
		WillReturnRows(offerRow(now, models.StatusAccepted, &m1))
	mock.ExpectExec(`UPDATE offers SET status = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("offer-1", models.StatusCompleted, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM escrows WHERE subject_type = \$1 AND subject_id = \$2 FOR UPDATE`).
		WithArgs(models.SubjectOffer, "offer-1").
		WillReturnRows(offerEscrowRow(now))
	// "m1" sorts before "owner"
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(walletRow("m1", "100.00", "60.00", now))
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("owner").
		WillReturnRows(walletRow("owner", "5.00", "0", now))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("m1", dec("40"), dec("0"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("owner", dec("56"), dec("0"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for range 3 {
		mock.ExpectExec(`INSERT INTO transactions`).
			WithArgs(anyArgs(17)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec(`UPDATE users SET total_spent`).
		WithArgs("m1", dec("60"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET total_earned`).
		WithArgs("owner", dec("51"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE escrows SET status = \$2, released_at = \$3`).
		WithArgs("esc-1", models.EscrowReleased, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewOfferRepository(mock).Complete(context.Background(), "offer-1", "m1", "USD", now)
	require.NoError(t, err)
	assert.Equal(t, "owner", res.PosterID)
	assert.Equal(t, "m1", res.CounterpartyID)
	require.NotNil(t, res.Escrow)
	assert.Equal(t, models.EscrowReleased, res.Escrow.Status)
}

func TestOfferComplete_Outsider(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	m1 := "m1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM offers WHERE offers.id = \$1 FOR UPDATE`).
		WithArgs("offer-1").
		WillReturnRows(offerRow(now, models.StatusAccepted, &m1))
	mock.ExpectRollback()

	_, err := NewOfferRepository(mock).Complete(context.Background(), "offer-1", "m2", "USD", now)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestOfferCancel_RefundsBidder(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m1 := "m1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM offers WHERE offers.id = \$1 FOR UPDATE`).
		WithArgs("offer-1").
		WillReturnRows(offerRow(now, models.StatusAccepted, &m1))
	mock.ExpectExec(`UPDATE offers SET status = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("offer-1", models.StatusCancelled, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`UPDATE offer_bids SET status = \$2`).
		WithArgs("offer-1", models.CandidateRejected, now, models.CandidatePending).
		WillReturnRows(pgxmock.NewRows([]string{"bidder_id"}))
	mock.ExpectQuery(`FROM escrows WHERE subject_type = \$1 AND subject_id = \$2 FOR UPDATE`).
		WithArgs(models.SubjectOffer, "offer-1").
		WillReturnRows(offerEscrowRow(now))
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(walletRow("m1", "100.00", "60.00", now))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("m1", dec("100"), dec("0"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE escrows SET status = \$2, refunded_at = \$3`).
		WithArgs("esc-1", models.EscrowRefunded, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewOfferRepository(mock).Cancel(context.Background(), "offer-1", "owner", false, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, res.AffectedUserIDs)
	assert.Equal(t, "m1", res.CounterpartyID)
	require.NotNil(t, res.Escrow)
	assert.Equal(t, models.EscrowRefunded, res.Escrow.Status)
}

func TestOfferCancel_DeleteRefusesAcceptedOffer(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m1 := "m1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM offers WHERE offers.id = \$1 FOR UPDATE`).
		WithArgs("offer-1").
		WillReturnRows(offerRow(now, models.StatusAccepted, &m1))
	mock.ExpectRollback()

	_, err := NewOfferRepository(mock).Cancel(context.Background(), "offer-1", "owner", true, now)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestOfferExpireDue_RejectsPendingBids(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE offers SET status = \$1, updated_at = \$2`).
		WithArgs(models.StatusExpired, now, models.StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow("offer-1", "owner", "Dinner date"))
	mock.ExpectExec(`WHERE offer_id = ANY\(\$1\)`).
		WithArgs([]string{"offer-1"}, models.CandidateRejected, now, models.CandidatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	expired, err := NewOfferRepository(mock).ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "owner", expired[0].PosterID)
}

func TestOfferWithdrawBid_NothingPending(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE offer_bids SET status = \$3, updated_at = \$4`).
		WithArgs("offer-1", "m1", models.CandidateWithdrawn, now, models.CandidatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewOfferRepository(mock).WithdrawBid(context.Background(), "offer-1", "m1", now)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}
