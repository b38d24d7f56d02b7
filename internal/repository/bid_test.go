package repository

import (
	"context"
	"testing"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bidCols = []string{
	"id", "user_id", "title", "description", "category_id", "event_date", "event_location", "event_address",
	"latitude", "longitude", "bid_type", "bid_amount", "total_perk_value", "commission_amount", "status",
	"accepted_by", "accepted_at", "is_boosted", "boost_expires", "view_count", "created_at", "updated_at", "expires_at",
}

var walletCols = []string{
	"user_id", "balance", "frozen_balance", "total_deposited", "total_withdrawn",
	"min_withdrawal_amount", "is_active", "created_at", "updated_at",
}

var escrowCols = []string{
	"id", "subject_type", "subject_id", "payer_id", "payee_id", "amount", "commission_amount", "status",
	"created_at", "held_at", "released_at", "refunded_at",
}

func bidRow(now time.Time, status string, acceptedBy *string) *pgxmock.Rows {
	amount := decimal.NewFromInt(100)
	event := now.Add(72 * time.Hour)
	return pgxmock.NewRows(bidCols).AddRow(
		"bid-1", "poster", "Jazz night", "", nil, event, "Harare", "", nil, nil,
		models.BidTypeMoney, &amount, nil, decimal.RequireFromString("15.00"), status,
		acceptedBy, nil, false, nil, 0, now, now, event.Add(-2*time.Hour),
	)
}

func walletRow(userID string, balance, frozen string, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(walletCols).AddRow(
		userID, decimal.RequireFromString(balance), decimal.RequireFromString(frozen), decimal.Zero, decimal.Zero,
		decimal.NewFromInt(10), true, now, now,
	)
}

func expectSelection(mock pgxmock.PgxPoolIface, now time.Time) {
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bids WHERE bids.id = \$1 FOR UPDATE`).
		WithArgs("bid-1").
		WillReturnRows(bidRow(now, models.StatusPending, nil))
	mock.ExpectQuery(`SELECT id, user_id, status FROM bid_acceptances WHERE bid_id = \$1 FOR UPDATE`).
		WithArgs("bid-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("acc-1", "f1", models.CandidatePending).
			AddRow("acc-2", "f2", models.CandidatePending).
			AddRow("acc-3", "f3", models.CandidateWithdrawn))
	mock.ExpectExec(`UPDATE bid_acceptances SET status = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("acc-1", models.CandidateSelected, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE bid_acceptances SET status = \$3`).
		WithArgs("bid-1", "acc-1", models.CandidateRejected, now, models.CandidatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE bids SET status = \$2, accepted_by = \$3`).
		WithArgs("bid-1", models.StatusAccepted, "f1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestSelectAcceptance_HoldsEscrow(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	expectSelection(mock, now)
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("poster").
		WillReturnRows(walletRow("poster", "250.00", "20.00", now))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("poster", dec("250"), dec("120"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO escrows`).
		WithArgs(pgxmock.AnyArg(), models.SubjectBid, "bid-1", "poster", "f1", dec("100"), dec("15"), models.EscrowHeld, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewBidRepository(mock)
	res, err := repo.SelectAcceptance(context.Background(), "bid-1", "acc-1", "poster", now)
	require.NoError(t, err)

	assert.Equal(t, "f1", res.SelectedUserID)
	assert.Equal(t, []string{"f2"}, res.RejectedUserIDs)
	require.NotNil(t, res.Escrow)
	assert.Equal(t, models.EscrowHeld, res.Escrow.Status)
	assert.Equal(t, "poster", res.Escrow.PayerID)
}

func TestSelectAcceptance_InsufficientFundsRollsBack(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	expectSelection(mock, now)
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("poster").
		WillReturnRows(walletRow("poster", "120.00", "40.00", now))
	mock.ExpectRollback()

	_, err := NewBidRepository(mock).SelectAcceptance(context.Background(), "bid-1", "acc-1", "poster", now)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestSelectAcceptance_Guards(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not the poster", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bids WHERE bids.id = \$1 FOR UPDATE`).
			WithArgs("bid-1").
			WillReturnRows(bidRow(now, models.StatusPending, nil))
		mock.ExpectRollback()

		_, err := NewBidRepository(mock).SelectAcceptance(context.Background(), "bid-1", "acc-1", "someone", now)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("already accepted", func(t *testing.T) {
		mock := newMock(t)
		f1 := "f1"
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bids WHERE bids.id = \$1 FOR UPDATE`).
			WithArgs("bid-1").
			WillReturnRows(bidRow(now, models.StatusAccepted, &f1))
		mock.ExpectRollback()

		_, err := NewBidRepository(mock).SelectAcceptance(context.Background(), "bid-1", "acc-2", "poster", now)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("missing bid", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bids WHERE bids.id = \$1 FOR UPDATE`).
			WithArgs("bid-1").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := NewBidRepository(mock).SelectAcceptance(context.Background(), "bid-1", "acc-1", "poster", now)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestComplete_ReleasesEscrow(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	heldAt := now.Add(-48 * time.Hour)
	f1 := "f1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bids WHERE bids.id = \$1 FOR UPDATE`).
		WithArgs("bid-1").
		WillReturnRows(bidRow(now, models.StatusAccepted, &f1))
	mock.ExpectExec(`UPDATE bids SET status = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("bid-1", models.StatusCompleted, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM escrows WHERE subject_type = \$1 AND subject_id = \$2 FOR UPDATE`).
		WithArgs(models.SubjectBid, "bid-1").
		WillReturnRows(pgxmock.NewRows(escrowCols).AddRow(
			"esc-1", models.SubjectBid, "bid-1", "poster", "f1", decimal.NewFromInt(100), decimal.NewFromInt(15),
			models.EscrowHeld, heldAt, &heldAt, nil, nil,
		))
	// wallets are locked in id order: "f1" before "poster"
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("f1").
		WillReturnRows(walletRow("f1", "5.00", "0", now))
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("poster").
		WillReturnRows(walletRow("poster", "250.00", "100.00", now))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("poster", dec("150"), dec("0"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("f1", dec("90"), dec("0"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for range 3 {
		mock.ExpectExec(`INSERT INTO transactions`).
			WithArgs(anyArgs(17)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec(`UPDATE users SET total_spent`).
		WithArgs("poster", dec("100"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET total_earned`).
		WithArgs("f1", dec("85"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE escrows SET status = \$2, released_at = \$3`).
		WithArgs("esc-1", models.EscrowReleased, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewBidRepository(mock).Complete(context.Background(), "bid-1", "f1", "USD", now)
	require.NoError(t, err)
	assert.Equal(t, "poster", res.PosterID)
	assert.Equal(t, "f1", res.CounterpartyID)
	require.NotNil(t, res.Escrow)
	assert.Equal(t, models.EscrowReleased, res.Escrow.Status)
}

func TestCancel_RefundsWithoutLedgerRow(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	f1 := "f1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bids WHERE bids.id = \$1 FOR UPDATE`).
		WithArgs("bid-1").
		WillReturnRows(bidRow(now, models.StatusAccepted, &f1))
	mock.ExpectExec(`UPDATE bids SET status = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("bid-1", models.StatusCancelled, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`UPDATE bid_acceptances SET status = \$2`).
		WithArgs("bid-1", models.CandidateRejected, now, models.CandidatePending).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery(`FROM escrows WHERE subject_type = \$1 AND subject_id = \$2 FOR UPDATE`).
		WithArgs(models.SubjectBid, "bid-1").
		WillReturnRows(pgxmock.NewRows(escrowCols).AddRow(
			"esc-1", models.SubjectBid, "bid-1", "poster", "f1", decimal.NewFromInt(100), decimal.NewFromInt(15),
			models.EscrowHeld, now, &now, nil, nil,
		))
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("poster").
		WillReturnRows(walletRow("poster", "250.00", "100.00", now))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("poster", dec("250"), dec("0"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE escrows SET status = \$2, refunded_at = \$3`).
		WithArgs("esc-1", models.EscrowRefunded, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewBidRepository(mock).Cancel(context.Background(), "bid-1", "poster", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, res.AffectedUserIDs)
	require.NotNil(t, res.Escrow)
	assert.Equal(t, models.EscrowRefunded, res.Escrow.Status)
}

func TestAccept_DuplicateIsAlreadyExists(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, status, expires_at FROM bids WHERE id = \$1 FOR SHARE`).
		WithArgs("bid-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "status", "expires_at"}).
			AddRow("poster", models.StatusPending, now.Add(time.Hour)))
	mock.ExpectExec(`INSERT INTO bid_acceptances`).
		WithArgs(anyArgs(6)...).
		WillReturnError(uniqueErr())
	mock.ExpectRollback()

	acc := &models.BidAcceptance{ID: "acc-9", BidID: "bid-1", UserID: "f1", Status: models.CandidatePending}
	err := NewBidRepository(mock).Accept(context.Background(), acc, now)
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestAccept_ClosedBid(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, status, expires_at FROM bids WHERE id = \$1 FOR SHARE`).
		WithArgs("bid-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "status", "expires_at"}).
			AddRow("poster", models.StatusPending, now.Add(-time.Minute)))
	mock.ExpectRollback()

	acc := &models.BidAcceptance{ID: "acc-9", BidID: "bid-1", UserID: "f1", Status: models.CandidatePending}
	err := NewBidRepository(mock).Accept(context.Background(), acc, now)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestExpireDue_RejectsPendingAcceptances(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE bids SET status = \$1, updated_at = \$2`).
		WithArgs(models.StatusExpired, now, models.StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow("bid-1", "poster", "Jazz night").
			AddRow("bid-2", "poster", "Braai"))
	mock.ExpectExec(`WHERE bid_id = ANY\(\$1\)`).
		WithArgs([]string{"bid-1", "bid-2"}, models.CandidateRejected, now, models.CandidatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectCommit()

	expired, err := NewBidRepository(mock).ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, "Braai", expired[1].Title)
}
