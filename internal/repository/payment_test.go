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

var transactionCols = []string{
	"id", "reference", "user_id", "transaction_type", "amount", "currency", "status", "payment_method_id",
	"subject_type", "subject_id", "gateway", "gateway_reference", "gateway_response", "description",
	"created_at", "updated_at", "processed_at",
}

func txRow(txType, status, amount string, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(transactionCols).AddRow(
		"tx-1", "TXN_ABCDEF012345", "u1", txType, decimal.RequireFromString(amount), "USD", status, nil,
		"", nil, "paynow", "https://poll", nil, "", now, now, nil,
	)
}

func TestConfirmPayment_CreditsDeposit(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"status":"Paid"}`)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM transactions WHERE reference = \$1 FOR UPDATE`).
		WithArgs("TXN_ABCDEF012345").
		WillReturnRows(txRow(models.TxDeposit, models.TxPending, "40.00", now))
	mock.ExpectExec(`UPDATE transactions SET status = \$2`).
		WithArgs("tx-1", models.TxCompleted, string(body), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(walletRow("u1", "10.00", "0", now))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("u1", dec("50"), dec("0"), dec("40"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewPaymentRepository(mock).ConfirmPayment(context.Background(), "TXN_ABCDEF012345", true, body, market.DefaultRules(), now)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, models.TxCompleted, res.Transaction.Status)
}

func TestConfirmPayment_IsIdempotent(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM transactions WHERE reference = \$1 FOR UPDATE`).
		WithArgs("TXN_ABCDEF012345").
		WillReturnRows(txRow(models.TxDeposit, models.TxCompleted, "40.00", now))
	mock.ExpectCommit()

	res, err := NewPaymentRepository(mock).ConfirmPayment(context.Background(), "TXN_ABCDEF012345", true, nil, market.DefaultRules(), now)
	require.NoError(t, err)
	assert.False(t, res.Applied)
}

func TestConfirmPayment_FailedLeavesWallet(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM transactions WHERE reference = \$1 FOR UPDATE`).
		WithArgs("TXN_ABCDEF012345").
		WillReturnRows(txRow(models.TxDeposit, models.TxPending, "40.00", now))
	mock.ExpectExec(`UPDATE transactions SET status = \$2`).
		WithArgs("tx-1", models.TxFailed, nil, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewPaymentRepository(mock).ConfirmPayment(context.Background(), "TXN_ABCDEF012345", false, nil, market.DefaultRules(), now)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, models.TxFailed, res.Transaction.Status)
}

func TestConfirmPayment_ActivatesSubscription(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := now.Add(10 * 24 * time.Hour)
	txID := "tx-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM transactions WHERE reference = \$1 FOR UPDATE`).
		WithArgs("TXN_ABCDEF012345").
		WillReturnRows(txRow(models.TxSubscription, models.TxPending, "-3.00", now))
	mock.ExpectExec(`UPDATE transactions SET status = \$2`).
		WithArgs("tx-1", models.TxCompleted, nil, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM subscriptions WHERE transaction_id = \$1 FOR UPDATE`).
		WithArgs("tx-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "subscription_type", "amount", "start_date", "end_date", "is_active", "transaction_id", "created_at"}).
			AddRow("sub-1", "u1", models.SubWomenAccess, decimal.NewFromInt(3), now, now, false, &txID, now))
	mock.ExpectQuery(`SELECT subscription_expires, premium_expires FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"subscription_expires", "premium_expires"}).AddRow(&current, nil))
	wantEnd := current.Add(30 * 24 * time.Hour)
	mock.ExpectExec(`UPDATE subscriptions SET start_date`).
		WithArgs("sub-1", current, wantEnd).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET subscription_active = TRUE`).
		WithArgs("u1", wantEnd, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewPaymentRepository(mock).ConfirmPayment(context.Background(), "TXN_ABCDEF012345", true, nil, market.DefaultRules(), now)
	require.NoError(t, err)
	require.NotNil(t, res.Subscription)
	assert.True(t, res.Subscription.IsActive)
	assert.Equal(t, wantEnd, res.Subscription.EndDate)
}

func TestProcessWithdrawal_FailureRefunds(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	txID := "tx-w"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM withdrawal_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("wd-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "amount", "payment_method_id", "status", "transaction_id",
			"processed_by", "processed_at", "notes", "created_at"}).
			AddRow("wd-1", "u1", decimal.NewFromInt(25), "pm-1", models.WithdrawalPending, &txID, nil, nil, "", now))
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(walletRow("u1", "5.00", "0", now))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(anyArgs(17)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs("u1", dec("30"), dec("0"), dec("0"), dec("0"), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE transactions SET status = \$2, processed_at`).
		WithArgs("tx-w", models.TxFailed, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE withdrawal_requests SET status`).
		WithArgs("wd-1", models.WithdrawalFailed, "admin", now, "account closed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	req, err := NewPaymentRepository(mock).ProcessWithdrawal(context.Background(), "wd-1", "admin", false, "account closed", "USD", now)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalFailed, req.Status)
}

func TestPurchaseWithWallet_InsufficientFunds(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(walletRow("u1", "25.00", "10.00", now))
	mock.ExpectRollback()

	_, _, err := NewPaymentRepository(mock).PurchaseWithWallet(context.Background(), "u1", models.SubPremiumMen, market.DefaultRules(), now)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestClaimExpiryNotices_FollowsUserExpiry(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(48 * time.Hour)
	window := 3 * 24 * time.Hour

	mock.ExpectQuery(`UPDATE subscriptions SET expiry_notified = TRUE\s+FROM users`+
		`[\s\S]+users.premium_expires > \$1 AND users.premium_expires <= \$2`).
		WithArgs(now, now.Add(window), models.SubPremiumMen, models.SubPremiumWomen).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "subscription_type", "amount", "start_date", "end_date", "is_active", "transaction_id", "created_at"}).
			AddRow("sub-1", "u1", models.SubPremiumMen, decimal.NewFromInt(20), now.Add(-28*24*time.Hour), end, true, nil, now))

	subs, err := NewPaymentRepository(mock).ClaimExpiryNotices(context.Background(), now, window)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "u1", subs[0].UserID)
	assert.Equal(t, end, subs[0].EndDate)
}
