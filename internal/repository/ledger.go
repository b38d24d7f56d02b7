package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const walletColumns = `user_id, balance, frozen_balance, total_deposited, total_withdrawn,
	min_withdrawal_amount, is_active, created_at, updated_at`

func scanWallet(row scanner) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.UserID, &w.Balance, &w.FrozenBalance, &w.TotalDeposited, &w.TotalWithdrawn,
		&w.MinWithdrawalAmount, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// lockWallet loads a wallet with a row lock held until the transaction ends
func lockWallet(ctx context.Context, q DB, userID string) (*models.Wallet, error) {
	w, err := scanWallet(q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return w, nil
}

// lockWallets locks several wallets in user id order so concurrent transfers cannot deadlock
func lockWallets(ctx context.Context, q DB, userIDs ...string) (map[string]*models.Wallet, error) {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)

	wallets := make(map[string]*models.Wallet, len(ids))
	for _, id := range ids {
		if _, ok := wallets[id]; ok {
			continue
		}
		w, err := lockWallet(ctx, q, id)
		if err != nil {
			return nil, err
		}
		wallets[id] = w
	}
	return wallets, nil
}

func saveWallet(ctx context.Context, q DB, w *models.Wallet, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE wallets SET balance = $2, frozen_balance = $3, total_deposited = $4, total_withdrawn = $5, updated_at = $6
		WHERE user_id = $1`,
		w.UserID, w.Balance, w.FrozenBalance, w.TotalDeposited, w.TotalWithdrawn, now)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// newEntry builds a completed wallet ledger row
func newEntry(userID, txType string, amount decimal.Decimal, currency, subjectType, subjectID, description string, now time.Time) *models.Transaction {
	t := &models.Transaction{
		ID:          uuid.New().String(),
		Reference:   market.NewReference(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Currency:    currency,
		Status:      models.TxCompleted,
		SubjectType: subjectType,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		ProcessedAt: &now,
	}
	if subjectID != "" {
		t.SubjectID = &subjectID
	}
	return t
}

func insertTransaction(ctx context.Context, q DB, t *models.Transaction) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transactions (
			id, reference, user_id, transaction_type, amount, currency, status, payment_method_id,
			subject_type, subject_id, gateway, gateway_reference, gateway_response, description,
			created_at, updated_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID, t.Reference, t.UserID, t.Type, t.Amount, t.Currency, t.Status, t.PaymentMethodID,
		t.SubjectType, t.SubjectID, t.Gateway, t.GatewayReference, nullJSON(t.GatewayResponse), t.Description,
		t.CreatedAt, t.UpdatedAt, t.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", t.Reference, models.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

const escrowColumns = `id, subject_type, subject_id, payer_id, payee_id, amount, commission_amount, status,
	created_at, held_at, released_at, refunded_at`

func scanEscrow(row scanner) (*models.Escrow, error) {
	var e models.Escrow
	if err := row.Scan(&e.ID, &e.SubjectType, &e.SubjectID, &e.PayerID, &e.PayeeID, &e.Amount, &e.CommissionAmount,
		&e.Status, &e.CreatedAt, &e.HeldAt, &e.ReleasedAt, &e.RefundedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// holdEscrow freezes e.Amount on the payer's wallet and records the escrow as HELD
func holdEscrow(ctx context.Context, q DB, e *models.Escrow, now time.Time) error {
	payer, err := lockWallet(ctx, q, e.PayerID)
	if err != nil {
		return err
	}
	if err := market.Hold(payer, e.Amount); err != nil {
		return err
	}
	if err := saveWallet(ctx, q, payer, now); err != nil {
		return err
	}

	e.ID = uuid.New().String()
	e.Status = models.EscrowHeld
	e.CreatedAt = now
	e.HeldAt = &now
	_, err = q.Exec(ctx, `
		INSERT INTO escrows (id, subject_type, subject_id, payer_id, payee_id, amount, commission_amount, status, created_at, held_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		e.ID, e.SubjectType, e.SubjectID, e.PayerID, e.PayeeID, e.Amount, e.CommissionAmount, e.Status, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("escrow for %s %s: %w", e.SubjectType, e.SubjectID, models.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create escrow: %w", err)
	}
	return nil
}

// lockHeldEscrow returns the escrow of a subject locked for update, or nil when there is none
func lockHeldEscrow(ctx context.Context, q DB, subjectType, subjectID string) (*models.Escrow, error) {
	rows, err := q.Query(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE subject_type = $1 AND subject_id = $2 FOR UPDATE`,
		subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock escrow: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEscrow(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan escrow: %w", err)
	}
	if e.Status != models.EscrowHeld {
		return nil, fmt.Errorf("%w: escrow is %s", models.ErrInvalidTransition, e.Status)
	}
	return e, nil
}

// releaseEscrow pays a held escrow out to the payee minus commission and writes the ledger rows
func releaseEscrow(ctx context.Context, q DB, subjectType, subjectID, currency string, now time.Time) (*models.Escrow, error) {
	e, err := lockHeldEscrow(ctx, q, subjectType, subjectID)
	if err != nil || e == nil {
		return nil, err
	}

	wallets, err := lockWallets(ctx, q, e.PayerID, e.PayeeID)
	if err != nil {
		return nil, err
	}
	payer, payee := wallets[e.PayerID], wallets[e.PayeeID]
	if err := market.Release(payer, payee, e.Amount, e.CommissionAmount); err != nil {
		return nil, err
	}
	if err := saveWallet(ctx, q, payer, now); err != nil {
		return nil, err
	}
	if err := saveWallet(ctx, q, payee, now); err != nil {
		return nil, err
	}

	entries := []*models.Transaction{
		newEntry(e.PayerID, models.TxBidPayment, e.Amount.Neg(), currency, subjectType, subjectID, "Escrow released to counterparty", now),
		newEntry(e.PayeeID, models.TxBidPayment, e.Amount, currency, subjectType, subjectID, "Payment received from escrow", now),
	}
	if e.CommissionAmount.IsPositive() {
		entries = append(entries, newEntry(e.PayeeID, models.TxCommission, e.CommissionAmount.Neg(), currency, subjectType, subjectID, "Platform commission", now))
	}
	for _, entry := range entries {
		if err := insertTransaction(ctx, q, entry); err != nil {
			return nil, err
		}
	}

	if _, err := q.Exec(ctx, `UPDATE users SET total_spent = total_spent + $2, updated_at = $3 WHERE id = $1`,
		e.PayerID, e.Amount, now); err != nil {
		return nil, fmt.Errorf("failed to update payer totals: %w", err)
	}
	if _, err := q.Exec(ctx, `UPDATE users SET total_earned = total_earned + $2, updated_at = $3 WHERE id = $1`,
		e.PayeeID, e.Amount.Sub(e.CommissionAmount), now); err != nil {
		return nil, fmt.Errorf("failed to update payee totals: %w", err)
	}

	e.Status = models.EscrowReleased
	e.ReleasedAt = &now
	if _, err := q.Exec(ctx, `UPDATE escrows SET status = $2, released_at = $3 WHERE id = $1`, e.ID, e.Status, now); err != nil {
		return nil, fmt.Errorf("failed to release escrow: %w", err)
	}
	return e, nil
}

// refundEscrow unfreezes a held escrow on the payer's wallet
func refundEscrow(ctx context.Context, q DB, subjectType, subjectID string, now time.Time) (*models.Escrow, error) {
	e, err := lockHeldEscrow(ctx, q, subjectType, subjectID)
	if err != nil || e == nil {
		return nil, err
	}

	payer, err := lockWallet(ctx, q, e.PayerID)
	if err != nil {
		return nil, err
	}
	if err := market.Refund(payer, e.Amount); err != nil {
		return nil, err
	}
	if err := saveWallet(ctx, q, payer, now); err != nil {
		return nil, err
	}

	e.Status = models.EscrowRefunded
	e.RefundedAt = &now
	if _, err := q.Exec(ctx, `UPDATE escrows SET status = $2, refunded_at = $3 WHERE id = $1`, e.ID, e.Status, now); err != nil {
		return nil, fmt.Errorf("failed to refund escrow: %w", err)
	}
	return e, nil
}
