package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const withdrawalColumns = `id, user_id, amount, payment_method_id, status, transaction_id, processed_by, processed_at, notes, created_at`

func scanWithdrawal(row scanner) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	if err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.PaymentMethodID, &w.Status, &w.TransactionID,
		&w.ProcessedBy, &w.ProcessedAt, &w.Notes, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func collectWithdrawals(rows pgx.Rows) ([]models.WithdrawalRequest, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WithdrawalRequest, error) {
		w, err := scanWithdrawal(row)
		if err != nil {
			return models.WithdrawalRequest{}, err
		}
		return *w, nil
	})
}

// CreateWithdrawal debits the wallet and records a pending ledger row and request in one transaction
func (r *PaymentRepository) CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest, rules market.Rules, now time.Time) (*models.Transaction, error) {
	var entry *models.Transaction
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var owner string
		if err := tx.QueryRow(ctx, `SELECT user_id FROM payment_methods WHERE id = $1`, req.PaymentMethodID).Scan(&owner); err != nil {
			return notFound(err, "payment method")
		}
		if owner != req.UserID {
			return fmt.Errorf("%w: payment method belongs to another user", models.ErrForbidden)
		}

		w, err := lockWallet(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := rules.ValidateWithdrawal(req.Amount, w); err != nil {
			return err
		}
		if err := market.Debit(w, req.Amount); err != nil {
			return err
		}
		if err := saveWallet(ctx, tx, w, now); err != nil {
			return err
		}

		entry = newEntry(req.UserID, models.TxWithdrawal, req.Amount.Neg(), rules.Currency, "", "", "Withdrawal request", now)
		entry.Status = models.TxPending
		entry.ProcessedAt = nil
		entry.PaymentMethodID = &req.PaymentMethodID
		if err := insertTransaction(ctx, tx, entry); err != nil {
			return err
		}

		req.Status = models.WithdrawalPending
		req.TransactionID = &entry.ID
		req.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO withdrawal_requests (id, user_id, amount, payment_method_id, status, transaction_id, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			req.ID, req.UserID, req.Amount, req.PaymentMethodID, req.Status, req.TransactionID, req.Notes, now)
		if err != nil {
			return fmt.Errorf("failed to create withdrawal request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ProcessWithdrawal completes or fails a pending request. Completion marks the ledger row
// COMPLETED and counts the payout; failure marks it FAILED and re-credits the wallet with a REFUND row.
func (r *PaymentRepository) ProcessWithdrawal(ctx context.Context, id, adminID string, complete bool, notes, currency string, now time.Time) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		req, err = scanWithdrawal(tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "withdrawal request")
		}
		if req.Status != models.WithdrawalPending && req.Status != models.WithdrawalProcessing {
			return fmt.Errorf("%w: withdrawal is %s", models.ErrInvalidTransition, req.Status)
		}

		w, err := lockWallet(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		txStatus := models.TxCompleted
		if complete {
			req.Status = models.WithdrawalCompleted
			w.TotalWithdrawn = w.TotalWithdrawn.Add(req.Amount)
		} else {
			txStatus = models.TxFailed
			req.Status = models.WithdrawalFailed
			if err := market.Credit(w, req.Amount); err != nil {
				return err
			}
			refund := newEntry(req.UserID, models.TxRefund, req.Amount, currency, "", "", "Withdrawal failed, funds returned", now)
			if err := insertTransaction(ctx, tx, refund); err != nil {
				return err
			}
		}
		if err := saveWallet(ctx, tx, w, now); err != nil {
			return err
		}

		if req.TransactionID != nil {
			if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $2, processed_at = $3, updated_at = $3 WHERE id = $1`,
				*req.TransactionID, txStatus, now); err != nil {
				return fmt.Errorf("failed to update withdrawal transaction: %w", err)
			}
		}

		req.ProcessedBy = &adminID
		req.ProcessedAt = &now
		req.Notes = notes
		if _, err := tx.Exec(ctx, `
			UPDATE withdrawal_requests SET status = $2, processed_by = $3, processed_at = $4, notes = $5
			WHERE id = $1`, req.ID, req.Status, adminID, now, notes); err != nil {
			return fmt.Errorf("failed to update withdrawal request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListWithdrawals returns requests with the given status, oldest first; an empty status lists all
func (r *PaymentRepository) ListWithdrawals(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE ($1 = '' OR status = $1) ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

// ListWithdrawalsByUser returns a user's requests, newest first
func (r *PaymentRepository) ListWithdrawalsByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}
