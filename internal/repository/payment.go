package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, reference, user_id, transaction_type, amount, currency, status, payment_method_id,
	subject_type, subject_id, gateway, gateway_reference, gateway_response, description, created_at, updated_at, processed_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var response []byte
	if err := row.Scan(&t.ID, &t.Reference, &t.UserID, &t.Type, &t.Amount, &t.Currency, &t.Status, &t.PaymentMethodID,
		&t.SubjectType, &t.SubjectID, &t.Gateway, &t.GatewayReference, &response, &t.Description,
		&t.CreatedAt, &t.UpdatedAt, &t.ProcessedAt); err != nil {
		return nil, err
	}
	t.GatewayResponse = response
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var list []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// PaymentRepository handles wallets, the transaction ledger, escrows, subscriptions,
// payment methods and withdrawals
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// GetWallet retrieves a user's wallet
func (r *PaymentRepository) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return w, nil
}

// ListTransactions returns a user's ledger, newest first, optionally filtered by type
func (r *PaymentRepository) ListTransactions(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1 AND ($2 = '' OR transaction_type = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, userID, txType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// RecentTransactions returns the newest ledger rows across all users
func (r *PaymentRepository) RecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}
	return collectTransactions(rows)
}

// GetTransactionByReference looks up a ledger row by its TXN_ reference
func (r *PaymentRepository) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	return t, nil
}

// GetEscrow returns the escrow of a bid or offer
func (r *PaymentRepository) GetEscrow(ctx context.Context, subjectType, subjectID string) (*models.Escrow, error) {
	e, err := scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE subject_type = $1 AND subject_id = $2`,
		subjectType, subjectID))
	if err != nil {
		return nil, notFound(err, "escrow")
	}
	return e, nil
}

// CreatePendingPayment records a gateway-backed ledger row. When sub is given, an inactive
// subscription linked to the row is stored as well and activated on confirmation.
func (r *PaymentRepository) CreatePendingPayment(ctx context.Context, t *models.Transaction, sub *models.Subscription) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		if sub == nil {
			return nil
		}
		sub.TransactionID = &t.ID
		sub.IsActive = false
		return insertSubscription(ctx, tx, sub)
	})
}

// SetGatewayReference stores the gateway's own reference or poll URL on a pending row
func (r *PaymentRepository) SetGatewayReference(ctx context.Context, reference, gatewayRef string, response []byte) error {
	_, err := r.db.Exec(ctx, `
		UPDATE transactions SET gateway_reference = $2, gateway_response = COALESCE($3::jsonb, gateway_response), updated_at = NOW()
		WHERE reference = $1`, reference, gatewayRef, nullJSON(response))
	if err != nil {
		return fmt.Errorf("failed to set gateway reference: %w", err)
	}
	return nil
}

// ConfirmPayment settles a pending gateway-backed ledger row. It is idempotent: a row that
// already left PENDING/PROCESSING is returned unchanged with Applied=false. A completed deposit
// credits the wallet; a completed subscription or premium payment activates its subscription.
func (r *PaymentRepository) ConfirmPayment(ctx context.Context, reference string, completed bool, response []byte, rules market.Rules, now time.Time) (*models.PaymentConfirmation, error) {
	var result *models.PaymentConfirmation
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		t, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference))
		if err != nil {
			return notFound(err, "transaction")
		}
		result = &models.PaymentConfirmation{Transaction: t}
		if t.Status != models.TxPending && t.Status != models.TxProcessing {
			return nil
		}

		status := models.TxFailed
		if completed {
			status = models.TxCompleted
		}
		if _, err := tx.Exec(ctx, `
			UPDATE transactions SET status = $2, gateway_response = COALESCE($3::jsonb, gateway_response),
				processed_at = $4, updated_at = $4
			WHERE id = $1`, t.ID, status, nullJSON(response), now); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		t.Status = status
		t.ProcessedAt = &now
		t.UpdatedAt = now
		if len(response) > 0 {
			t.GatewayResponse = response
		}
		result.Applied = true

		if !completed {
			return nil
		}

		switch t.Type {
		case models.TxDeposit:
			w, err := lockWallet(ctx, tx, t.UserID)
			if err != nil {
				return err
			}
			if err := market.Credit(w, t.Amount); err != nil {
				return err
			}
			w.TotalDeposited = w.TotalDeposited.Add(t.Amount)
			return saveWallet(ctx, tx, w, now)
		case models.TxSubscription, models.TxPremiumUpgrade:
			sub, err := scanSubscription(tx.QueryRow(ctx,
				`SELECT `+subscriptionColumns+` FROM subscriptions WHERE transaction_id = $1 FOR UPDATE`, t.ID))
			if err != nil {
				return notFound(err, "subscription")
			}
			if err := activateSubscription(ctx, tx, sub, rules, now); err != nil {
				return err
			}
			result.Subscription = sub
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
