package repository

import (
	"context"
	"errors"
	"fmt"

	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AddPaymentMethod stores a payment method; a user's first method becomes primary
func (r *PaymentRepository) AddPaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM payment_methods WHERE user_id = $1`, pm.UserID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count payment methods: %w", err)
		}
		if count == 0 {
			pm.IsPrimary = true
		}
		if pm.IsPrimary && count > 0 {
			if _, err := tx.Exec(ctx, `UPDATE payment_methods SET is_primary = FALSE WHERE user_id = $1`, pm.UserID); err != nil {
				return fmt.Errorf("failed to reset primary payment method: %w", err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO payment_methods (id, user_id, payment_type, account_number, account_name, is_primary, is_verified, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			pm.ID, pm.UserID, pm.PaymentType, pm.AccountNumber, pm.AccountName, pm.IsPrimary, pm.IsVerified, pm.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add payment method: %w", err)
		}
		return nil
	})
}

// ListPaymentMethods returns a user's payment methods, primary first
func (r *PaymentRepository) ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, payment_type, account_number, account_name, is_primary, is_verified, created_at
		FROM payment_methods WHERE user_id = $1 ORDER BY is_primary DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PaymentMethod, error) {
		var pm models.PaymentMethod
		err := row.Scan(&pm.ID, &pm.UserID, &pm.PaymentType, &pm.AccountNumber, &pm.AccountName,
			&pm.IsPrimary, &pm.IsVerified, &pm.CreatedAt)
		return pm, err
	})
}

// SetPrimaryPaymentMethod makes id the user's only primary method
func (r *PaymentRepository) SetPrimaryPaymentMethod(ctx context.Context, userID, id string) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE payment_methods SET is_primary = (id = $2) WHERE user_id = $1`, userID, id)
		if err != nil {
			return fmt.Errorf("failed to set primary payment method: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("payment method: %w", models.ErrNotFound)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payment_methods WHERE id = $1 AND user_id = $2)`, id, userID).
			Scan(&exists); err != nil {
			return fmt.Errorf("failed to check payment method: %w", err)
		}
		if !exists {
			return fmt.Errorf("payment method: %w", models.ErrNotFound)
		}
		return nil
	})
}

// DeletePaymentMethod removes a method that no withdrawal references
func (r *PaymentRepository) DeletePaymentMethod(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payment_methods WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: payment method is used by a withdrawal", models.ErrInvalidTransition)
		}
		return fmt.Errorf("failed to delete payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment method: %w", models.ErrNotFound)
	}
	return nil
}
