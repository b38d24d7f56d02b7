package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `subscriptions.id, subscriptions.user_id, subscriptions.subscription_type, subscriptions.amount,
	subscriptions.start_date, subscriptions.end_date, subscriptions.is_active, subscriptions.transaction_id, subscriptions.created_at`

func scanSubscription(row scanner) (*models.Subscription, error) {
	var s models.Subscription
	if err := row.Scan(&s.ID, &s.UserID, &s.Type, &s.Amount, &s.StartDate, &s.EndDate, &s.IsActive,
		&s.TransactionID, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func insertSubscription(ctx context.Context, q DB, s *models.Subscription) error {
	_, err := q.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, subscription_type, amount, start_date, end_date, is_active, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.Type, s.Amount, s.StartDate, s.EndDate, s.IsActive, s.TransactionID, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// activateSubscription starts or extends the access period of sub's user and flips the user flags.
// The user row is locked so concurrent renewals extend from each other's end date.
func activateSubscription(ctx context.Context, q DB, sub *models.Subscription, rules market.Rules, now time.Time) error {
	var subEnd, premiumEnd *time.Time
	err := q.QueryRow(ctx, `SELECT subscription_expires, premium_expires FROM users WHERE id = $1 FOR UPDATE`, sub.UserID).
		Scan(&subEnd, &premiumEnd)
	if err != nil {
		return notFound(err, "user")
	}

	current := subEnd
	if sub.IsPremium() {
		current = premiumEnd
	}
	sub.StartDate, sub.EndDate = rules.Period(current, now)
	sub.IsActive = true

	if _, err := q.Exec(ctx, `UPDATE subscriptions SET start_date = $2, end_date = $3, is_active = TRUE WHERE id = $1`,
		sub.ID, sub.StartDate, sub.EndDate); err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	query := `UPDATE users SET subscription_active = TRUE, subscription_expires = $2, updated_at = $3 WHERE id = $1`
	if sub.IsPremium() {
		query = `UPDATE users SET is_premium = TRUE, premium_expires = $2, updated_at = $3 WHERE id = $1`
	}
	if _, err := q.Exec(ctx, query, sub.UserID, sub.EndDate, now); err != nil {
		return fmt.Errorf("failed to update user access: %w", err)
	}
	return nil
}

// subscriptionTxType maps a subscription type to its ledger entry type
func subscriptionTxType(subType string) string {
	if subType == models.SubWomenAccess {
		return models.TxSubscription
	}
	return models.TxPremiumUpgrade
}

// PurchaseWithWallet pays for a subscription from the wallet and activates it in one transaction
func (r *PaymentRepository) PurchaseWithWallet(ctx context.Context, userID, subType string, rules market.Rules, now time.Time) (*models.Subscription, *models.Transaction, error) {
	fee, err := rules.FeeFor(subType)
	if err != nil {
		return nil, nil, err
	}

	sub := &models.Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      subType,
		Amount:    fee,
		StartDate: now,
		EndDate:   now,
		CreatedAt: now,
	}
	var entry *models.Transaction
	err = WithTx(ctx, r.db, func(tx pgx.Tx) error {
		w, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := market.Debit(w, fee); err != nil {
			return err
		}
		if err := saveWallet(ctx, tx, w, now); err != nil {
			return err
		}

		entry = newEntry(userID, subscriptionTxType(subType), fee.Neg(), rules.Currency, "", "",
			fmt.Sprintf("%s subscription", subType), now)
		if err := insertTransaction(ctx, tx, entry); err != nil {
			return err
		}

		sub.TransactionID = &entry.ID
		if err := insertSubscription(ctx, tx, sub); err != nil {
			return err
		}
		return activateSubscription(ctx, tx, sub, rules, now)
	})
	if err != nil {
		return nil, nil, err
	}
	return sub, entry, nil
}

// ListSubscriptions returns a user's subscriptions, newest first
func (r *PaymentRepository) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := r.db.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Subscription, error) {
		s, err := scanSubscription(row)
		if err != nil {
			return models.Subscription{}, err
		}
		return *s, nil
	})
}

// ExpireSubscriptions deactivates subscriptions and user access flags whose end date passed.
// It returns the number of users whose access changed.
func (r *PaymentRepository) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	var changed int64
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE subscriptions SET is_active = FALSE WHERE is_active AND end_date <= $1`, now); err != nil {
			return fmt.Errorf("failed to expire subscriptions: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE users SET subscription_active = FALSE, updated_at = $1
			WHERE subscription_active AND (subscription_expires IS NULL OR subscription_expires <= $1)`, now)
		if err != nil {
			return fmt.Errorf("failed to expire user subscriptions: %w", err)
		}
		changed += tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
			UPDATE users SET is_premium = FALSE, updated_at = $1
			WHERE is_premium AND (premium_expires IS NULL OR premium_expires <= $1)`, now)
		if err != nil {
			return fmt.Errorf("failed to expire premium: %w", err)
		}
		changed += tag.RowsAffected()
		return nil
	})
	return changed, err
}

// ClaimExpiryNotices marks active premium subscriptions ending within window as notified and
// returns them, so each one is announced once. A subscription followed by an early renewal is
// skipped: the user's premium_expires is already past the window.
func (r *PaymentRepository) ClaimExpiryNotices(ctx context.Context, now time.Time, window time.Duration) ([]models.Subscription, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE subscriptions SET expiry_notified = TRUE
		FROM users
		WHERE users.id = subscriptions.user_id
			AND subscriptions.is_active AND NOT subscriptions.expiry_notified
			AND subscriptions.subscription_type IN ($3, $4)
			AND subscriptions.end_date > $1 AND subscriptions.end_date <= $2
			AND users.premium_expires > $1 AND users.premium_expires <= $2
		RETURNING `+subscriptionColumns,
		now, now.Add(window), models.SubPremiumMen, models.SubPremiumWomen)
	if err != nil {
		return nil, fmt.Errorf("failed to claim expiry notices: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Subscription, error) {
		s, err := scanSubscription(row)
		if err != nil {
			return models.Subscription{}, err
		}
		return *s, nil
	})
}
