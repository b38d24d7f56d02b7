package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const settingsColumns = `user_id, email_bid_updates, email_messages, email_payments, email_promotions, email_system,
	push_bid_updates, push_messages, push_payments, push_promotions, push_system, sms_payments, sms_urgent, updated_at`

// NotificationRepository handles notifications and per-user delivery settings
type NotificationRepository struct {
	db DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, message, notification_type, related_object_type, related_object_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.RelatedObjectType, n.RelatedObjectID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// MarkSent records that at least one channel delivered the notification
func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE notifications SET is_sent = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// List returns a user's notifications, newest first
func (r *NotificationRepository) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, title, message, notification_type, related_object_type, related_object_id,
			is_read, is_sent, created_at, read_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Notification, error) {
		var n models.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.RelatedObjectType, &n.RelatedObjectID,
			&n.IsRead, &n.IsSent, &n.CreatedAt, &n.ReadAt)
		return n, err
	})
}

// UnreadCount counts a user's unread notifications
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications read
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2`, id, userID, now)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification: %w", models.ErrNotFound)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND NOT is_read`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetSettings loads a user's settings, creating the defaults when missing
func (r *NotificationRepository) GetSettings(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	d := models.DefaultNotificationSettings(userID)
	var s models.NotificationSettings
	err := r.db.QueryRow(ctx, `
		INSERT INTO notification_settings (`+settingsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+settingsColumns,
		userID, d.EmailBidUpdates, d.EmailMessages, d.EmailPayments, d.EmailPromotions, d.EmailSystem,
		d.PushBidUpdates, d.PushMessages, d.PushPayments, d.PushPromotions, d.PushSystem, d.SMSPayments, d.SMSUrgent,
	).Scan(&s.UserID, &s.EmailBidUpdates, &s.EmailMessages, &s.EmailPayments, &s.EmailPromotions, &s.EmailSystem,
		&s.PushBidUpdates, &s.PushMessages, &s.PushPayments, &s.PushPromotions, &s.PushSystem, &s.SMSPayments, &s.SMSUrgent,
		&s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification settings: %w", err)
	}
	return &s, nil
}

// UpdateSettings overwrites a user's settings
func (r *NotificationRepository) UpdateSettings(ctx context.Context, s *models.NotificationSettings) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notification_settings (`+settingsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id) DO UPDATE SET
			email_bid_updates = EXCLUDED.email_bid_updates, email_messages = EXCLUDED.email_messages,
			email_payments = EXCLUDED.email_payments, email_promotions = EXCLUDED.email_promotions,
			email_system = EXCLUDED.email_system, push_bid_updates = EXCLUDED.push_bid_updates,
			push_messages = EXCLUDED.push_messages, push_payments = EXCLUDED.push_payments,
			push_promotions = EXCLUDED.push_promotions, push_system = EXCLUDED.push_system,
			sms_payments = EXCLUDED.sms_payments, sms_urgent = EXCLUDED.sms_urgent, updated_at = EXCLUDED.updated_at`,
		s.UserID, s.EmailBidUpdates, s.EmailMessages, s.EmailPayments, s.EmailPromotions, s.EmailSystem,
		s.PushBidUpdates, s.PushMessages, s.PushPayments, s.PushPromotions, s.PushSystem, s.SMSPayments, s.SMSUrgent,
		s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update notification settings: %w", err)
	}
	return nil
}
