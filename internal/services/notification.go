package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// NotificationInput describes one notification for one user
type NotificationInput struct {
	UserID            string
	Type              string
	Title             string
	Message           string
	RelatedObjectType string
	RelatedObjectID   string
}

// Hub pushes frames to connected users. *WSHub implements it.
type Hub interface {
	SendToUser(userID string, message WSMessage) error
	IsOnline(userID string) bool
}

// deliveryBackoff bounds every outbound channel to three attempts
var deliveryBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewConstant(200*time.Millisecond))
}

// NotificationService persists notifications and fans them out to the realtime,
// push, email and SMS channels according to the user's settings.
type NotificationService struct {
	store  NotificationStore
	users  UserStore
	hub    Hub
	push   PushSender
	mailer Mailer
	sms    SMSSender
	now    func() time.Time
}

// NewNotificationService creates a dispatcher. push may be nil when APNs is disabled.
func NewNotificationService(store NotificationStore, users UserStore, hub Hub, push PushSender, mailer Mailer, sms SMSSender) *NotificationService {
	return &NotificationService{
		store:  store,
		users:  users,
		hub:    hub,
		push:   push,
		mailer: mailer,
		sms:    sms,
		now:    time.Now,
	}
}

func wantsPush(t string, s *models.NotificationSettings) bool {
	switch t {
	case models.NotifBidAccepted:
		return s.PushBidUpdates
	case models.NotifNewMessage:
		return s.PushMessages
	case models.NotifPaymentReceived, models.NotifPaymentSent:
		return s.PushPayments
	case models.NotifSystemAnnouncement:
		return s.PushSystem
	}
	return false
}

func wantsEmail(t string, s *models.NotificationSettings) bool {
	switch t {
	case models.NotifBidAccepted:
		return s.EmailBidUpdates
	case models.NotifNewMessage:
		return s.EmailMessages
	case models.NotifPaymentReceived, models.NotifPaymentSent:
		return s.EmailPayments
	case models.NotifSystemAnnouncement:
		return s.EmailSystem
	}
	return false
}

func wantsSMS(t string, s *models.NotificationSettings) bool {
	if (t == models.NotifPaymentReceived || t == models.NotifPaymentSent) && s.SMSPayments {
		return true
	}
	return (t == models.NotifBidAccepted || t == models.NotifPaymentReceived) && s.SMSUrgent
}

// Notify stores the notification and delivers it. Only a storage failure is returned;
// channel failures are logged.
func (s *NotificationService) Notify(ctx context.Context, in NotificationInput) error {
	n := &models.Notification{
		ID:                uuid.New().String(),
		UserID:            in.UserID,
		Title:             in.Title,
		Message:           in.Message,
		Type:              in.Type,
		RelatedObjectType: in.RelatedObjectType,
		RelatedObjectID:   in.RelatedObjectID,
		CreatedAt:         s.now(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	settings, err := s.store.GetSettings(ctx, in.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", in.UserID).Msg("Falling back to default notification settings")
		def := models.DefaultNotificationSettings(in.UserID)
		settings = &def
	}

	sent := false
	if wantsPush(n.Type, settings) {
		sent = s.deliverRealtime(ctx, n) || sent
	}

	needEmail, needSMS := wantsEmail(n.Type, settings), wantsSMS(n.Type, settings)
	if needEmail || needSMS {
		user, err := s.users.GetByID(ctx, n.UserID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", n.UserID).Msg("Failed to load notification recipient")
		} else {
			if needEmail && s.deliver(ctx, "email", n, func(ctx context.Context) error {
				return s.mailer.Send(ctx, user.Email, n.Title, n.Message)
			}) {
				sent = true
			}
			if needSMS && user.PhoneNumber != "" && s.deliver(ctx, "sms", n, func(ctx context.Context) error {
				return s.sms.SendSMS(ctx, user.PhoneNumber, n.Title+": "+n.Message)
			}) {
				sent = true
			}
		}
	}

	if sent {
		if err := s.store.MarkSent(ctx, n.ID); err != nil {
			log.Warn().Err(err).Str("notification_id", n.ID).Msg("Failed to mark notification sent")
		}
	}
	return nil
}

// deliverRealtime sends the WebSocket frame and, when the user has a device token, an APNs push
func (s *NotificationService) deliverRealtime(ctx context.Context, n *models.Notification) bool {
	sent := false
	if s.hub != nil && s.hub.IsOnline(n.UserID) {
		err := s.hub.SendToUser(n.UserID, WSMessage{
			Type:             FrameNotification,
			NotificationID:   n.ID,
			Title:            n.Title,
			Message:          n.Message,
			NotificationType: n.Type,
			Timestamp:        n.CreatedAt.UnixMilli(),
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", n.UserID).Msg("Failed to send realtime notification")
		} else {
			sent = true
		}
	}

	if s.push == nil {
		return sent
	}
	user, err := s.users.GetByID(ctx, n.UserID)
	if err != nil || user.PushToken == nil {
		return sent
	}
	custom := map[string]string{"notification_id": n.ID, "notification_type": n.Type}
	if s.deliver(ctx, "push", n, func(ctx context.Context) error {
		return s.push.Push(ctx, *user.PushToken, n.Title, n.Message, custom)
	}) {
		sent = true
	}
	return sent
}

// deliver runs send with retries and reports success
func (s *NotificationService) deliver(ctx context.Context, channel string, n *models.Notification, send func(ctx context.Context) error) bool {
	err := retry.Do(ctx, deliveryBackoff(), func(ctx context.Context) error {
		if err := send(ctx); err != nil {
			if errors.Is(err, ErrPushRejected) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("channel", channel).Str("user_id", n.UserID).Str("type", n.Type).Msg("Notification delivery failed")
		return false
	}
	return true
}

// List returns a page of the user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	limit, offset = page(limit, offset, 20, 100)
	return s.store.List(ctx, userID, unreadOnly, limit, offset)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkRead(ctx, userID, id, s.now())
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID, s.now())
}

func (s *NotificationService) GetSettings(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	return s.store.GetSettings(ctx, userID)
}

// UpdateSettings replaces the user's channel flags
func (s *NotificationService) UpdateSettings(ctx context.Context, userID string, in models.NotificationSettings) (*models.NotificationSettings, error) {
	in.UserID = userID
	in.UpdatedAt = s.now()
	if err := s.store.UpdateSettings(ctx, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// TestPush sends a push straight to the user's registered device
func (s *NotificationService) TestPush(ctx context.Context, userID string) error {
	if s.push == nil {
		return fmt.Errorf("%w: push notifications are disabled", models.ErrValidation)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PushToken == nil {
		return fmt.Errorf("%w: no push token registered", models.ErrValidation)
	}
	return s.push.Push(ctx, *user.PushToken, "MjoloBid", "Push notifications are working", nil)
}

// NotifyStaff sends an announcement to every staff user
func (s *NotificationService) NotifyStaff(ctx context.Context, message string) (int, error) {
	ids, err := s.users.ListStaffIDs(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		err := s.Notify(ctx, NotificationInput{
			UserID:  id,
			Type:    models.NotifSystemAnnouncement,
			Title:   "Admin Notification",
			Message: message,
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", id).Msg("Failed to notify staff user")
			continue
		}
		count++
	}
	return count, nil
}

// notify is used by the other services after a state change has committed
func notify(ctx context.Context, n Notifier, in NotificationInput) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, in); err != nil {
		log.Error().Err(err).Str("user_id", in.UserID).Str("type", in.Type).Msg("Failed to notify user")
	}
}
