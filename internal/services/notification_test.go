package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotificationStore struct {
	NotificationStore

	mu       sync.Mutex
	created  []*models.Notification
	sent     map[string]bool
	settings map[string]*models.NotificationSettings
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{sent: make(map[string]bool), settings: make(map[string]*models.NotificationSettings)}
}

func (f *fakeNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotificationStore) MarkSent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = true
	return nil
}

func (f *fakeNotificationStore) GetSettings(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[userID]; ok {
		cp := *s
		return &cp, nil
	}
	def := models.DefaultNotificationSettings(userID)
	return &def, nil
}

func (f *fakeNotificationStore) UpdateSettings(ctx context.Context, s *models.NotificationSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[s.UserID] = s
	return nil
}

type countingSender struct {
	mu     sync.Mutex
	calls  int
	failN  int
	err    error
	emails []string
	phones []string
	pushes []string
}

func (c *countingSender) attempt() error {
	c.calls++
	if c.calls <= c.failN {
		return c.err
	}
	return nil
}

func (c *countingSender) Send(ctx context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.attempt(); err != nil {
		return err
	}
	c.emails = append(c.emails, to)
	return nil
}

func (c *countingSender) SendSMS(ctx context.Context, phone, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phones = append(c.phones, phone)
	return nil
}

func (c *countingSender) Push(ctx context.Context, deviceToken, title, body string, custom map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.attempt(); err != nil {
		return err
	}
	c.pushes = append(c.pushes, deviceToken)
	return nil
}

func fastDelivery(t *testing.T) {
	t.Helper()
	orig := deliveryBackoff
	deliveryBackoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	t.Cleanup(func() { deliveryBackoff = orig })
}

func withToken(u *models.User, token string) *models.User {
	u.PushToken = &token
	return u
}

func TestNotify_ChannelRules(t *testing.T) {
	tests := []struct {
		name      string
		typ       string
		settings  func(*models.NotificationSettings)
		wantWS    bool
		wantEmail bool
		wantSMS   bool
	}{
		{"bid accepted defaults", models.NotifBidAccepted, nil, true, true, true},
		{"message defaults", models.NotifNewMessage, nil, true, true, false},
		{"payment received with sms payments", models.NotifPaymentReceived, func(s *models.NotificationSettings) { s.SMSPayments = true; s.SMSUrgent = false }, true, true, true},
		{"payment sent without sms payments", models.NotifPaymentSent, nil, true, true, false},
		{"push disabled", models.NotifBidAccepted, func(s *models.NotificationSettings) { s.PushBidUpdates = false }, false, true, true},
		{"everything off", models.NotifSystemAnnouncement, func(s *models.NotificationSettings) { s.PushSystem = false; s.EmailSystem = false }, false, false, false},
		{"withdrawal is stored only", models.NotifWithdrawalProcessed, nil, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fastDelivery(t)
			store := newFakeNotificationStore()
			if tt.settings != nil {
				s := models.DefaultNotificationSettings("u1")
				tt.settings(&s)
				store.settings["u1"] = &s
			}
			hub := newFakeHub("u1")
			sender := &countingSender{}
			svc := NewNotificationService(store, newFakeUsers(activeUser("u1", models.UserTypeMale)), hub, nil, sender, sender)
			svc.now = fixedNow

			err := svc.Notify(context.Background(), NotificationInput{UserID: "u1", Type: tt.typ, Title: "T", Message: "M"})
			require.NoError(t, err)
			require.Len(t, store.created, 1)

			assert.Equal(t, tt.wantWS, len(hub.framesFor("u1")) == 1)
			assert.Equal(t, tt.wantEmail, len(sender.emails) == 1)
			assert.Equal(t, tt.wantSMS, len(sender.phones) == 1)
			assert.Equal(t, tt.wantWS || tt.wantEmail || tt.wantSMS, store.sent[store.created[0].ID])
		})
	}
}

func TestNotify_WebSocketFrame(t *testing.T) {
	store := newFakeNotificationStore()
	hub := newFakeHub("u1")
	svc := NewNotificationService(store, newFakeUsers(activeUser("u1", models.UserTypeMale)), hub, nil, LogMailer{}, LogSMS{})
	svc.now = fixedNow

	require.NoError(t, svc.Notify(context.Background(), NotificationInput{
		UserID: "u1", Type: models.NotifNewMessage, Title: "New Message", Message: "hi",
	}))
	frames := hub.framesFor("u1")
	require.Len(t, frames, 1)
	assert.Equal(t, FrameNotification, frames[0].Type)
	assert.Equal(t, "New Message", frames[0].Title)
	assert.Equal(t, models.NotifNewMessage, frames[0].NotificationType)
	assert.Equal(t, testNow.UnixMilli(), frames[0].Timestamp)
}

func TestNotify_RetriesTransientFailures(t *testing.T) {
	fastDelivery(t)
	store := newFakeNotificationStore()
	s := models.DefaultNotificationSettings("u1")
	s.EmailPayments = false
	s.SMSUrgent = false
	store.settings["u1"] = &s

	push := &countingSender{failN: 2, err: errors.New("apns returned 503")}
	svc := NewNotificationService(store, newFakeUsers(withToken(activeUser("u1", models.UserTypeMale), "device")), nil, push, LogMailer{}, LogSMS{})

	require.NoError(t, svc.Notify(context.Background(), NotificationInput{UserID: "u1", Type: models.NotifPaymentSent}))
	assert.Equal(t, 3, push.calls)
	assert.Equal(t, []string{"device"}, push.pushes)
	assert.True(t, store.sent[store.created[0].ID])
}

func TestNotify_DoesNotRetryRejectedPush(t *testing.T) {
	fastDelivery(t)
	store := newFakeNotificationStore()
	s := models.DefaultNotificationSettings("u1")
	s.EmailPayments = false
	store.settings["u1"] = &s

	push := &countingSender{failN: 5, err: fmt.Errorf("%w: BadDeviceToken", ErrPushRejected)}
	svc := NewNotificationService(store, newFakeUsers(withToken(activeUser("u1", models.UserTypeMale), "device")), nil, push, LogMailer{}, LogSMS{})

	require.NoError(t, svc.Notify(context.Background(), NotificationInput{UserID: "u1", Type: models.NotifPaymentSent}))
	assert.Equal(t, 1, push.calls)
	assert.False(t, store.sent[store.created[0].ID])
}

func TestNotifyStaff(t *testing.T) {
	admin := activeUser("admin", models.UserTypeMale)
	admin.IsStaff = true
	store := newFakeNotificationStore()
	svc := NewNotificationService(store, newFakeUsers(admin, activeUser("u1", models.UserTypeFemale)), nil, nil, LogMailer{}, LogSMS{})

	n, err := svc.NotifyStaff(context.Background(), "disk almost full")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.created, 1)
	assert.Equal(t, "admin", store.created[0].UserID)
	assert.Equal(t, "Admin Notification", store.created[0].Title)
	assert.Equal(t, models.NotifSystemAnnouncement, store.created[0].Type)
}

func TestUpdateSettings(t *testing.T) {
	store := newFakeNotificationStore()
	svc := NewNotificationService(store, newFakeUsers(), nil, nil, LogMailer{}, LogSMS{})
	svc.now = fixedNow

	in := models.DefaultNotificationSettings("someone-else")
	in.SMSPayments = true
	out, err := svc.UpdateSettings(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.Equal(t, "u1", out.UserID)
	assert.Equal(t, testNow, out.UpdatedAt)
	assert.True(t, store.settings["u1"].SMSPayments)
}

func TestTestPush(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers(activeUser("no-token", models.UserTypeMale), withToken(activeUser("u1", models.UserTypeMale), "device"))

	disabled := NewNotificationService(newFakeNotificationStore(), users, nil, nil, LogMailer{}, LogSMS{})
	require.ErrorIs(t, disabled.TestPush(ctx, "u1"), models.ErrValidation)

	push := &countingSender{}
	svc := NewNotificationService(newFakeNotificationStore(), users, nil, push, LogMailer{}, LogSMS{})
	require.ErrorIs(t, svc.TestPush(ctx, "no-token"), models.ErrValidation)
	require.NoError(t, svc.TestPush(ctx, "u1"))
	assert.Equal(t, []string{"device"}, push.pushes)
}
