package services

import (
	"context"
	"strings"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AdminService backs the staff dashboard
type AdminService struct {
	stats         StatsStore
	users         UserStore
	payments      PaymentStore
	categories    CategoryStore
	notifications *NotificationService
	broadcast     Enqueuer
	rules         market.Rules
	now           func() time.Time
}

// NewAdminService creates a new admin service
func NewAdminService(stats StatsStore, users UserStore, payments PaymentStore, categories CategoryStore, notifications *NotificationService, broadcast Enqueuer, rules market.Rules) *AdminService {
	return &AdminService{
		stats:         stats,
		users:         users,
		payments:      payments,
		categories:    categories,
		notifications: notifications,
		broadcast:     broadcast,
		rules:         rules,
		now:           time.Now,
	}
}

// Dashboard returns the platform counters
func (s *AdminService) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	return s.stats.Dashboard(ctx, s.now(), s.rules.OnlineWindow)
}

// Users lists accounts, optionally matching search against username, email or phone
func (s *AdminService) Users(ctx context.Context, search string, limit, offset int) ([]models.User, error) {
	limit, offset = page(limit, offset, 50, 200)
	list, err := s.users.List(ctx, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.User{}
	}
	return list, nil
}

// ToggleActive flips whether a user may sign in
func (s *AdminService) ToggleActive(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := !u.IsActive
	if err := s.users.SetFlags(ctx, userID, &active, nil); err != nil {
		return nil, err
	}
	u.IsActive = active
	log.Info().Str("user_id", userID).Bool("is_active", active).Msg("User active flag toggled")
	return u, nil
}

// ToggleVerified flips the verified badge of a user
func (s *AdminService) ToggleVerified(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	verified := !u.IsVerified
	if err := s.users.SetFlags(ctx, userID, nil, &verified); err != nil {
		return nil, err
	}
	u.IsVerified = verified
	log.Info().Str("user_id", userID).Bool("is_verified", verified).Msg("User verified flag toggled")
	return u, nil
}

// Broadcast queues a system announcement to every active user, or to one user type.
// It returns the number of recipients.
func (s *AdminService) Broadcast(ctx context.Context, title, message, userType string) (int, error) {
	title, message = strings.TrimSpace(title), strings.TrimSpace(message)
	if title == "" || message == "" {
		return 0, validationError("title and message are required")
	}
	if userType != "" && userType != models.UserTypeMale && userType != models.UserTypeFemale {
		return 0, validationError("user_type must be M, F or empty")
	}
	ids, err := s.users.ListActiveIDs(ctx, userType)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.broadcast.Enqueue(BroadcastJob{
		UserIDs: ids,
		Type:    models.NotifSystemAnnouncement,
		Title:   title,
		Message: message,
	}); err != nil {
		return 0, err
	}
	log.Info().Int("recipients", len(ids)).Str("user_type", userType).Msg("Broadcast queued")
	return len(ids), nil
}

// NotifyStaff sends an admin notification to every staff user
func (s *AdminService) NotifyStaff(ctx context.Context, message string) (int, error) {
	if strings.TrimSpace(message) == "" {
		return 0, validationError("message is required")
	}
	return s.notifications.NotifyStaff(ctx, message)
}

// CreateCategory adds an event category
func (s *AdminService) CreateCategory(ctx context.Context, name, icon, description string) (*models.EventCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	c := &models.EventCategory{
		ID:          uuid.New().String(),
		Name:        name,
		Icon:        icon,
		Description: description,
		IsActive:    true,
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RecentTransactions returns the newest ledger rows
func (s *AdminService) RecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	limit, _ = page(limit, 0, 10, 100)
	list, err := s.payments.RecentTransactions(ctx, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Transaction{}
	}
	return list, nil
}
