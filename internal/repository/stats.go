package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/shopspring/decimal"
)

// StatsRepository computes the admin dashboard figures
type StatsRepository struct {
	db DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Dashboard gathers user, listing, revenue, withdrawal and escrow figures as of now
func (r *StatsRepository) Dashboard(ctx context.Context, now time.Time, onlineWindow time.Duration) (*models.DashboardStats, error) {
	var s models.DashboardStats
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE last_seen >= $1),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE user_type = 'M'),
			COUNT(*) FILTER (WHERE user_type = 'F'),
			COUNT(*) FILTER (WHERE is_premium),
			COUNT(*) FILTER (WHERE is_verified)
		FROM users`, now.Add(-onlineWindow), dayStart,
	).Scan(&s.Users.Total, &s.Users.Active, &s.Users.Online, &s.Users.NewToday,
		&s.Users.Male, &s.Users.Female, &s.Users.Premium, &s.Users.Verified)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*), COUNT(*) FILTER (WHERE created_at >= $1) FROM bids GROUP BY status`, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count bids: %w", err)
	}
	s.Bids.ByStatus = make(map[string]int)
	for rows.Next() {
		var status string
		var count, today int
		if err := rows.Scan(&status, &count, &today); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan bid counts: %w", err)
		}
		s.Bids.ByStatus[status] = count
		s.Bids.Total += count
		s.Bids.Today += today
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bid counts: %w", err)
	}

	err = r.db.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'PENDING') FROM offers`).
		Scan(&s.Offers.Total, &s.Offers.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to count offers: %w", err)
	}

	// Platform income rows are debits on the user side, so revenue is their negated sum.
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(-SUM(amount) FILTER (WHERE created_at >= $1), 0),
			COALESCE(-SUM(amount) FILTER (WHERE created_at >= $2), 0)
		FROM transactions
		WHERE status = 'COMPLETED' AND transaction_type IN ($3, $4, $5)`,
		now.AddDate(0, 0, -7), now.AddDate(0, 0, -30),
		models.TxCommission, models.TxSubscription, models.TxPremiumUpgrade,
	).Scan(&s.Revenue.Week, &s.Revenue.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM withdrawal_requests WHERE status IN ('PENDING', 'PROCESSING')`).
		Scan(&s.PendingWithdrawals.Count, &s.PendingWithdrawals.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending withdrawals: %w", err)
	}

	var held decimal.Decimal
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM escrows WHERE status = 'HELD'`).Scan(&held); err != nil {
		return nil, fmt.Errorf("failed to sum escrow: %w", err)
	}
	s.EscrowHeld = held
	return &s, nil
}
