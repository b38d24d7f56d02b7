package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const userColumns = `
	id, username, email, password_hash, first_name, last_name, gender, user_type,
	date_of_birth, phone_number, profile_picture, bio, city, location, latitude, longitude,
	is_active, is_staff, is_verified, is_premium, premium_expires, subscription_active,
	subscription_expires, referral_code, referred_by, total_referrals, referral_earnings,
	total_earned, total_spent, average_rating, total_reviews, push_token,
	created_at, updated_at, last_seen`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Gender, &u.UserType,
		&u.DateOfBirth, &u.PhoneNumber, &u.ProfilePicture, &u.Bio, &u.City, &u.Location, &u.Latitude, &u.Longitude,
		&u.IsActive, &u.IsStaff, &u.IsVerified, &u.IsPremium, &u.PremiumExpires, &u.SubscriptionActive,
		&u.SubscriptionExpires, &u.ReferralCode, &u.ReferredBy, &u.TotalReferrals, &u.ReferralEarnings,
		&u.TotalEarned, &u.TotalSpent, &u.AverageRating, &u.TotalReviews, &u.PushToken,
		&u.CreatedAt, &u.UpdatedAt, &u.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserRepository handles database operations for users
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user with an empty wallet and default notification settings.
// A set ReferredBy increments the referrer's counter in the same transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, minWithdrawal decimal.Decimal) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (
				id, username, email, password_hash, first_name, last_name, gender, user_type,
				date_of_birth, phone_number, bio, city, is_active, referral_code, referred_by,
				created_at, updated_at, last_seen
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16, $16)`,
			user.ID, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
			user.Gender, user.UserType, user.DateOfBirth, user.PhoneNumber, user.Bio, user.City,
			user.IsActive, user.ReferralCode, user.ReferredBy, user.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", models.ErrAlreadyExists, uniqueField(err))
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO wallets (user_id, min_withdrawal_amount, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
			user.ID, minWithdrawal, user.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO notification_settings (user_id, updated_at) VALUES ($1, $2)`,
			user.ID, user.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create notification settings: %w", err)
		}

		if user.ReferredBy != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE users SET total_referrals = total_referrals + 1, updated_at = $2 WHERE id = $1`,
				*user.ReferredBy, user.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to count referral: %w", err)
			}
		}
		return nil
	})
}

func uniqueField(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	switch pgErr.ConstraintName {
	case "users_username_key":
		return "username"
	case "users_email_key":
		return "email"
	case "users_phone_number_key":
		return "phone_number"
	case "users_referral_code_key":
		return "referral_code"
	}
	return pgErr.ConstraintName
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// GetByLogin retrieves a user by username or email
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR LOWER(email) = LOWER($1)`, login))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// GetByReferralCode retrieves the owner of a referral code
func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
	if err != nil {
		return nil, notFound(err, "referrer")
	}
	return user, nil
}

// ReferralCodeExists checks if a referral code is taken
func (r *UserRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE referral_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check referral code: %w", err)
	}
	return exists, nil
}

// UpdateProfile writes the user-editable profile fields
func (r *UserRepository) UpdateProfile(ctx context.Context, u *models.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET first_name = $2, last_name = $3, bio = $4, city = $5, location = $6,
			date_of_birth = $7, phone_number = $8, updated_at = $9
		WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Bio, u.City, u.Location, u.DateOfBirth, u.PhoneNumber, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", models.ErrAlreadyExists, uniqueField(err))
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", models.ErrNotFound)
	}
	return nil
}

// UpdateLocation stores the user's coordinates and location label
func (r *UserRepository) UpdateLocation(ctx context.Context, userID string, lat, lng decimal.Decimal, location, city string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET latitude = $2, longitude = $3, location = $4,
			city = COALESCE(NULLIF($5, ''), city), updated_at = NOW()
		WHERE id = $1`,
		userID, lat, lng, location, city,
	)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return nil
}

// UpdateProfilePicture stores the object key of the user's picture
func (r *UserRepository) UpdateProfilePicture(ctx context.Context, userID, objectKey string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET profile_picture = $2, updated_at = NOW() WHERE id = $1`, userID, objectKey)
	if err != nil {
		return fmt.Errorf("failed to update profile picture: %w", err)
	}
	return nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET push_token = $1 WHERE id = $2`, pushToken, userID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// Activate marks the user's email as verified and the account as active
func (r *UserRepository) Activate(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET is_active = TRUE, is_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	return nil
}

// TouchLastSeen records activity, skipping writes more frequent than once a minute
func (r *UserRepository) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_seen = $2 WHERE id = $1 AND last_seen < $2::timestamptz - INTERVAL '1 minute'`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// SetFlags lets staff toggle is_active and is_verified
func (r *UserRepository) SetFlags(ctx context.Context, userID string, active, verified *bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET is_active = COALESCE($2, is_active), is_verified = COALESCE($3, is_verified),
			updated_at = NOW()
		WHERE id = $1`, userID, active, verified)
	if err != nil {
		return fmt.Errorf("failed to update user flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", models.ErrNotFound)
	}
	return nil
}

// List returns users matching search on username, email or phone
func (r *UserRepository) List(ctx context.Context, search string, limit, offset int) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE $1 = '' OR username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' OR phone_number LIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListReferrals returns the users referred by userID
func (r *UserRepository) ListReferrals(ctx context.Context, userID string) ([]models.Referral, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, user_type, created_at FROM users
		WHERE referred_by = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	var refs []models.Referral
	for rows.Next() {
		var ref models.Referral
		if err := rows.Scan(&ref.UserID, &ref.Username, &ref.UserType, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListActiveIDs returns ids of active users, optionally of one user type
func (r *UserRepository) ListActiveIDs(ctx context.Context, userType string) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM users WHERE is_active AND ($1 = '' OR user_type = $1)`, userType)
}

// ListStaffIDs returns ids of staff users
func (r *UserRepository) ListStaffIDs(ctx context.Context) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM users WHERE is_staff AND is_active`)
}

func (r *UserRepository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect user ids: %w", err)
	}
	return ids, nil
}

// CreateCode stores a verification code, invalidating earlier unused codes of the same purpose
func (r *UserRepository) CreateCode(ctx context.Context, code *models.VerificationCode) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE verification_codes SET used = TRUE WHERE user_id = $1 AND purpose = $2 AND NOT used`,
			code.UserID, code.Purpose,
		); err != nil {
			return fmt.Errorf("failed to invalidate codes: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO verification_codes (id, user_id, code, purpose, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			code.ID, code.UserID, code.Code, code.Purpose, code.ExpiresAt, code.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create code: %w", err)
		}
		return nil
	})
}

// ConsumeCode marks a matching, unexpired code as used
func (r *UserRepository) ConsumeCode(ctx context.Context, userID, purpose, code string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE verification_codes SET used = TRUE
		WHERE user_id = $1 AND purpose = $2 AND code = $3 AND NOT used AND expires_at > $4`,
		userID, purpose, code, now)
	if err != nil {
		return fmt.Errorf("failed to consume code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidCode
	}
	return nil
}

// UpsertRating stores or replaces a user rating and refreshes the rated user's average
func (r *UserRepository) UpsertRating(ctx context.Context, rating *models.UserRating) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_ratings (id, rated_user_id, rating_user_id, rating, review, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (rated_user_id, rating_user_id)
			DO UPDATE SET rating = EXCLUDED.rating, review = EXCLUDED.review, created_at = EXCLUDED.created_at`,
			rating.ID, rating.RatedUserID, rating.RatingUserID, rating.Rating, rating.Review, rating.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to save rating: %w", err)
		}
		return refreshRating(ctx, tx, rating.RatedUserID)
	})
}

// refreshRating recomputes average_rating and total_reviews from direct ratings and bid reviews
func refreshRating(ctx context.Context, q DB, userID string) error {
	_, err := q.Exec(ctx, `
		WITH all_ratings AS (
			SELECT rating FROM user_ratings WHERE rated_user_id = $1
			UNION ALL
			SELECT rating FROM bid_reviews WHERE reviewed_user_id = $1
		)
		UPDATE users SET
			average_rating = COALESCE((SELECT ROUND(AVG(rating), 2) FROM all_ratings), 0),
			total_reviews = (SELECT COUNT(*) FROM all_ratings),
			updated_at = NOW()
		WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to refresh rating: %w", err)
	}
	return nil
}
