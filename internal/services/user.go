package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"sync"
	"time"

	"mjolobid-backend/internal/gateway"
	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	referralCodeLength = 8
	referralCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	verificationDigits = 6
	verificationTTL    = 15 * time.Minute
	minPasswordLength  = 8
	minAge             = 18
	lastSeenThrottle   = time.Minute
	activeCacheTTL     = 30 * time.Second
	defaultCity        = "Harare"
)

// Claims are the custom JWT claims of an access token
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
	IsStaff  bool   `json:"is_staff"`
}

// UserService handles accounts, authentication and profiles
type UserService struct {
	users     UserStore
	media     *MediaService
	mailer    Mailer
	presence  Presence
	rules     market.Rules
	jwtSecret string
	jwtTTL    time.Duration
	now       func() time.Time

	seenMu sync.Mutex
	seen   map[string]time.Time

	activeMu sync.Mutex
	active   map[string]time.Time
}

// NewUserService creates a new user service
func NewUserService(users UserStore, media *MediaService, mailer Mailer, presence Presence, rules market.Rules, jwtSecret string, jwtTTL time.Duration) *UserService {
	return &UserService{
		users:     users,
		media:     media,
		mailer:    mailer,
		presence:  presence,
		rules:     rules,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		now:       time.Now,
		seen:      make(map[string]time.Time),
		active:    make(map[string]time.Time),
	}
}

// RegisterInput is the sign-up form
type RegisterInput struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Gender       string `json:"gender"`
	UserType     string `json:"user_type"`
	PhoneNumber  string `json:"phone_number"`
	DateOfBirth  string `json:"date_of_birth"`
	City         string `json:"city"`
	Bio          string `json:"bio"`
	ReferralCode string `json:"referral_code"`
}

// AuthResult is returned by a successful login
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// GenerateReferralCode returns an unused 8-character referral code
func (s *UserService) GenerateReferralCode(ctx context.Context) (string, error) {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		code := randomString(referralCodeChars, referralCodeLength)
		exists, err := s.users.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxAttempts)
}

func randomString(alphabet string, n int) string {
	out := make([]byte, n)
	for i := range out {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}

// GenerateJWT generates an access token for a user
func (s *UserService) GenerateJWT(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
		},
		UserID:   user.ID,
		UserType: user.UserType,
		IsStaff:  user.IsStaff,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates an access token and returns its claims
func (s *UserService) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("user_id not found in token")
	}
	return claims, nil
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

// Register creates an inactive account and emails a verification code
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return nil, validationError("username is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, validationError("invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, validationError("password must be at least %d characters", minPasswordLength)
	}
	if in.UserType != models.UserTypeMale && in.UserType != models.UserTypeFemale {
		return nil, validationError("user_type must be M or F")
	}
	if in.Gender == "" {
		in.Gender = in.UserType
	}
	if in.Gender != models.UserTypeMale && in.Gender != models.UserTypeFemale {
		return nil, validationError("gender must be M or F")
	}
	if strings.TrimSpace(in.PhoneNumber) == "" {
		return nil, validationError("phone number is required")
	}

	now := s.now()
	dob, err := time.Parse(time.DateOnly, in.DateOfBirth)
	if err != nil {
		return nil, validationError("date_of_birth must be YYYY-MM-DD")
	}
	if dob.AddDate(minAge, 0, 0).After(now) {
		return nil, validationError("you must be at least %d years old", minAge)
	}

	user := &models.User{
		ID:          uuid.New().String(),
		Username:    in.Username,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Gender:      in.Gender,
		UserType:    in.UserType,
		DateOfBirth: &dob,
		PhoneNumber: gateway.FormatPhone(in.PhoneNumber),
		Bio:         in.Bio,
		City:        in.City,
		CreatedAt:   now,
	}
	if user.City == "" {
		user.City = defaultCity
	}

	if code := strings.ToUpper(strings.TrimSpace(in.ReferralCode)); code != "" {
		referrer, err := s.users.GetByReferralCode(ctx, code)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, validationError("invalid referral code")
			}
			return nil, err
		}
		user.ReferredBy = &referrer.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)

	if user.ReferralCode, err = s.GenerateReferralCode(ctx); err != nil {
		return nil, fmt.Errorf("failed to generate referral code: %w", err)
	}

	if err := s.users.Create(ctx, user, s.rules.MinWithdrawal); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Str("user_type", user.UserType).Msg("User registered")

	if err := s.issueCode(ctx, user, models.CodePurposeVerifyEmail); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to send verification code")
	}
	return user, nil
}

func (s *UserService) issueCode(ctx context.Context, user *models.User, purpose string) error {
	now := s.now()
	code := &models.VerificationCode{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Code:      randomString("0123456789", verificationDigits),
		Purpose:   purpose,
		ExpiresAt: now.Add(verificationTTL),
		CreatedAt: now,
	}
	if err := s.users.CreateCode(ctx, code); err != nil {
		return err
	}

	subject := "Verify Your MjoloBid Account"
	if purpose == models.CodePurposeResetPassword {
		subject = "Password Reset Verification Code"
	}
	body := fmt.Sprintf("Your MjoloBid code is %s. It expires in %d minutes.", code.Code, int(verificationTTL.Minutes()))
	return s.mailer.Send(ctx, user.Email, subject, body)
}

// VerifyEmail activates the account owning email when code matches
func (s *UserService) VerifyEmail(ctx context.Context, email, code string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCode
		}
		return nil, err
	}
	if err := s.users.ConsumeCode(ctx, user.ID, models.CodePurposeVerifyEmail, strings.TrimSpace(code), s.now()); err != nil {
		return nil, err
	}
	if err := s.users.Activate(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsActive = true
	user.IsVerified = true

	token, err := s.GenerateJWT(user)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Msg("Email verified")
	return &AuthResult{Token: token, User: user}, nil
}

// ResendVerification issues a fresh verification code. Unknown emails are ignored.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	// verified accounts get no code, including ones a staff member deactivated
	if user.IsActive || user.IsVerified {
		return nil
	}
	return s.issueCode(ctx, user, models.CodePurposeVerifyEmail)
}

// Login checks credentials given a username or an email
func (s *UserService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, models.ErrInactiveAccount
	}

	s.TouchLastSeen(ctx, user.ID)

	token, err := s.GenerateJWT(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// RequestPasswordReset mails a reset code. Unknown emails are ignored.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.issueCode(ctx, user, models.CodePurposeResetPassword)
}

// ResetPassword sets a new password after checking the reset code
func (s *UserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return validationError("password must be at least %d characters", minPasswordLength)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidCode
		}
		return err
	}
	if err := s.users.ConsumeCode(ctx, user.ID, models.CodePurposeResetPassword, strings.TrimSpace(code), s.now()); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, user.ID, string(hash))
}

// GetUser returns the full record of a user
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// IsOnline reports a live connection or activity within the online window
func (s *UserService) IsOnline(u *models.User) bool {
	if s.presence != nil && s.presence.IsOnline(u.ID) {
		return true
	}
	return s.now().Sub(u.LastSeen) <= s.rules.OnlineWindow
}

// GetPublicProfile returns another user's profile without private data
func (s *UserService) GetPublicProfile(ctx context.Context, userID string) (*models.PublicProfile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("user: %w", models.ErrNotFound)
	}
	p := u.Public(s.IsOnline(u))
	return &p, nil
}

// ProfileUpdate carries the editable profile fields; nil fields are left unchanged
type ProfileUpdate struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Bio         *string `json:"bio"`
	City        *string `json:"city"`
	Location    *string `json:"location"`
	PhoneNumber *string `json:"phone_number"`
	DateOfBirth *string `json:"date_of_birth"`
}

// UpdateProfile applies a partial profile update
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Bio != nil {
		u.Bio = *in.Bio
	}
	if in.City != nil {
		u.City = *in.City
	}
	if in.Location != nil {
		u.Location = *in.Location
	}
	if in.PhoneNumber != nil {
		u.PhoneNumber = gateway.FormatPhone(*in.PhoneNumber)
	}
	if in.DateOfBirth != nil {
		dob, err := time.Parse(time.DateOnly, *in.DateOfBirth)
		if err != nil {
			return nil, validationError("date_of_birth must be YYYY-MM-DD")
		}
		if dob.AddDate(minAge, 0, 0).After(s.now()) {
			return nil, validationError("you must be at least %d years old", minAge)
		}
		u.DateOfBirth = &dob
	}
	u.UpdatedAt = s.now()

	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateLocation stores the device coordinates
func (s *UserService) UpdateLocation(ctx context.Context, userID string, lat, lng decimal.Decimal, location, city string) error {
	if lat.Abs().GreaterThan(decimal.NewFromInt(90)) || lng.Abs().GreaterThan(decimal.NewFromInt(180)) {
		return validationError("coordinates out of range")
	}
	return s.users.UpdateLocation(ctx, userID, lat, lng, location, city)
}

// SetPushToken registers or, with an empty token, removes the APNs device token
func (s *UserService) SetPushToken(ctx context.Context, userID, token string) error {
	var ptr *string
	if token = strings.TrimSpace(token); token != "" {
		ptr = &token
	}
	return s.users.UpdatePushToken(ctx, userID, ptr)
}

// ProfilePictureUpload presigns an upload and points the profile at the new object
func (s *UserService) ProfilePictureUpload(ctx context.Context, userID, contentType string) (*UploadURL, error) {
	up, err := s.media.PresignUpload(ctx, MediaProfile, userID, contentType)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateProfilePicture(ctx, userID, up.ObjectKey); err != nil {
		return nil, err
	}
	return up, nil
}

// RateUser stores the rater's 1..5 rating of another user
func (s *UserService) RateUser(ctx context.Context, raterID, ratedID string, rating int, review string) error {
	if raterID == ratedID {
		return validationError("you cannot rate yourself")
	}
	if rating < 1 || rating > 5 {
		return validationError("rating must be between 1 and 5")
	}
	if _, err := s.users.GetByID(ctx, ratedID); err != nil {
		return err
	}
	return s.users.UpsertRating(ctx, &models.UserRating{
		ID:           uuid.New().String(),
		RatedUserID:  ratedID,
		RatingUserID: raterID,
		Rating:       rating,
		Review:       review,
		CreatedAt:    s.now(),
	})
}

// Affiliate returns the referral dashboard
func (s *UserService) Affiliate(ctx context.Context, userID string) (*models.AffiliateDashboard, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	refs, err := s.users.ListReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []models.Referral{}
	}
	return &models.AffiliateDashboard{
		ReferralCode:     u.ReferralCode,
		TotalReferrals:   u.TotalReferrals,
		ReferralEarnings: u.ReferralEarnings,
		Referrals:        refs,
	}, nil
}

// CheckActive rejects tokens of deactivated or deleted accounts.
// Active lookups are cached for activeCacheTTL; inactive ones are not cached.
func (s *UserService) CheckActive(ctx context.Context, userID string) error {
	now := s.now()
	s.activeMu.Lock()
	checked, ok := s.active[userID]
	s.activeMu.Unlock()
	if ok && now.Sub(checked) < activeCacheTTL {
		return nil
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInactiveAccount
		}
		return err
	}
	if !u.IsActive {
		s.activeMu.Lock()
		delete(s.active, userID)
		s.activeMu.Unlock()
		return models.ErrInactiveAccount
	}

	s.activeMu.Lock()
	s.active[userID] = now
	s.activeMu.Unlock()
	return nil
}

// TouchLastSeen records activity at most once per minute per user
func (s *UserService) TouchLastSeen(ctx context.Context, userID string) {
	now := s.now()
	s.seenMu.Lock()
	last, ok := s.seen[userID]
	if ok && now.Sub(last) < lastSeenThrottle {
		s.seenMu.Unlock()
		return
	}
	s.seen[userID] = now
	s.seenMu.Unlock()

	if err := s.users.TouchLastSeen(ctx, userID, now); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to update last seen")
	}
}
