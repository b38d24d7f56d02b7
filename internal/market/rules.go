package market

import (
	"fmt"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Rules are the marketplace's tunable limits and fees
type Rules struct {
	CommissionRate     decimal.Decimal
	MinBid             decimal.Decimal
	MaxBid             decimal.Decimal
	SubscriptionFee    decimal.Decimal
	PremiumFee         decimal.Decimal
	SubscriptionPeriod time.Duration
	ExpiryLead         time.Duration
	BoostDuration      time.Duration
	MinWithdrawal      decimal.Decimal
	Currency           string
	OnlineWindow       time.Duration
}

// DefaultRules returns the production limits
func DefaultRules() Rules {
	return Rules{
		CommissionRate:     decimal.RequireFromString("0.15"),
		MinBid:             decimal.NewFromInt(5),
		MaxBid:             decimal.NewFromInt(500),
		SubscriptionFee:    decimal.NewFromInt(3),
		PremiumFee:         decimal.NewFromInt(20),
		SubscriptionPeriod: 30 * 24 * time.Hour,
		ExpiryLead:         2 * time.Hour,
		BoostDuration:      24 * time.Hour,
		MinWithdrawal:      decimal.NewFromInt(10),
		Currency:           "USD",
		OnlineWindow:       5 * time.Minute,
	}
}

// ValidateBidAmount checks a money amount against the bid bounds
func (r Rules) ValidateBidAmount(amount decimal.Decimal) error {
	if amount.LessThan(r.MinBid) {
		return fmt.Errorf("%w: minimum bid amount is $%s", models.ErrValidation, r.MinBid.StringFixed(2))
	}
	if amount.GreaterThan(r.MaxBid) {
		return fmt.Errorf("%w: maximum bid amount is $%s", models.ErrValidation, r.MaxBid.StringFixed(2))
	}
	return nil
}

// ValidateOfferBid checks a bid on an offer against the offer minimum and the global bounds
func (r Rules) ValidateOfferBid(amount, minimum decimal.Decimal) error {
	if amount.LessThan(minimum) {
		return fmt.Errorf("%w: bid must be at least $%s", models.ErrValidation, minimum.StringFixed(2))
	}
	return r.ValidateBidAmount(amount)
}

// ExpiresAt is when a listing for eventDate stops taking candidates
func (r Rules) ExpiresAt(eventDate time.Time) time.Time {
	return eventDate.Add(-r.ExpiryLead)
}

// ValidateEventDate requires the listing to still be open after creation
func (r Rules) ValidateEventDate(eventDate, now time.Time) error {
	if !eventDate.After(now) {
		return fmt.Errorf("%w: event date must be in the future", models.ErrValidation)
	}
	if !r.ExpiresAt(eventDate).After(now) {
		return fmt.Errorf("%w: event must be at least %s away", models.ErrValidation, r.ExpiryLead)
	}
	return nil
}

// ValidateWithdrawal checks a payout request against the wallet
func (r Rules) ValidateWithdrawal(amount decimal.Decimal, w *models.Wallet) error {
	min := r.MinWithdrawal
	if w.MinWithdrawalAmount.GreaterThan(min) {
		min = w.MinWithdrawalAmount
	}
	if amount.LessThan(min) {
		return fmt.Errorf("%w: minimum withdrawal amount is $%s", models.ErrValidation, min.StringFixed(2))
	}
	if w.Available().LessThan(amount) {
		return fmt.Errorf("%w: available balance is $%s", models.ErrInsufficientFunds, w.Available().StringFixed(2))
	}
	return nil
}

// Period returns the start and end of a subscription bought at now.
// An unexpired current period is extended: the new one starts where it ends.
func (r Rules) Period(currentEnd *time.Time, now time.Time) (start, end time.Time) {
	start = now
	if currentEnd != nil && currentEnd.After(now) {
		start = *currentEnd
	}
	return start, start.Add(r.SubscriptionPeriod)
}

// FeeFor returns the price of a subscription type
func (r Rules) FeeFor(subType string) (decimal.Decimal, error) {
	switch subType {
	case models.SubWomenAccess:
		return r.SubscriptionFee, nil
	case models.SubPremiumMen, models.SubPremiumWomen:
		return r.PremiumFee, nil
	}
	return decimal.Zero, fmt.Errorf("%w: unknown subscription type %q", models.ErrValidation, subType)
}

// PerkTotal sums estimated value times quantity
func PerkTotal(perks []models.BidPerk) decimal.Decimal {
	total := decimal.Zero
	for _, p := range perks {
		total = total.Add(p.EstimatedValue.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	return total
}
