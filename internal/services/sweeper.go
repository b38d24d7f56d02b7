package services

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const premiumNoticeWindow = 3 * 24 * time.Hour

// Sweeper expires stale listings and subscriptions on a fixed interval
type Sweeper struct {
	bids     BidStore
	offers   OfferStore
	payments PaymentStore
	notifier Notifier
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper that runs every interval
func NewSweeper(bids BidStore, offers OfferStore, payments PaymentStore, notifier Notifier, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		bids:     bids,
		offers:   offers,
		payments: payments,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Expiry sweeper started")
	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs every expiry pass once. A failing pass does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	bids, err := s.bids.ExpireDue(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("Bid expiry sweep failed")
	} else if len(bids) > 0 {
		log.Info().Int("count", len(bids)).Msg("Expired bids")
	}

	offers, err := s.offers.ExpireDue(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("Offer expiry sweep failed")
	} else if len(offers) > 0 {
		log.Info().Int("count", len(offers)).Msg("Expired offers")
	}

	n, err := s.payments.ExpireSubscriptions(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("Subscription expiry sweep failed")
	} else if n > 0 {
		log.Info().Int64("users", n).Msg("Expired subscriptions")
	}

	subs, err := s.payments.ClaimExpiryNotices(ctx, now, premiumNoticeWindow)
	if err != nil {
		log.Warn().Err(err).Msg("Premium expiry notice sweep failed")
		return
	}
	for _, sub := range subs {
		days := int(sub.EndDate.Sub(now).Hours()/24) + 1
		notify(ctx, s.notifier, NotificationInput{
			UserID:            sub.UserID,
			Type:              models.NotifPremiumExpiring,
			Title:             "Premium Expiring Soon",
			Message:           fmt.Sprintf("Your premium membership expires in %d day(s) on %s", days, sub.EndDate.Format("2006-01-02")),
			RelatedObjectType: "subscription",
			RelatedObjectID:   sub.ID,
		})
	}
}
