package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const offerColumns = `offers.id, offers.user_id, offers.title, offers.description, offers.category_id,
	offers.event_date, offers.available_date, offers.event_location, offers.event_address, offers.minimum_bid,
	offers.commission_amount, offers.status, offers.accepted_by, offers.accepted_at, offers.accepted_amount,
	offers.is_boosted, offers.boost_expires, offers.view_count, offers.created_at, offers.updated_at, offers.expires_at`

const pendingOfferBidCount = `(SELECT COUNT(*) FROM offer_bids ob WHERE ob.offer_id = offers.id AND ob.status = 'PENDING')`

func scanOffer(row scanner, extra ...any) (*models.Offer, error) {
	var o models.Offer
	dest := []any{
		&o.ID, &o.UserID, &o.Title, &o.Description, &o.CategoryID,
		&o.EventDate, &o.AvailableDate, &o.EventLocation, &o.EventAddress, &o.MinimumBid,
		&o.CommissionAmount, &o.Status, &o.AcceptedBy, &o.AcceptedAt, &o.AcceptedAmount,
		&o.IsBoosted, &o.BoostExpires, &o.ViewCount, &o.CreatedAt, &o.UpdatedAt, &o.ExpiresAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOffers(rows pgx.Rows) ([]models.Offer, error) {
	defer rows.Close()
	var offers []models.Offer
	for rows.Next() {
		var count int
		o, err := scanOffer(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		o.BidCount = count
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

// OfferRepository handles database operations for offers and the bids placed on them
type OfferRepository struct {
	db DB
}

// NewOfferRepository creates a new offer repository
func NewOfferRepository(db DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// Create inserts a new offer
func (r *OfferRepository) Create(ctx context.Context, o *models.Offer) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO offers (
			id, user_id, title, description, category_id, event_date, available_date, event_location,
			event_address, minimum_bid, commission_amount, status, created_at, updated_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13, $14)`,
		o.ID, o.UserID, o.Title, o.Description, o.CategoryID, o.EventDate, o.AvailableDate, o.EventLocation,
		o.EventAddress, o.MinimumBid, o.CommissionAmount, o.Status, o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

// Update rewrites the editable fields of a pending offer owned by o.UserID
func (r *OfferRepository) Update(ctx context.Context, o *models.Offer) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE offers SET title = $3, description = $4, category_id = $5, event_date = $6, available_date = $7,
			event_location = $8, event_address = $9, minimum_bid = $10, commission_amount = $11,
			expires_at = $12, updated_at = $13
		WHERE id = $1 AND user_id = $2 AND status = 'PENDING'`,
		o.ID, o.UserID, o.Title, o.Description, o.CategoryID, o.EventDate, o.AvailableDate,
		o.EventLocation, o.EventAddress, o.MinimumBid, o.CommissionAmount, o.ExpiresAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: only your own pending offers can be edited", models.ErrInvalidTransition)
	}
	return nil
}

// GetByID retrieves an offer with its pending bid count
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	var count int
	o, err := scanOffer(r.db.QueryRow(ctx,
		`SELECT `+offerColumns+`, `+pendingOfferBidCount+` FROM offers WHERE offers.id = $1`, id), &count)
	if err != nil {
		return nil, notFound(err, "offer")
	}
	o.BidCount = count
	return o, nil
}

// Browse lists open offers for a viewer; unexpired boosts come first
func (r *OfferRepository) Browse(ctx context.Context, f models.OfferFilter) ([]models.Offer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+offerColumns+`, `+pendingOfferBidCount+`
		FROM offers
		WHERE offers.status = 'PENDING' AND (offers.expires_at IS NULL OR offers.expires_at > $1)
			AND offers.user_id <> $2
			AND ($3 = '' OR offers.category_id = $3)
			AND ($4 = '' OR offers.event_location ILIKE '%' || $4 || '%')
		ORDER BY (offers.is_boosted AND offers.boost_expires > $1) DESC, offers.created_at DESC
		LIMIT $5 OFFSET $6`,
		f.Now, f.ViewerID, f.CategoryID, f.Location, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to browse offers: %w", err)
	}
	return collectOffers(rows)
}

// ListByUser returns the offers posted by userID
func (r *OfferRepository) ListByUser(ctx context.Context, userID string) ([]models.Offer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+offerColumns+`, `+pendingOfferBidCount+`
		FROM offers WHERE offers.user_id = $1 ORDER BY offers.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user offers: %w", err)
	}
	return collectOffers(rows)
}

// RecordView counts the first view of an offer by a viewer
func (r *OfferRepository) RecordView(ctx context.Context, offerID, viewerID string) error {
	_, err := r.db.Exec(ctx, `
		WITH v AS (
			INSERT INTO offer_views (offer_id, viewer_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING offer_id
		)
		UPDATE offers SET view_count = view_count + 1 WHERE id IN (SELECT offer_id FROM v)`,
		offerID, viewerID)
	if err != nil {
		return fmt.Errorf("failed to record offer view: %w", err)
	}
	return nil
}

func lockOffer(ctx context.Context, q DB, id string) (*models.Offer, error) {
	o, err := scanOffer(q.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE offers.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "offer")
	}
	return o, nil
}

// PlaceBid records a male user's bid on an open offer
func (r *OfferRepository) PlaceBid(ctx context.Context, b *models.OfferBid, now time.Time) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var ownerID, status string
		var expiresAt *time.Time
		err := tx.QueryRow(ctx, `SELECT user_id, status, expires_at FROM offers WHERE id = $1 FOR SHARE`, b.OfferID).
			Scan(&ownerID, &status, &expiresAt)
		if err != nil {
			return notFound(err, "offer")
		}
		if ownerID == b.BidderID {
			return fmt.Errorf("%w: cannot bid on your own offer", models.ErrForbidden)
		}
		if status != models.StatusPending || (expiresAt != nil && !expiresAt.After(now)) {
			return fmt.Errorf("%w: offer is no longer open", models.ErrInvalidTransition)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO offer_bids (id, offer_id, bidder_id, bid_amount, message, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			b.ID, b.OfferID, b.BidderID, b.BidAmount, b.Message, b.Status, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("offer bid: %w", models.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create offer bid: %w", err)
		}
		b.CreatedAt, b.UpdatedAt = now, now
		return nil
	})
}

func scanOfferBids(rows pgx.Rows) ([]models.OfferBid, error) {
	defer rows.Close()
	var list []models.OfferBid
	for rows.Next() {
		var b models.OfferBid
		if err := rows.Scan(&b.ID, &b.OfferID, &b.BidderID, &b.BidAmount, &b.Message, &b.Status,
			&b.CreatedAt, &b.UpdatedAt, &b.Username, &b.OfferTitle); err != nil {
			return nil, fmt.Errorf("failed to scan offer bid: %w", err)
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// ListBids returns the bids on an offer, highest first
func (r *OfferRepository) ListBids(ctx context.Context, offerID string) ([]models.OfferBid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT b.id, b.offer_id, b.bidder_id, b.bid_amount, b.message, b.status, b.created_at, b.updated_at,
			u.username, o.title
		FROM offer_bids b
		JOIN users u ON u.id = b.bidder_id
		JOIN offers o ON o.id = b.offer_id
		WHERE b.offer_id = $1 ORDER BY b.bid_amount DESC, b.created_at`, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offer bids: %w", err)
	}
	return scanOfferBids(rows)
}

// ListBidsByUser returns the bids a user placed on offers, newest first
func (r *OfferRepository) ListBidsByUser(ctx context.Context, userID string) ([]models.OfferBid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT b.id, b.offer_id, b.bidder_id, b.bid_amount, b.message, b.status, b.created_at, b.updated_at,
			u.username, o.title
		FROM offer_bids b
		JOIN offers o ON o.id = b.offer_id
		JOIN users u ON u.id = o.user_id
		WHERE b.bidder_id = $1 ORDER BY b.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user offer bids: %w", err)
	}
	return scanOfferBids(rows)
}

// HasBid reports whether userID placed a bid on the offer in any state
func (r *OfferRepository) HasBid(ctx context.Context, offerID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM offer_bids WHERE offer_id = $1 AND bidder_id = $2)`, offerID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check offer bid: %w", err)
	}
	return exists, nil
}

// WithdrawBid flips the user's pending offer bid to WITHDRAWN
func (r *OfferRepository) WithdrawBid(ctx context.Context, offerID, userID string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE offer_bids SET status = $3, updated_at = $4
		WHERE offer_id = $1 AND bidder_id = $2 AND status = $5`,
		offerID, userID, models.CandidateWithdrawn, now, models.CandidatePending)
	if err != nil {
		return fmt.Errorf("failed to withdraw offer bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no pending offer bid to withdraw", models.ErrInvalidTransition)
	}
	return nil
}

// SelectBid lets the owner choose one bid. The chosen bidder pays, so the escrow is held
// from the bidder's wallet for the chosen amount.
func (r *OfferRepository) SelectBid(ctx context.Context, offerID, offerBidID, ownerID string, rules market.Rules, now time.Time) (*models.SelectionResult, error) {
	var result *models.SelectionResult
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		offer, err := lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.UserID != ownerID {
			return fmt.Errorf("%w: only the owner can choose a bid", models.ErrForbidden)
		}
		if err := market.CheckListingTransition(offer.Status, models.StatusAccepted); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT id, bidder_id, status, bid_amount FROM offer_bids WHERE offer_id = $1 FOR UPDATE`, offerID)
		if err != nil {
			return fmt.Errorf("failed to lock offer bids: %w", err)
		}
		candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Candidate, error) {
			var c models.Candidate
			err := row.Scan(&c.ID, &c.UserID, &c.Status, &c.Amount)
			return c, err
		})
		if err != nil {
			return fmt.Errorf("failed to read offer bids: %w", err)
		}

		sel, err := market.Select(candidates, offerBidID)
		if err != nil {
			return err
		}
		commission := market.Commission(sel.Chosen.Amount, rules.CommissionRate)

		if _, err := tx.Exec(ctx, `UPDATE offer_bids SET status = $2, updated_at = $3 WHERE id = $1`,
			sel.Chosen.ID, models.CandidateSelected, now); err != nil {
			return fmt.Errorf("failed to select offer bid: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE offer_bids SET status = $3, updated_at = $4
			WHERE offer_id = $1 AND id <> $2 AND status = $5`,
			offerID, sel.Chosen.ID, models.CandidateRejected, now, models.CandidatePending); err != nil {
			return fmt.Errorf("failed to reject offer bids: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE offers SET status = $2, accepted_by = $3, accepted_at = $4, accepted_amount = $5,
				commission_amount = $6, updated_at = $4
			WHERE id = $1`,
			offerID, models.StatusAccepted, sel.Chosen.UserID, now, sel.Chosen.Amount, commission); err != nil {
			return fmt.Errorf("failed to accept offer: %w", err)
		}

		escrow := &models.Escrow{
			SubjectType:      models.SubjectOffer,
			SubjectID:        offerID,
			PayerID:          sel.Chosen.UserID,
			PayeeID:          offer.UserID,
			Amount:           sel.Chosen.Amount,
			CommissionAmount: commission,
		}
		if sel.Chosen.Amount.IsPositive() {
			if err := holdEscrow(ctx, tx, escrow, now); err != nil {
				return err
			}
		} else {
			escrow = nil
		}

		result = &models.SelectionResult{
			SubjectType:     models.SubjectOffer,
			SubjectID:       offerID,
			SelectedID:      sel.Chosen.ID,
			SelectedUserID:  sel.Chosen.UserID,
			RejectedUserIDs: sel.RejectedUserIDs(),
			Escrow:          escrow,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Complete marks an accepted offer COMPLETED and releases the escrow to the owner
func (r *OfferRepository) Complete(ctx context.Context, offerID, actorID, currency string, now time.Time) (*models.SettlementResult, error) {
	var result *models.SettlementResult
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		offer, err := lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.UserID != actorID && (offer.AcceptedBy == nil || *offer.AcceptedBy != actorID) {
			return fmt.Errorf("%w: only participants can complete an offer", models.ErrForbidden)
		}
		if err := market.CheckListingTransition(offer.Status, models.StatusCompleted); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE offers SET status = $2, updated_at = $3 WHERE id = $1`,
			offerID, models.StatusCompleted, now); err != nil {
			return fmt.Errorf("failed to complete offer: %w", err)
		}

		escrow, err := releaseEscrow(ctx, tx, models.SubjectOffer, offerID, currency, now)
		if err != nil {
			return err
		}
		result = &models.SettlementResult{
			SubjectType:    models.SubjectOffer,
			SubjectID:      offerID,
			PosterID:       offer.UserID,
			CounterpartyID: *offer.AcceptedBy,
			Escrow:         escrow,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel marks an offer CANCELLED, rejects pending bids and refunds a held escrow.
// With pendingOnly set, accepted offers are refused; deleting an offer uses that mode.
func (r *OfferRepository) Cancel(ctx context.Context, offerID, ownerID string, pendingOnly bool, now time.Time) (*models.SettlementResult, error) {
	var result *models.SettlementResult
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		offer, err := lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.UserID != ownerID {
			return fmt.Errorf("%w: only the owner can cancel an offer", models.ErrForbidden)
		}
		if pendingOnly && offer.Status != models.StatusPending {
			return fmt.Errorf("%w: only pending offers can be deleted", models.ErrInvalidTransition)
		}
		if err := market.CheckListingTransition(offer.Status, models.StatusCancelled); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE offers SET status = $2, updated_at = $3 WHERE id = $1`,
			offerID, models.StatusCancelled, now); err != nil {
			return fmt.Errorf("failed to cancel offer: %w", err)
		}

		rows, err := tx.Query(ctx, `
			UPDATE offer_bids SET status = $2, updated_at = $3
			WHERE offer_id = $1 AND status = $4
			RETURNING bidder_id`,
			offerID, models.CandidateRejected, now, models.CandidatePending)
		if err != nil {
			return fmt.Errorf("failed to reject offer bids: %w", err)
		}
		affected, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to collect rejected bidders: %w", err)
		}
		if offer.AcceptedBy != nil {
			affected = append(affected, *offer.AcceptedBy)
		}

		escrow, err := refundEscrow(ctx, tx, models.SubjectOffer, offerID, now)
		if err != nil {
			return err
		}
		result = &models.SettlementResult{
			SubjectType:     models.SubjectOffer,
			SubjectID:       offerID,
			PosterID:        offer.UserID,
			AffectedUserIDs: affected,
			Escrow:          escrow,
		}
		if offer.AcceptedBy != nil {
			result.CounterpartyID = *offer.AcceptedBy
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireDue flips pending offers past their expiry to EXPIRED and rejects their pending bids
func (r *OfferRepository) ExpireDue(ctx context.Context, now time.Time) ([]models.ExpiredListing, error) {
	var expired []models.ExpiredListing
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE offers SET status = $1, updated_at = $2
			WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2
			RETURNING id, user_id, title`,
			models.StatusExpired, now, models.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to expire offers: %w", err)
		}
		expired, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ExpiredListing, error) {
			var e models.ExpiredListing
			err := row.Scan(&e.ID, &e.PosterID, &e.Title)
			return e, err
		})
		if err != nil {
			return fmt.Errorf("failed to collect expired offers: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, 0, len(expired))
		for _, e := range expired {
			ids = append(ids, e.ID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE offer_bids SET status = $2, updated_at = $3
			WHERE offer_id = ANY($1) AND status = $4`,
			ids, models.CandidateRejected, now, models.CandidatePending); err != nil {
			return fmt.Errorf("failed to reject bids of expired offers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// Boost promotes the owner's pending offer until the given time
func (r *OfferRepository) Boost(ctx context.Context, offerID, userID string, until time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE offers SET is_boosted = TRUE, boost_expires = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = $4`,
		offerID, userID, until, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to boost offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: only your own pending offers can be boosted", models.ErrInvalidTransition)
	}
	return nil
}
