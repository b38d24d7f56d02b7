package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const bidColumns = `bids.id, bids.user_id, bids.title, bids.description, bids.category_id, bids.event_date,
	bids.event_location, bids.event_address, bids.latitude, bids.longitude, bids.bid_type, bids.bid_amount,
	bids.total_perk_value, bids.commission_amount, bids.status, bids.accepted_by, bids.accepted_at,
	bids.is_boosted, bids.boost_expires, bids.view_count, bids.created_at, bids.updated_at, bids.expires_at`

const pendingAcceptanceCount = `(SELECT COUNT(*) FROM bid_acceptances a WHERE a.bid_id = bids.id AND a.status = 'PENDING')`

func scanBid(row scanner, extra ...any) (*models.Bid, error) {
	var b models.Bid
	dest := []any{
		&b.ID, &b.UserID, &b.Title, &b.Description, &b.CategoryID, &b.EventDate,
		&b.EventLocation, &b.EventAddress, &b.Latitude, &b.Longitude, &b.BidType, &b.BidAmount,
		&b.TotalPerkValue, &b.CommissionAmount, &b.Status, &b.AcceptedBy, &b.AcceptedAt,
		&b.IsBoosted, &b.BoostExpires, &b.ViewCount, &b.CreatedAt, &b.UpdatedAt, &b.ExpiresAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBids(rows pgx.Rows) ([]models.Bid, error) {
	defer rows.Close()
	var bids []models.Bid
	for rows.Next() {
		var count int
		b, err := scanBid(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		b.AcceptanceCount = count
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}

// BidRepository handles database operations for bids and their acceptances
type BidRepository struct {
	db DB
}

// NewBidRepository creates a new bid repository
func NewBidRepository(db DB) *BidRepository {
	return &BidRepository{db: db}
}

// Create inserts a bid together with its perks
func (r *BidRepository) Create(ctx context.Context, bid *models.Bid) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bids (
				id, user_id, title, description, category_id, event_date, event_location, event_address,
				latitude, longitude, bid_type, bid_amount, total_perk_value, commission_amount, status,
				created_at, updated_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16, $17)`,
			bid.ID, bid.UserID, bid.Title, bid.Description, bid.CategoryID, bid.EventDate, bid.EventLocation,
			bid.EventAddress, bid.Latitude, bid.Longitude, bid.BidType, bid.BidAmount, bid.TotalPerkValue,
			bid.CommissionAmount, bid.Status, bid.CreatedAt, bid.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create bid: %w", err)
		}

		for i := range bid.Perks {
			p := &bid.Perks[i]
			p.ID = uuid.New().String()
			p.BidID = bid.ID
			if _, err := tx.Exec(ctx, `
				INSERT INTO bid_perks (id, bid_id, category, description, estimated_value, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.ID, p.BidID, p.Category, p.Description, p.EstimatedValue, p.Quantity,
			); err != nil {
				return fmt.Errorf("failed to create perk: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a bid with its pending acceptance count
func (r *BidRepository) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	var count int
	bid, err := scanBid(r.db.QueryRow(ctx,
		`SELECT `+bidColumns+`, `+pendingAcceptanceCount+` FROM bids WHERE bids.id = $1`, id), &count)
	if err != nil {
		return nil, notFound(err, "bid")
	}
	bid.AcceptanceCount = count
	return bid, nil
}

// ListPerks returns the perks of a bid
func (r *BidRepository) ListPerks(ctx context.Context, bidID string) ([]models.BidPerk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, bid_id, category, description, estimated_value, quantity
		FROM bid_perks WHERE bid_id = $1 ORDER BY estimated_value DESC`, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to list perks: %w", err)
	}
	defer rows.Close()

	var perks []models.BidPerk
	for rows.Next() {
		var p models.BidPerk
		if err := rows.Scan(&p.ID, &p.BidID, &p.Category, &p.Description, &p.EstimatedValue, &p.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan perk: %w", err)
		}
		perks = append(perks, p)
	}
	return perks, rows.Err()
}

// AddImage attaches an uploaded image to a bid
func (r *BidRepository) AddImage(ctx context.Context, img *models.BidImage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bid_images (id, bid_id, object_key, caption, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		img.ID, img.BidID, img.ObjectKey, img.Caption, img.IsPrimary, img.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add bid image: %w", err)
	}
	return nil
}

// ListImages returns the images of a bid, primary first
func (r *BidRepository) ListImages(ctx context.Context, bidID string) ([]models.BidImage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, bid_id, object_key, caption, is_primary, created_at
		FROM bid_images WHERE bid_id = $1 ORDER BY is_primary DESC, created_at`, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bid images: %w", err)
	}
	defer rows.Close()

	var images []models.BidImage
	for rows.Next() {
		var img models.BidImage
		if err := rows.Scan(&img.ID, &img.BidID, &img.ObjectKey, &img.Caption, &img.IsPrimary, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

var bidSortOrders = map[string]string{
	"newest":      "bids.created_at DESC",
	"amount_high": "COALESCE(bids.bid_amount, bids.total_perk_value) DESC NULLS LAST",
	"amount_low":  "COALESCE(bids.bid_amount, bids.total_perk_value) ASC NULLS LAST",
	"event_date":  "bids.event_date ASC",
}

// Browse lists open bids for a viewer; unexpired boosts come first
func (r *BidRepository) Browse(ctx context.Context, f models.BidFilter) ([]models.Bid, error) {
	order, ok := bidSortOrders[f.Sort]
	if !ok {
		order = bidSortOrders["newest"]
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+bidColumns+`, `+pendingAcceptanceCount+`
		FROM bids
		WHERE bids.status = 'PENDING' AND bids.expires_at > $1 AND bids.user_id <> $2
			AND ($3 = '' OR bids.category_id = $3)
			AND ($4 = '' OR bids.bid_type = $4)
			AND ($5::numeric IS NULL OR COALESCE(bids.bid_amount, bids.total_perk_value) >= $5)
			AND ($6::numeric IS NULL OR COALESCE(bids.bid_amount, bids.total_perk_value) <= $6)
			AND ($7 = '' OR bids.event_location ILIKE '%' || $7 || '%')
		ORDER BY (bids.is_boosted AND bids.boost_expires > $1) DESC, `+order+`
		LIMIT $8 OFFSET $9`,
		f.Now, f.ViewerID, f.CategoryID, f.BidType, f.MinAmount, f.MaxAmount, f.Location, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to browse bids: %w", err)
	}
	return collectBids(rows)
}

// ListByUser returns the bids posted by userID
func (r *BidRepository) ListByUser(ctx context.Context, userID string) ([]models.Bid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bidColumns+`, `+pendingAcceptanceCount+`
		FROM bids WHERE bids.user_id = $1 ORDER BY bids.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bids: %w", err)
	}
	return collectBids(rows)
}

// RecordView counts the first view of a bid by a viewer
func (r *BidRepository) RecordView(ctx context.Context, bidID, viewerID string) error {
	_, err := r.db.Exec(ctx, `
		WITH v AS (
			INSERT INTO bid_views (bid_id, viewer_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING bid_id
		)
		UPDATE bids SET view_count = view_count + 1 WHERE id IN (SELECT bid_id FROM v)`,
		bidID, viewerID)
	if err != nil {
		return fmt.Errorf("failed to record bid view: %w", err)
	}
	return nil
}

// lockBid loads a bid with a row lock
func lockBid(ctx context.Context, q DB, id string) (*models.Bid, error) {
	bid, err := scanBid(q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE bids.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "bid")
	}
	return bid, nil
}

// Accept records a female user's acceptance of an open bid
func (r *BidRepository) Accept(ctx context.Context, acc *models.BidAcceptance, now time.Time) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var posterID, status string
		var expiresAt time.Time
		err := tx.QueryRow(ctx, `SELECT user_id, status, expires_at FROM bids WHERE id = $1 FOR SHARE`, acc.BidID).
			Scan(&posterID, &status, &expiresAt)
		if err != nil {
			return notFound(err, "bid")
		}
		if posterID == acc.UserID {
			return fmt.Errorf("%w: cannot accept your own bid", models.ErrForbidden)
		}
		if status != models.StatusPending || !expiresAt.After(now) {
			return fmt.Errorf("%w: bid is no longer open", models.ErrInvalidTransition)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bid_acceptances (id, bid_id, user_id, message, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			acc.ID, acc.BidID, acc.UserID, acc.Message, acc.Status, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("acceptance: %w", models.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create acceptance: %w", err)
		}
		acc.CreatedAt, acc.UpdatedAt = now, now
		return nil
	})
}

func scanAcceptances(rows pgx.Rows) ([]models.BidAcceptance, error) {
	defer rows.Close()
	var list []models.BidAcceptance
	for rows.Next() {
		var a models.BidAcceptance
		if err := rows.Scan(&a.ID, &a.BidID, &a.UserID, &a.Message, &a.Status, &a.CreatedAt, &a.UpdatedAt,
			&a.Username, &a.BidTitle); err != nil {
			return nil, fmt.Errorf("failed to scan acceptance: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// ListAcceptances returns the acceptances of a bid, oldest first
func (r *BidRepository) ListAcceptances(ctx context.Context, bidID string) ([]models.BidAcceptance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.bid_id, a.user_id, a.message, a.status, a.created_at, a.updated_at, u.username, b.title
		FROM bid_acceptances a
		JOIN users u ON u.id = a.user_id
		JOIN bids b ON b.id = a.bid_id
		WHERE a.bid_id = $1 ORDER BY a.created_at`, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to list acceptances: %w", err)
	}
	return scanAcceptances(rows)
}

// ListAcceptancesByUser returns the acceptances a user made, newest first
func (r *BidRepository) ListAcceptancesByUser(ctx context.Context, userID string) ([]models.BidAcceptance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.bid_id, a.user_id, a.message, a.status, a.created_at, a.updated_at, u.username, b.title
		FROM bid_acceptances a
		JOIN bids b ON b.id = a.bid_id
		JOIN users u ON u.id = b.user_id
		WHERE a.user_id = $1 ORDER BY a.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user acceptances: %w", err)
	}
	return scanAcceptances(rows)
}

// HasAcceptance reports whether userID accepted the bid in any state
func (r *BidRepository) HasAcceptance(ctx context.Context, bidID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bid_acceptances WHERE bid_id = $1 AND user_id = $2)`, bidID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check acceptance: %w", err)
	}
	return exists, nil
}

// WithdrawAcceptance flips the user's pending acceptance to WITHDRAWN
func (r *BidRepository) WithdrawAcceptance(ctx context.Context, bidID, userID string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bid_acceptances SET status = $3, updated_at = $4
		WHERE bid_id = $1 AND user_id = $2 AND status = $5`,
		bidID, userID, models.CandidateWithdrawn, now, models.CandidatePending)
	if err != nil {
		return fmt.Errorf("failed to withdraw acceptance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no pending acceptance to withdraw", models.ErrInvalidTransition)
	}
	return nil
}

// SelectAcceptance lets the poster choose one acceptance. In one transaction the chosen
// acceptance becomes SELECTED, its pending siblings REJECTED and the bid ACCEPTED; money
// bids also hold the amount in escrow from the poster's wallet.
func (r *BidRepository) SelectAcceptance(ctx context.Context, bidID, acceptanceID, posterID string, now time.Time) (*models.SelectionResult, error) {
	var result *models.SelectionResult
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		bid, err := lockBid(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if bid.UserID != posterID {
			return fmt.Errorf("%w: only the poster can choose an acceptance", models.ErrForbidden)
		}
		if err := market.CheckListingTransition(bid.Status, models.StatusAccepted); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT id, user_id, status FROM bid_acceptances WHERE bid_id = $1 FOR UPDATE`, bidID)
		if err != nil {
			return fmt.Errorf("failed to lock acceptances: %w", err)
		}
		candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Candidate, error) {
			var c models.Candidate
			err := row.Scan(&c.ID, &c.UserID, &c.Status)
			return c, err
		})
		if err != nil {
			return fmt.Errorf("failed to read acceptances: %w", err)
		}

		sel, err := market.Select(candidates, acceptanceID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE bid_acceptances SET status = $2, updated_at = $3 WHERE id = $1`,
			sel.Chosen.ID, models.CandidateSelected, now); err != nil {
			return fmt.Errorf("failed to select acceptance: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE bid_acceptances SET status = $3, updated_at = $4
			WHERE bid_id = $1 AND id <> $2 AND status = $5`,
			bidID, sel.Chosen.ID, models.CandidateRejected, now, models.CandidatePending); err != nil {
			return fmt.Errorf("failed to reject acceptances: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE bids SET status = $2, accepted_by = $3, accepted_at = $4, updated_at = $4 WHERE id = $1`,
			bidID, models.StatusAccepted, sel.Chosen.UserID, now); err != nil {
			return fmt.Errorf("failed to accept bid: %w", err)
		}

		result = &models.SelectionResult{
			SubjectType:     models.SubjectBid,
			SubjectID:       bidID,
			SelectedID:      sel.Chosen.ID,
			SelectedUserID:  sel.Chosen.UserID,
			RejectedUserIDs: sel.RejectedUserIDs(),
		}

		if bid.BidType == models.BidTypeMoney && bid.BidAmount != nil {
			escrow := &models.Escrow{
				SubjectType:      models.SubjectBid,
				SubjectID:        bidID,
				PayerID:          bid.UserID,
				PayeeID:          sel.Chosen.UserID,
				Amount:           *bid.BidAmount,
				CommissionAmount: bid.CommissionAmount,
			}
			if err := holdEscrow(ctx, tx, escrow, now); err != nil {
				return err
			}
			result.Escrow = escrow
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Complete marks an accepted bid COMPLETED and releases its escrow
func (r *BidRepository) Complete(ctx context.Context, bidID, actorID, currency string, now time.Time) (*models.SettlementResult, error) {
	var result *models.SettlementResult
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		bid, err := lockBid(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if bid.UserID != actorID && (bid.AcceptedBy == nil || *bid.AcceptedBy != actorID) {
			return fmt.Errorf("%w: only participants can complete a bid", models.ErrForbidden)
		}
		if err := market.CheckListingTransition(bid.Status, models.StatusCompleted); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE bids SET status = $2, updated_at = $3 WHERE id = $1`,
			bidID, models.StatusCompleted, now); err != nil {
			return fmt.Errorf("failed to complete bid: %w", err)
		}

		escrow, err := releaseEscrow(ctx, tx, models.SubjectBid, bidID, currency, now)
		if err != nil {
			return err
		}
		result = &models.SettlementResult{
			SubjectType:    models.SubjectBid,
			SubjectID:      bidID,
			PosterID:       bid.UserID,
			CounterpartyID: *bid.AcceptedBy,
			Escrow:         escrow,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel marks a pending or accepted bid CANCELLED, rejects pending acceptances and refunds escrow
func (r *BidRepository) Cancel(ctx context.Context, bidID, posterID string, now time.Time) (*models.SettlementResult, error) {
	var result *models.SettlementResult
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		bid, err := lockBid(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if bid.UserID != posterID {
			return fmt.Errorf("%w: only the poster can cancel a bid", models.ErrForbidden)
		}
		if err := market.CheckListingTransition(bid.Status, models.StatusCancelled); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE bids SET status = $2, updated_at = $3 WHERE id = $1`,
			bidID, models.StatusCancelled, now); err != nil {
			return fmt.Errorf("failed to cancel bid: %w", err)
		}

		rows, err := tx.Query(ctx, `
			UPDATE bid_acceptances SET status = $2, updated_at = $3
			WHERE bid_id = $1 AND status = $4
			RETURNING user_id`,
			bidID, models.CandidateRejected, now, models.CandidatePending)
		if err != nil {
			return fmt.Errorf("failed to reject acceptances: %w", err)
		}
		affected, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to collect rejected users: %w", err)
		}
		if bid.AcceptedBy != nil {
			affected = append(affected, *bid.AcceptedBy)
		}

		escrow, err := refundEscrow(ctx, tx, models.SubjectBid, bidID, now)
		if err != nil {
			return err
		}
		result = &models.SettlementResult{
			SubjectType:     models.SubjectBid,
			SubjectID:       bidID,
			PosterID:        bid.UserID,
			AffectedUserIDs: affected,
			Escrow:          escrow,
		}
		if bid.AcceptedBy != nil {
			result.CounterpartyID = *bid.AcceptedBy
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireDue flips pending bids past their expiry to EXPIRED and rejects their pending acceptances
func (r *BidRepository) ExpireDue(ctx context.Context, now time.Time) ([]models.ExpiredListing, error) {
	var expired []models.ExpiredListing
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE bids SET status = $1, updated_at = $2
			WHERE status = $3 AND expires_at <= $2
			RETURNING id, user_id, title`,
			models.StatusExpired, now, models.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to expire bids: %w", err)
		}
		expired, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ExpiredListing, error) {
			var e models.ExpiredListing
			err := row.Scan(&e.ID, &e.PosterID, &e.Title)
			return e, err
		})
		if err != nil {
			return fmt.Errorf("failed to collect expired bids: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, 0, len(expired))
		for _, e := range expired {
			ids = append(ids, e.ID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE bid_acceptances SET status = $2, updated_at = $3
			WHERE bid_id = ANY($1) AND status = $4`,
			ids, models.CandidateRejected, now, models.CandidatePending); err != nil {
			return fmt.Errorf("failed to reject acceptances of expired bids: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// Boost promotes the poster's pending bid until the given time
func (r *BidRepository) Boost(ctx context.Context, bidID, userID string, until time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bids SET is_boosted = TRUE, boost_expires = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = $4`,
		bidID, userID, until, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to boost bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: only your own pending bids can be boosted", models.ErrInvalidTransition)
	}
	return nil
}

// CreateReview stores a review of a completed bid and refreshes the reviewed user's rating
func (r *BidRepository) CreateReview(ctx context.Context, review *models.BidReview) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bid_reviews (id, bid_id, reviewer_id, reviewed_user_id, rating, review_text, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			review.ID, review.BidID, review.ReviewerID, review.ReviewedUserID, review.Rating, review.ReviewText, review.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("review: %w", models.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create review: %w", err)
		}
		return refreshRating(ctx, tx, review.ReviewedUserID)
	})
}
