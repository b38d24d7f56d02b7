package market

import (
	"fmt"

	"mjolobid-backend/internal/models"
)

var listingTransitions = map[string][]string{
	models.StatusPending:  {models.StatusAccepted, models.StatusCancelled, models.StatusExpired},
	models.StatusAccepted: {models.StatusCompleted, models.StatusCancelled},
}

var candidateTransitions = map[string][]string{
	models.CandidatePending: {models.CandidateSelected, models.CandidateRejected, models.CandidateWithdrawn},
}

// CheckListingTransition validates a bid or offer status change
func CheckListingTransition(from, to string) error {
	return check(listingTransitions, from, to)
}

// CheckCandidateTransition validates a bid acceptance or offer bid status change
func CheckCandidateTransition(from, to string) error {
	return check(candidateTransitions, from, to)
}

func check(table map[string][]string, from, to string) error {
	for _, next := range table[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
}

// Selection is the outcome of choosing one candidate among many
type Selection struct {
	Chosen   models.Candidate
	Rejected []models.Candidate
}

// Select picks chosenID out of candidates. Every other PENDING candidate is rejected;
// candidates in terminal states are left alone.
func Select(candidates []models.Candidate, chosenID string) (*Selection, error) {
	sel := &Selection{}
	found := false
	for _, c := range candidates {
		if c.ID == chosenID {
			if err := CheckCandidateTransition(c.Status, models.CandidateSelected); err != nil {
				return nil, err
			}
			sel.Chosen = c
			found = true
			continue
		}
		if c.Status == models.CandidatePending {
			sel.Rejected = append(sel.Rejected, c)
		}
	}
	if !found {
		return nil, fmt.Errorf("candidate %s: %w", chosenID, models.ErrNotFound)
	}
	return sel, nil
}

// RejectedUserIDs lists the users whose candidacy was rejected
func (s *Selection) RejectedUserIDs() []string {
	ids := make([]string, 0, len(s.Rejected))
	for _, c := range s.Rejected {
		ids = append(ids, c.UserID)
	}
	return ids
}
