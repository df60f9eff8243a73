package srs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
)

// ReviewResult summarizes a single graded review.
type ReviewResult struct {
	CardID           uuid.UUID `json:"card_id"`
	Grade            int       `json:"grade"`
	Passed           bool      `json:"passed"`
	PreviousInterval int       `json:"previous_interval"`
	NewInterval      int       `json:"new_interval"`
	PreviousDueDate  time.Time `json:"previous_due_date"`
	NewDueDate       time.Time `json:"new_due_date"`
	BecameLeech      bool      `json:"became_leech,omitempty"`
	LeechCleared     bool      `json:"leech_cleared,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	HintsUsed        int       `json:"hints_used"`
	ReviewedAt       time.Time `json:"reviewed_at"`
}

// Scheduler defines the card scheduling operations.
type Scheduler interface {
	// Review applies a 0..5 grade to a card owned by learnerID and returns the
	// card's next state. The input card is not modified.
	Review(
		card domain.ReviewCard,
		learnerID uuid.UUID,
		grade int,
		timeSpentSeconds int,
		hintsUsed int,
		now time.Time,
	) (domain.ReviewCard, ReviewResult, error)

	// Reset makes the card due immediately with the minimum interval.
	// It is an explicit, out-of-band action.
	Reset(card domain.ReviewCard, learnerID uuid.UUID, now time.Time) (domain.ReviewCard, error)

	// Params exposes the scheduler's configuration, used by the grading helpers.
	Params() *Params
}

// defaultScheduler is the standard implementation of the Scheduler interface
type defaultScheduler struct {
	params *Params
}

// NewDefaultScheduler creates a new scheduler with default parameters
func NewDefaultScheduler() Scheduler {
	return &defaultScheduler{params: NewDefaultParams()}
}

// NewSchedulerWithParams creates a new scheduler with custom parameters
func NewSchedulerWithParams(params *Params) (Scheduler, error) {
	if params == nil {
		return nil, fmt.Errorf("srs params cannot be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &defaultScheduler{params: params}, nil
}

// Review implements Scheduler.Review.
func (s *defaultScheduler) Review(
	card domain.ReviewCard,
	learnerID uuid.UUID,
	grade int,
	timeSpentSeconds int,
	hintsUsed int,
	now time.Time,
) (domain.ReviewCard, ReviewResult, error) {
	if err := s.checkCard(card, learnerID); err != nil {
		return card, ReviewResult{}, err
	}
	if grade < MinGrade || grade > MaxGrade {
		return card, ReviewResult{}, domain.NewValidationError(
			"grade", fmt.Sprintf("must be between %d and %d, got %d", MinGrade, MaxGrade, grade), nil)
	}
	if timeSpentSeconds < 0 || hintsUsed < 0 {
		return card, ReviewResult{}, domain.NewValidationError(
			"review", "time spent and hints used cannot be negative", nil)
	}

	next, result := calculateNextCard(card, grade, now, s.params)
	result.TimeSpentSeconds = timeSpentSeconds
	result.HintsUsed = hintsUsed
	return next, result, nil
}

// Reset implements Scheduler.Reset.
func (s *defaultScheduler) Reset(
	card domain.ReviewCard,
	learnerID uuid.UUID,
	now time.Time,
) (domain.ReviewCard, error) {
	if err := s.checkCard(card, learnerID); err != nil {
		return card, err
	}
	return calculateResetCard(card, now, s.params), nil
}

// Params implements Scheduler.Params.
func (s *defaultScheduler) Params() *Params {
	return s.params
}

func (s *defaultScheduler) checkCard(card domain.ReviewCard, learnerID uuid.UUID) error {
	if err := card.Validate(); err != nil {
		return err
	}
	if card.LearnerID != learnerID {
		return &domain.OwnershipError{Resource: "card", ID: card.ID.String()}
	}
	return nil
}
