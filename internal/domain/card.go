package domain

import (
	"time"

	"github.com/google/uuid"
)

// CardType is the kind of reviewable unit a ReviewCard schedules.
type CardType string

// Reviewable card types.
const (
	CardTypeQuiz      CardType = "quiz"
	CardTypeMicroCase CardType = "micro-case"
)

// Default scheduling state for a card that has never been reviewed.
const (
	InitialStability  = 1.0
	InitialDifficulty = 5.0
)

// ReviewCard is the spaced-repetition record for one content item and one learner.
// It is mutated only by the srs scheduler and never deleted; a card whose
// content was retired is marked Retired and skipped by the mix generator.
type ReviewCard struct {
	ID          uuid.UUID `json:"id"`
	LearnerID   uuid.UUID `json:"learner_id"`
	ContentID   string    `json:"content_id"`
	ContentType CardType  `json:"content_type"`
	Domain      string    `json:"domain"`

	Stability      float64   `json:"stability"`
	Difficulty     float64   `json:"difficulty"`
	IntervalDays   int       `json:"interval_days"`
	DueDate        time.Time `json:"due_date"`
	LastReviewedAt time.Time `json:"last_reviewed_at"`
	ReviewCount    int       `json:"review_count"`
	FailCount      int       `json:"fail_count"`

	// LapsesSinceClear counts failures since the leech flag was last cleared.
	LapsesSinceClear int `json:"lapses_since_clear"`
	// SuccessStreak counts consecutive successful reviews.
	SuccessStreak int  `json:"success_streak"`
	IsLeech       bool `json:"is_leech"`
	Retired       bool `json:"retired,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewReviewCard creates the card for a content item the first time it is shown
// to a learner. The card is due immediately.
func NewReviewCard(learnerID uuid.UUID, item ContentItem, now time.Time) (ReviewCard, error) {
	if learnerID == uuid.Nil {
		return ReviewCard{}, NewValidationError("learner_id", "cannot be empty", ErrValidation)
	}
	if item == nil {
		return ReviewCard{}, NewValidationError("content", "cannot be nil", ErrValidation)
	}
	now = now.UTC()
	card := ReviewCard{
		ID:           uuid.New(),
		LearnerID:    learnerID,
		ContentID:    item.ItemID(),
		ContentType:  CardTypeFor(item.Kind()),
		Domain:       item.ItemDomain(),
		Stability:    InitialStability,
		Difficulty:   InitialDifficulty,
		IntervalDays: 1,
		DueDate:      now,
		CreatedAt:    now,
	}
	if err := card.Validate(); err != nil {
		return ReviewCard{}, err
	}
	return card, nil
}

// Validate checks the card's structural invariants.
func (c ReviewCard) Validate() error {
	switch {
	case c.ID == uuid.Nil:
		return NewValidationError("card.id", "cannot be empty", nil)
	case c.LearnerID == uuid.Nil:
		return NewValidationError("card.learner_id", "cannot be empty", nil)
	case c.ContentID == "":
		return NewValidationError("card.content_id", "cannot be empty", nil)
	case c.ContentType != CardTypeQuiz && c.ContentType != CardTypeMicroCase:
		return NewValidationError("card.content_type", "must be quiz or micro-case", nil)
	case c.Stability <= 0:
		return NewValidationError("card.stability", "must be positive", nil)
	case c.IntervalDays < 1:
		return NewValidationError("card.interval_days", "must be at least 1", nil)
	case c.ReviewCount < 0 || c.FailCount < 0:
		return NewValidationError("card.counts", "cannot be negative", nil)
	}
	return nil
}

// IsDue reports whether the card is due on or before cutoff.
func (c ReviewCard) IsDue(cutoff time.Time) bool {
	return !c.Retired && !c.DueDate.After(cutoff)
}

// OverdueDays returns how many whole days past due the card is at now.
func (c ReviewCard) OverdueDays(now time.Time) int {
	if !now.After(c.DueDate) {
		return 0
	}
	return int(now.Sub(c.DueDate) / (24 * time.Hour))
}
