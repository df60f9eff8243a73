package srs

import (
	"math"
	"time"

	"github.com/phrazzld/medscry/internal/domain"
)

// calculateNewDifficulty drifts difficulty by the per-grade delta.
//
// Failures push an item harder, a grade of 3 ("correct but effortful") nudges
// it slightly harder, 4 leaves it unchanged and 5 softens it. The result is
// always clamped to [params.MinDifficulty, params.MaxDifficulty]. Difficulty
// moves independently of stability.
func calculateNewDifficulty(current float64, grade int, params *Params) float64 {
	return clamp(current+params.DifficultyDelta[grade], params.MinDifficulty, params.MaxDifficulty)
}

// calculateNewStability determines the post-review stability.
//
// On success stability grows multiplicatively, and the growth factor shrinks
// as difficulty rises so hard items gain stability more slowly:
//
//	S' = S * (1 + GrowthRate * (11 - D) / 10 * GradeBonus[grade])
//
// On failure stability decays proportionally instead of resetting, so some
// memory of prior exposure is preserved:
//
//	S' = max(MinStability, S * LapseFactor)
func calculateNewStability(stability, difficulty float64, grade int, params *Params) float64 {
	if grade < PassingGrade {
		return math.Max(params.MinStability, stability*params.LapseFactor)
	}
	hardness := (11 - clamp(difficulty, params.MinDifficulty, params.MaxDifficulty)) / 10
	return stability * (1 + params.GrowthRate*hardness*params.GradeBonus[grade])
}

// calculateNewInterval determines the next interval in days.
//
// A failure resets the interval to params.MinIntervalDays. A success derives
// the interval from the new stability but never returns less than the
// previous interval plus one day, so intervals strictly increase until they
// reach params.MaxIntervalDays, where they stay.
func calculateNewInterval(currentInterval int, newStability float64, grade int, params *Params) int {
	if grade < PassingGrade {
		return params.MinIntervalDays
	}
	interval := int(math.Round(newStability))
	if interval < currentInterval+1 {
		interval = currentInterval + 1
	}
	if interval < params.MinIntervalDays {
		interval = params.MinIntervalDays
	}
	if interval > params.MaxIntervalDays {
		interval = params.MaxIntervalDays
	}
	return interval
}

// calculateNextCard returns the card's next state and the review summary.
//
// The input card is passed by value and never modified. reviewedAt is clamped
// to the card's LastReviewedAt so that a skewed clock cannot move the due date
// backward.
func calculateNextCard(
	card domain.ReviewCard,
	grade int,
	reviewedAt time.Time,
	params *Params,
) (domain.ReviewCard, ReviewResult) {
	reviewedAt = reviewedAt.UTC()
	if reviewedAt.Before(card.LastReviewedAt) {
		reviewedAt = card.LastReviewedAt
	}

	next := card
	passed := grade >= PassingGrade

	next.Stability = calculateNewStability(card.Stability, card.Difficulty, grade, params)
	next.Difficulty = calculateNewDifficulty(card.Difficulty, grade, params)
	next.IntervalDays = calculateNewInterval(card.IntervalDays, next.Stability, grade, params)
	next.LastReviewedAt = reviewedAt
	next.DueDate = reviewedAt.AddDate(0, 0, next.IntervalDays)
	next.ReviewCount++

	result := ReviewResult{
		CardID:           card.ID,
		Grade:            grade,
		Passed:           passed,
		PreviousInterval: card.IntervalDays,
		NewInterval:      next.IntervalDays,
		PreviousDueDate:  card.DueDate,
		NewDueDate:       next.DueDate,
		ReviewedAt:       reviewedAt,
	}

	if passed {
		next.SuccessStreak++
		if next.IsLeech && next.SuccessStreak >= params.LeechClearStreak {
			next.IsLeech = false
			next.LapsesSinceClear = 0
			result.LeechCleared = true
		}
	} else {
		next.FailCount++
		next.LapsesSinceClear++
		next.SuccessStreak = 0
		if !next.IsLeech && next.LapsesSinceClear >= params.LeechThreshold {
			next.IsLeech = true
			result.BecameLeech = true
		}
	}

	return next, result
}

// calculateResetCard schedules the card for immediate review with the minimum
// interval. This is the only path that moves a due date earlier; review
// history, stability, difficulty and counters are preserved.
func calculateResetCard(card domain.ReviewCard, now time.Time, params *Params) domain.ReviewCard {
	next := card
	next.IntervalDays = params.MinIntervalDays
	next.DueDate = now.UTC()
	return next
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
