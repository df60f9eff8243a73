package srs

import (
	"fmt"

	"github.com/phrazzld/medscry/internal/domain"
)

// Behavior is the observed behavior on an auto-graded item.
type Behavior struct {
	Correct          bool
	TimeSpentSeconds int
	ExpectedSeconds  int
	HintsUsed        int
}

// GradeFromBehavior maps behavior on a quiz or flashcard item to a 0..5 grade.
//
// Mapping:
//   - incorrect: 1, or 0 when hints were used as well
//   - correct: start at 5
//   - minus 1 when slower than the expected time
//   - minus 1 more when slower than SlowRatio times the expected time
//   - minus HintPenalty per hint used
//   - never below CorrectGradeFloor
//
// The hint penalty is the same constant used by GradeFromSelfAssessment so
// both grading paths charge hints identically. With the default floor of 2 a
// correct answer that needed heavy hinting counts as a failed recall.
func GradeFromBehavior(b Behavior, params *Params) int {
	if !b.Correct {
		if b.HintsUsed > 0 {
			return 0
		}
		return 1
	}

	expected := b.ExpectedSeconds
	if expected <= 0 {
		expected = params.DefaultExpectedSec
	}

	grade := MaxGrade
	ratio := float64(b.TimeSpentSeconds) / float64(expected)
	if ratio > 1 {
		grade--
	}
	if ratio > params.SlowRatio {
		grade--
	}
	grade -= b.HintsUsed * params.HintPenalty

	if grade < params.CorrectGradeFloor {
		grade = params.CorrectGradeFloor
	}
	return grade
}

// GradeFromSelfAssessment applies the shared hint penalty to a learner's own
// 0..5 rating of a free-form clinical case. Ratings outside 0..5 are rejected.
func GradeFromSelfAssessment(selfGrade, hintsUsed int, params *Params) (int, error) {
	if selfGrade < MinGrade || selfGrade > MaxGrade {
		return 0, domain.NewValidationError(
			"grade", fmt.Sprintf("must be between %d and %d, got %d", MinGrade, MaxGrade, selfGrade), nil)
	}
	grade := selfGrade - hintsUsed*params.HintPenalty
	if grade < MinGrade {
		grade = MinGrade
	}
	return grade, nil
}

// GradeFor resolves the grade of a graded session item against its content
// variant. Micro-cases require a self-assessed grade. Quiz and flashcard
// grades are always derived from behavior, so a client-supplied grade for
// them is rejected.
func GradeFor(item domain.ContentItem, graded domain.GradedItem, params *Params) (int, error) {
	switch v := item.(type) {
	case domain.MicroCase:
		if graded.Grade == nil {
			return 0, domain.NewValidationError("grade", "is required for micro-case "+v.ID, nil)
		}
		return GradeFromSelfAssessment(*graded.Grade, graded.HintsUsed, params)
	case domain.Quiz, domain.Flashcard:
		if graded.Grade != nil {
			return 0, domain.NewValidationError(
				"grade", "is derived from behavior for "+string(item.Kind())+" "+item.ItemID()+"; send correct instead", nil)
		}
		if graded.Correct == nil {
			return 0, domain.NewValidationError("correct", "is required for "+string(item.Kind())+" "+item.ItemID(), nil)
		}
		return GradeFromBehavior(Behavior{
			Correct:          *graded.Correct,
			TimeSpentSeconds: graded.TimeSpentSeconds,
			ExpectedSeconds:  item.Meta().ExpectedSeconds,
			HintsUsed:        graded.HintsUsed,
		}, params), nil
	default:
		return 0, domain.NewValidationError("content", fmt.Sprintf("unsupported content item %T", item), nil)
	}
}
