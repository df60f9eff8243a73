package gate

import (
	"fmt"

	"github.com/phrazzld/medscry/internal/domain"
)

// ScoreMiniOSCE scores a submission against its rubric.
//
// Every rubric criterion must be scored exactly once, with a score between 0
// and maxCriterionScore. percentage is total/max and the attempt passes when
// percentage >= passingScore.
func ScoreMiniOSCE(
	rubric domain.Rubric,
	scores []domain.CriterionScore,
	passingScore float64,
	maxCriterionScore int,
) (domain.MiniOSCEResult, error) {
	if len(rubric.Criteria) == 0 {
		return domain.MiniOSCEResult{}, domain.NewValidationError("rubric", "has no criteria", nil)
	}
	if passingScore <= 0 || passingScore > 1 {
		return domain.MiniOSCEResult{}, domain.NewValidationError(
			"passing_score", fmt.Sprintf("must be in (0, 1], got %v", passingScore), nil)
	}

	known := make(map[string]bool, len(rubric.Criteria))
	for _, c := range rubric.Criteria {
		known[c.ID] = true
	}

	seen := make(map[string]bool, len(scores))
	total := 0
	for _, s := range scores {
		switch {
		case !known[s.CriterionID]:
			return domain.MiniOSCEResult{}, domain.NewValidationError(
				"criterion_id", fmt.Sprintf("unknown criterion %q", s.CriterionID), nil)
		case seen[s.CriterionID]:
			return domain.MiniOSCEResult{}, domain.NewValidationError(
				"criterion_id", fmt.Sprintf("criterion %q scored more than once", s.CriterionID), nil)
		case s.Score < 0 || s.Score > maxCriterionScore:
			return domain.MiniOSCEResult{}, domain.NewValidationError(
				"score", fmt.Sprintf("criterion %q score must be between 0 and %d, got %d",
					s.CriterionID, maxCriterionScore, s.Score), nil)
		}
		seen[s.CriterionID] = true
		total += s.Score
	}
	for _, c := range rubric.Criteria {
		if !seen[c.ID] {
			return domain.MiniOSCEResult{}, domain.NewValidationError(
				"criterion_scores", fmt.Sprintf("criterion %q was not scored", c.ID), nil)
		}
	}

	maxScore := len(rubric.Criteria) * maxCriterionScore
	percentage := float64(total) / float64(maxScore)
	return domain.MiniOSCEResult{
		CriterionScores: append([]domain.CriterionScore(nil), scores...),
		TotalScore:      total,
		MaxScore:        maxScore,
		Percentage:      percentage,
		Passed:          percentage >= passingScore,
	}, nil
}

// passingScoreFor returns the rubric's pass mark, or the configured default.
func (p *Params) passingScoreFor(rubric domain.Rubric) float64 {
	if rubric.PassingScore > 0 {
		return rubric.PassingScore
	}
	return p.PassingScore
}
