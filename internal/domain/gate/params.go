// Package gate implements the per-domain gate state machine:
// not-started, in-progress, gate-pending, completed.
package gate

import "github.com/phrazzld/medscry/internal/domain"

// Params defines the gate thresholds.
type Params struct {
	// MinCards is the number of active cards a domain needs before stability is judged.
	MinCards int
	// MeanStability is the minimum mean card stability, in days.
	MeanStability float64
	// StabilityFloor is the minimum stability every card must reach.
	StabilityFloor float64
	// MaxCriterionScore is the top score of a single rubric criterion.
	MaxCriterionScore int
	// PassingScore is the default Mini-OSCE pass mark, used when a rubric has none.
	PassingScore float64
}

// ParamsConfig allows overriding the default parameters. Zero values keep the default.
type ParamsConfig struct {
	MinCards          int
	MeanStability     float64
	StabilityFloor    float64
	MaxCriterionScore int
	PassingScore      float64
}

// NewDefaultParams returns the default gate thresholds.
func NewDefaultParams() *Params {
	return &Params{
		MinCards:          5,
		MeanStability:     21,
		StabilityFloor:    7,
		MaxCriterionScore: 2,
		PassingScore:      0.80,
	}
}

// NewParams applies overrides on top of the defaults.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()
	if config.MinCards > 0 {
		params.MinCards = config.MinCards
	}
	if config.MeanStability > 0 {
		params.MeanStability = config.MeanStability
	}
	if config.StabilityFloor > 0 {
		params.StabilityFloor = config.StabilityFloor
	}
	if config.MaxCriterionScore > 0 {
		params.MaxCriterionScore = config.MaxCriterionScore
	}
	if config.PassingScore > 0 {
		params.PassingScore = config.PassingScore
	}
	return params
}

// Validate checks the thresholds.
func (p *Params) Validate() error {
	switch {
	case p.MinCards < 1:
		return domain.NewValidationError("gate.min_cards", "must be at least 1", nil)
	case p.StabilityFloor <= 0 || p.MeanStability < p.StabilityFloor:
		return domain.NewValidationError("gate.stability", "floor must be positive and not above the mean threshold", nil)
	case p.MaxCriterionScore < 1:
		return domain.NewValidationError("gate.max_criterion_score", "must be at least 1", nil)
	case p.PassingScore <= 0 || p.PassingScore > 1:
		return domain.NewValidationError("gate.passing_score", "must be in (0, 1]", nil)
	}
	return nil
}
