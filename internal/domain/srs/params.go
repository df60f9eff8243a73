package srs

import (
	"fmt"

	"github.com/phrazzld/medscry/internal/domain"
)

// Grade bounds. A grade at or above PassingGrade is a successful review.
const (
	MinGrade     = 0
	MaxGrade     = 5
	PassingGrade = 3
)

// Params defines all configurable parameters for the card scheduler.
type Params struct {
	// Interval limits in days
	MinIntervalDays int
	MaxIntervalDays int

	// Stability growth on success: S' = S * (1 + GrowthRate * (11-D)/10 * GradeBonus[grade])
	GrowthRate float64
	GradeBonus [MaxGrade + 1]float64

	// Stability decay on failure: S' = max(MinStability, S * LapseFactor)
	LapseFactor  float64
	MinStability float64

	// Difficulty drift per grade, clamped to [MinDifficulty, MaxDifficulty]
	DifficultyDelta [MaxGrade + 1]float64
	MinDifficulty   float64
	MaxDifficulty   float64

	// Leech handling
	LeechThreshold   int
	LeechClearStreak int

	// Behavior-to-grade mapping
	HintPenalty        int
	SlowRatio          float64
	CorrectGradeFloor  int
	DefaultExpectedSec int
}

// ParamsConfig allows overriding the default parameters. Zero values keep the default.
type ParamsConfig struct {
	MinIntervalDays    int
	MaxIntervalDays    int
	GrowthRate         float64
	LapseFactor        float64
	MinStability       float64
	LeechThreshold     int
	LeechClearStreak   int
	HintPenalty        int
	SlowRatio          float64
	CorrectGradeFloor  int
	DefaultExpectedSec int
}

// NewDefaultParams creates a new Params instance with default values
func NewDefaultParams() *Params {
	return &Params{
		MinIntervalDays: 1,
		MaxIntervalDays: 180,

		GrowthRate: 1.5,
		GradeBonus: [MaxGrade + 1]float64{0, 0, 0, 0.6, 1.0, 1.4},

		LapseFactor:  0.5,
		MinStability: 0.1,

		DifficultyDelta: [MaxGrade + 1]float64{1.0, 0.8, 0.5, 0.15, 0, -0.3},
		MinDifficulty:   1,
		MaxDifficulty:   10,

		LeechThreshold:   4,
		LeechClearStreak: 3,

		HintPenalty:        1,
		SlowRatio:          2.0,
		CorrectGradeFloor:  2,
		DefaultExpectedSec: 60,
	}
}

// NewParams creates a new Params instance with custom configuration
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.MinIntervalDays > 0 {
		params.MinIntervalDays = config.MinIntervalDays
	}
	if config.MaxIntervalDays > 0 {
		params.MaxIntervalDays = config.MaxIntervalDays
	}
	if config.GrowthRate > 0 {
		params.GrowthRate = config.GrowthRate
	}
	if config.LapseFactor > 0 {
		params.LapseFactor = config.LapseFactor
	}
	if config.MinStability > 0 {
		params.MinStability = config.MinStability
	}
	if config.LeechThreshold > 0 {
		params.LeechThreshold = config.LeechThreshold
	}
	if config.LeechClearStreak > 0 {
		params.LeechClearStreak = config.LeechClearStreak
	}
	if config.HintPenalty > 0 {
		params.HintPenalty = config.HintPenalty
	}
	if config.SlowRatio > 0 {
		params.SlowRatio = config.SlowRatio
	}
	if config.CorrectGradeFloor > 0 {
		params.CorrectGradeFloor = config.CorrectGradeFloor
	}
	if config.DefaultExpectedSec > 0 {
		params.DefaultExpectedSec = config.DefaultExpectedSec
	}

	return params
}

// Validate checks that the parameters keep the scheduler's invariants satisfiable.
func (p *Params) Validate() error {
	switch {
	case p.MinIntervalDays < 1:
		return domain.NewValidationError("srs.min_interval_days", "must be at least 1", nil)
	case p.MaxIntervalDays < p.MinIntervalDays:
		return domain.NewValidationError("srs.max_interval_days", "must not be below the minimum interval", nil)
	case p.GrowthRate <= 0:
		return domain.NewValidationError("srs.growth_rate", "must be positive", nil)
	case p.LapseFactor <= 0 || p.LapseFactor >= 1:
		return domain.NewValidationError("srs.lapse_factor", "must be in (0, 1)", nil)
	case p.MinStability <= 0:
		return domain.NewValidationError("srs.min_stability", "must be positive", nil)
	case p.MinDifficulty >= p.MaxDifficulty:
		return domain.NewValidationError("srs.difficulty", "min must be below max", nil)
	case p.LeechThreshold < 1 || p.LeechClearStreak < 1:
		return domain.NewValidationError("srs.leech", "threshold and clear streak must be at least 1", nil)
	case p.CorrectGradeFloor < MinGrade || p.CorrectGradeFloor > MaxGrade:
		return domain.NewValidationError("srs.correct_grade_floor", fmt.Sprintf("must be in [%d, %d]", MinGrade, MaxGrade), nil)
	}
	for g := PassingGrade; g <= MaxGrade; g++ {
		if p.GradeBonus[g] <= 0 {
			return domain.NewValidationError("srs.grade_bonus", fmt.Sprintf("grade %d bonus must be positive", g), nil)
		}
	}
	return nil
}
