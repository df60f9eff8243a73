// Package band adjusts a learner's difficulty tier from recent session accuracy.
package band

import (
	"fmt"
	"time"

	"github.com/phrazzld/medscry/internal/domain"
)

// Params defines the band controller thresholds.
type Params struct {
	// WindowSize is the number of recent sessions kept in the rolling window.
	WindowSize int
	// PromoteMinSamples is the minimum window fill before a promotion.
	PromoteMinSamples int
	// PromoteAccuracy is the window accuracy at or above which the band rises.
	PromoteAccuracy float64
	// DemoteMinSamples is the minimum window fill before a demotion.
	DemoteMinSamples int
	// DemoteAccuracy is the window accuracy at or below which the band drops.
	DemoteAccuracy float64
}

// ParamsConfig allows overriding the default parameters. Zero values keep the default.
type ParamsConfig struct {
	WindowSize        int
	PromoteMinSamples int
	PromoteAccuracy   float64
	DemoteMinSamples  int
	DemoteAccuracy    float64
}

// NewDefaultParams returns the default thresholds.
func NewDefaultParams() *Params {
	return &Params{
		WindowSize:        5,
		PromoteMinSamples: 3,
		PromoteAccuracy:   0.80,
		DemoteMinSamples:  1,
		DemoteAccuracy:    0.50,
	}
}

// NewParams applies overrides on top of the defaults.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()
	if config.WindowSize > 0 {
		params.WindowSize = config.WindowSize
	}
	if config.PromoteMinSamples > 0 {
		params.PromoteMinSamples = config.PromoteMinSamples
	}
	if config.PromoteAccuracy > 0 {
		params.PromoteAccuracy = config.PromoteAccuracy
	}
	if config.DemoteMinSamples > 0 {
		params.DemoteMinSamples = config.DemoteMinSamples
	}
	if config.DemoteAccuracy > 0 {
		params.DemoteAccuracy = config.DemoteAccuracy
	}
	return params
}

// Validate checks that promotion and demotion cannot both fire.
func (p *Params) Validate() error {
	switch {
	case p.WindowSize < 1:
		return domain.NewValidationError("band.window_size", "must be at least 1", nil)
	case p.PromoteMinSamples < 1 || p.PromoteMinSamples > p.WindowSize:
		return domain.NewValidationError("band.promote_min_samples", "must be within the window size", nil)
	case p.DemoteMinSamples < 1 || p.DemoteMinSamples > p.WindowSize:
		return domain.NewValidationError("band.demote_min_samples", "must be within the window size", nil)
	case p.PromoteAccuracy > 1 || p.DemoteAccuracy < 0:
		return domain.NewValidationError("band.accuracy", "thresholds must be within [0, 1]", nil)
	case p.DemoteAccuracy >= p.PromoteAccuracy:
		return domain.NewValidationError("band.accuracy", "demotion threshold must be below promotion threshold", nil)
	}
	return nil
}

// Controller evaluates band transitions.
type Controller interface {
	// Evaluate appends the session sample to the rolling window and returns the
	// updated status. The transition is non-nil only when the band changed, and
	// the band never moves more than one tier per call.
	Evaluate(status domain.BandStatus, sample domain.PerformanceSample) (domain.BandStatus, *domain.BandTransition, error)
}

type defaultController struct {
	params *Params
}

// NewController creates a band controller.
func NewController(params *Params) (Controller, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &defaultController{params: params}, nil
}

// Evaluate implements Controller.Evaluate.
func (c *defaultController) Evaluate(
	status domain.BandStatus,
	sample domain.PerformanceSample,
) (domain.BandStatus, *domain.BandTransition, error) {
	if sample.Total <= 0 {
		return status, nil, domain.NewValidationError("total", "must be positive", nil)
	}
	if sample.Correct < 0 || sample.Correct > sample.Total {
		return status, nil, domain.NewValidationError("correct", "must be between 0 and total", nil)
	}
	if !status.CurrentBand.Valid() {
		return status, nil, domain.NewValidationError("band", fmt.Sprintf("unknown band %q", status.CurrentBand), nil)
	}

	next := status
	next.RecentPerformance = appendBounded(status.RecentPerformance, sample, c.params.WindowSize)
	if next.LastTransition != nil {
		t := *next.LastTransition
		next.LastTransition = &t
	}

	n := len(next.RecentPerformance)
	accuracy := next.WindowAccuracy()

	var target domain.Band
	var reason string
	switch {
	case n >= c.params.DemoteMinSamples && accuracy <= c.params.DemoteAccuracy:
		target = status.CurrentBand.Step(-1)
		reason = fmt.Sprintf("window accuracy %.0f%% at or below %.0f%% over %d sessions",
			accuracy*100, c.params.DemoteAccuracy*100, n)
	case n >= c.params.PromoteMinSamples && accuracy >= c.params.PromoteAccuracy:
		target = status.CurrentBand.Step(1)
		reason = fmt.Sprintf("window accuracy %.0f%% at or above %.0f%% over %d sessions",
			accuracy*100, c.params.PromoteAccuracy*100, n)
	default:
		return next, nil, nil
	}

	// Demotion at A and promotion at E are no-ops.
	if target == status.CurrentBand {
		return next, nil, nil
	}

	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	transition := &domain.BandTransition{
		FromBand:  status.CurrentBand,
		ToBand:    target,
		Reason:    reason,
		Timestamp: ts,
	}
	next.CurrentBand = target
	next.RecentPerformance = nil
	next.LastTransition = transition

	t := *transition
	return next, &t, nil
}

func appendBounded(window []domain.PerformanceSample, sample domain.PerformanceSample, size int) []domain.PerformanceSample {
	out := make([]domain.PerformanceSample, 0, size)
	out = append(out, window...)
	out = append(out, sample)
	if over := len(out) - size; over > 0 {
		out = out[over:]
	}
	return out
}
