// Package mix builds the once-per-day content plan from a learner profile and
// the content catalog.
package mix

import "github.com/phrazzld/medscry/internal/domain"

// Params defines the time budget and selection thresholds of the daily mix.
type Params struct {
	// BudgetMinutes caps the total estimated time of a mix.
	BudgetMinutes int
	// NewSliceMinutes is the time reserved for new content.
	NewSliceMinutes int
	// RecoveryNewSliceMinutes replaces NewSliceMinutes on recovery days.
	RecoveryNewSliceMinutes int
	// InterleaveSliceMinutes is the time reserved for other domains.
	InterleaveSliceMinutes int
	// MaxInterleavePerDomain spreads interleaving across domains.
	MaxInterleavePerDomain int

	// WeakAccuracy marks a domain weak when its rolling accuracy falls below it.
	WeakAccuracy float64
	// WeakMinItems is the number of graded items needed before judging a domain.
	WeakMinItems int
	// MaxWeakDomains caps the weak domains reported.
	MaxWeakDomains int
	// DominanceMargin is how far below the primary domain a weak domain must be
	// to take over new-content selection.
	DominanceMargin float64

	// DefaultItemSeconds is used when an item has no expected time.
	DefaultItemSeconds int
}

// ParamsConfig allows overriding the default parameters. Zero values keep the default.
type ParamsConfig struct {
	BudgetMinutes           int
	NewSliceMinutes         int
	RecoveryNewSliceMinutes int
	InterleaveSliceMinutes  int
	MaxInterleavePerDomain  int
	WeakAccuracy            float64
	WeakMinItems            int
	MaxWeakDomains          int
	DominanceMargin         float64
	DefaultItemSeconds      int
}

// NewDefaultParams returns the default mix parameters.
func NewDefaultParams() *Params {
	return &Params{
		BudgetMinutes:           30,
		NewSliceMinutes:         10,
		RecoveryNewSliceMinutes: 5,
		InterleaveSliceMinutes:  7,
		MaxInterleavePerDomain:  2,
		WeakAccuracy:            0.65,
		WeakMinItems:            5,
		MaxWeakDomains:          3,
		DominanceMargin:         0.15,
		DefaultItemSeconds:      60,
	}
}

// NewParams applies overrides on top of the defaults.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()
	if config.BudgetMinutes > 0 {
		params.BudgetMinutes = config.BudgetMinutes
	}
	if config.NewSliceMinutes > 0 {
		params.NewSliceMinutes = config.NewSliceMinutes
	}
	if config.RecoveryNewSliceMinutes > 0 {
		params.RecoveryNewSliceMinutes = config.RecoveryNewSliceMinutes
	}
	if config.InterleaveSliceMinutes > 0 {
		params.InterleaveSliceMinutes = config.InterleaveSliceMinutes
	}
	if config.MaxInterleavePerDomain > 0 {
		params.MaxInterleavePerDomain = config.MaxInterleavePerDomain
	}
	if config.WeakAccuracy > 0 {
		params.WeakAccuracy = config.WeakAccuracy
	}
	if config.WeakMinItems > 0 {
		params.WeakMinItems = config.WeakMinItems
	}
	if config.MaxWeakDomains > 0 {
		params.MaxWeakDomains = config.MaxWeakDomains
	}
	if config.DominanceMargin > 0 {
		params.DominanceMargin = config.DominanceMargin
	}
	if config.DefaultItemSeconds > 0 {
		params.DefaultItemSeconds = config.DefaultItemSeconds
	}
	return params
}

// Validate checks that the slices fit in the budget.
func (p *Params) Validate() error {
	switch {
	case p.BudgetMinutes < 1:
		return domain.NewValidationError("mix.budget_minutes", "must be at least 1", nil)
	case p.NewSliceMinutes+p.InterleaveSliceMinutes > p.BudgetMinutes:
		return domain.NewValidationError("mix.slices", "new and interleaving slices exceed the budget", nil)
	case p.RecoveryNewSliceMinutes > p.NewSliceMinutes:
		return domain.NewValidationError("mix.recovery_new_slice_minutes", "must not exceed the normal new slice", nil)
	case p.DefaultItemSeconds < 1:
		return domain.NewValidationError("mix.default_item_seconds", "must be at least 1", nil)
	}
	return nil
}
