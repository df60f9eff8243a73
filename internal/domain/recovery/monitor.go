// Package recovery detects sustained poor performance and manages recovery mode.
package recovery

import (
	"sort"
	"time"

	"github.com/phrazzld/medscry/internal/domain"
)

// Params defines the recovery thresholds.
type Params struct {
	// HistoryDays is the number of trailing days kept.
	HistoryDays int
	// DifficultAccuracy classifies a day as difficult when accuracy falls below it.
	DifficultAccuracy float64
	// DifficultHintRatio classifies a day as difficult when hints per item exceed it.
	DifficultHintRatio float64
	// TriggerDays is the number of consecutive difficult days that activates recovery.
	TriggerDays int
	// ExitAccuracy deactivates recovery when a later day reaches it.
	ExitAccuracy float64
}

// ParamsConfig allows overriding the default parameters. Zero values keep the default.
type ParamsConfig struct {
	HistoryDays        int
	DifficultAccuracy  float64
	DifficultHintRatio float64
	TriggerDays        int
	ExitAccuracy       float64
}

// NewDefaultParams returns the default recovery thresholds.
func NewDefaultParams() *Params {
	return &Params{
		HistoryDays:        3,
		DifficultAccuracy:  0.60,
		DifficultHintRatio: 0.5,
		TriggerDays:        2,
		ExitAccuracy:       0.75,
	}
}

// NewParams applies overrides on top of the defaults.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()
	if config.HistoryDays > 0 {
		params.HistoryDays = config.HistoryDays
	}
	if config.DifficultAccuracy > 0 {
		params.DifficultAccuracy = config.DifficultAccuracy
	}
	if config.DifficultHintRatio > 0 {
		params.DifficultHintRatio = config.DifficultHintRatio
	}
	if config.TriggerDays > 0 {
		params.TriggerDays = config.TriggerDays
	}
	if config.ExitAccuracy > 0 {
		params.ExitAccuracy = config.ExitAccuracy
	}
	return params
}

// Validate checks the thresholds.
func (p *Params) Validate() error {
	switch {
	case p.TriggerDays < 1:
		return domain.NewValidationError("recovery.trigger_days", "must be at least 1", nil)
	case p.HistoryDays < p.TriggerDays:
		return domain.NewValidationError("recovery.history_days", "must cover the trigger days", nil)
	case p.ExitAccuracy < p.DifficultAccuracy || p.ExitAccuracy > 1:
		return domain.NewValidationError("recovery.exit_accuracy", "must be between the difficulty threshold and 1", nil)
	}
	return nil
}

// Monitor tracks day outcomes and toggles recovery mode.
type Monitor interface {
	// Observe folds a day outcome into the history and activates or
	// deactivates recovery. changed reports whether Active flipped.
	Observe(state domain.RecoveryState, outcome domain.DayOutcome, now time.Time) (next domain.RecoveryState, changed bool, err error)

	// Request activates recovery immediately, whatever the history.
	Request(state domain.RecoveryState, day string, now time.Time) (next domain.RecoveryState, changed bool)

	// Exit deactivates recovery on the learner's request and resets the
	// difficult-day streak so it does not re-trigger on stale history.
	Exit(state domain.RecoveryState) (next domain.RecoveryState, changed bool)
}

type defaultMonitor struct {
	params *Params
}

// NewMonitor creates a recovery monitor.
func NewMonitor(params *Params) (Monitor, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &defaultMonitor{params: params}, nil
}

func (m *defaultMonitor) Observe(
	state domain.RecoveryState,
	outcome domain.DayOutcome,
	now time.Time,
) (domain.RecoveryState, bool, error) {
	switch {
	case outcome.Day == "":
		return state, false, domain.NewValidationError("day", "is required", nil)
	case outcome.Total < 0 || outcome.Correct < 0 || outcome.HintsUsed < 0:
		return state, false, domain.NewValidationError("day_outcome", "counts cannot be negative", nil)
	case outcome.Correct > outcome.Total:
		return state, false, domain.NewValidationError("correct", "cannot exceed total", nil)
	}
	if _, err := parseDay(outcome.Day); err != nil {
		return state, false, domain.NewValidationError("day", "must be a YYYY-MM-DD date", err)
	}

	next := copyState(state)
	merged := false
	for i := range next.History {
		if next.History[i].Day == outcome.Day {
			next.History[i].Correct += outcome.Correct
			next.History[i].Total += outcome.Total
			next.History[i].HintsUsed += outcome.HintsUsed
			next.History[i].Difficult = m.isDifficult(next.History[i])
			merged = true
			break
		}
	}
	if !merged {
		outcome.Difficult = m.isDifficult(outcome)
		next.History = append(next.History, outcome)
		sort.SliceStable(next.History, func(i, j int) bool { return next.History[i].Day < next.History[j].Day })
	}
	next.History = m.trimHistory(next.History)

	today, ok := findDay(next.History, outcome.Day)
	if !ok {
		// The outcome is older than the trailing window.
		return next, false, nil
	}

	if next.Active {
		if today.Day != next.ActivatedOn && today.Total > 0 && today.Accuracy() >= m.params.ExitAccuracy {
			deactivate(&next)
			return next, true, nil
		}
		return next, false, nil
	}

	if m.consecutiveDifficult(next.History) >= m.params.TriggerDays {
		latest := next.History[len(next.History)-1]
		activate(&next, domain.RecoveryReasonAuto, latest.Day, now)
		return next, true, nil
	}
	return next, false, nil
}

func (m *defaultMonitor) Request(state domain.RecoveryState, day string, now time.Time) (domain.RecoveryState, bool) {
	next := copyState(state)
	if next.Active {
		return next, false
	}
	activate(&next, domain.RecoveryReasonManual, day, now)
	return next, true
}

func (m *defaultMonitor) Exit(state domain.RecoveryState) (domain.RecoveryState, bool) {
	next := copyState(state)
	if !next.Active {
		return next, false
	}
	deactivate(&next)
	next.History = nil
	return next, true
}

func (m *defaultMonitor) isDifficult(day domain.DayOutcome) bool {
	if day.Total <= 0 {
		return false
	}
	if day.Accuracy() < m.params.DifficultAccuracy {
		return true
	}
	return float64(day.HintsUsed)/float64(day.Total) > m.params.DifficultHintRatio
}

// consecutiveDifficult counts difficult days ending at the latest entry,
// stopping at the first easy day or calendar gap.
func (m *defaultMonitor) consecutiveDifficult(history []domain.DayOutcome) int {
	n := 0
	var later time.Time
	for i := len(history) - 1; i >= 0 && history[i].Difficult; i-- {
		d, err := parseDay(history[i].Day)
		if err != nil {
			break
		}
		if n > 0 && !d.AddDate(0, 0, 1).Equal(later) {
			break
		}
		later = d
		n++
	}
	return n
}

// trimHistory keeps the entries that fall within HistoryDays calendar days
// of the latest entry. history must be sorted by day.
func (m *defaultMonitor) trimHistory(history []domain.DayOutcome) []domain.DayOutcome {
	if len(history) == 0 {
		return history
	}
	latest, err := parseDay(history[len(history)-1].Day)
	if err != nil {
		return history
	}
	cutoff := latest.AddDate(0, 0, -(m.params.HistoryDays - 1))
	kept := history[:0]
	for _, h := range history {
		d, err := parseDay(h.Day)
		if err != nil || d.Before(cutoff) {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

func findDay(history []domain.DayOutcome, day string) (domain.DayOutcome, bool) {
	for _, h := range history {
		if h.Day == day {
			return h, true
		}
	}
	return domain.DayOutcome{}, false
}

func parseDay(day string) (time.Time, error) {
	return time.Parse(domain.DayLayout, day)
}

func activate(state *domain.RecoveryState, reason domain.RecoveryReason, day string, now time.Time) {
	at := now.UTC()
	state.Active = true
	state.Reason = reason
	state.ActivatedAt = &at
	state.ActivatedOn = day
}

func deactivate(state *domain.RecoveryState) {
	state.Active = false
	state.Reason = ""
	state.ActivatedAt = nil
	state.ActivatedOn = ""
}

func copyState(s domain.RecoveryState) domain.RecoveryState {
	next := s
	next.History = append([]domain.DayOutcome(nil), s.History...)
	if s.ActivatedAt != nil {
		at := *s.ActivatedAt
		next.ActivatedAt = &at
	}
	return next
}
