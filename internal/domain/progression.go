package domain

import "time"

// PerformanceSample is one session in the band controller's rolling window.
type PerformanceSample struct {
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// Accuracy returns Correct/Total, or 0 for an empty sample.
func (s PerformanceSample) Accuracy() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// BandTransition records a change of band. It is the only trigger for mix
// regeneration and learner notification after a band evaluation.
type BandTransition struct {
	FromBand  Band      `json:"from_band"`
	ToBand    Band      `json:"to_band"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// BandStatus is the learner's current tier and recent performance.
type BandStatus struct {
	CurrentBand       Band                `json:"current_band"`
	RecentPerformance []PerformanceSample `json:"recent_performance"`
	LastTransition    *BandTransition     `json:"last_transition,omitempty"`
}

// WindowAccuracy returns the pooled accuracy across the rolling window.
func (s BandStatus) WindowAccuracy() float64 {
	correct, total := 0, 0
	for _, p := range s.RecentPerformance {
		correct += p.Correct
		total += p.Total
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// GateState is the lifecycle state of a domain gate.
type GateState string

// Domain gate states.
const (
	GateNotStarted GateState = "not-started"
	GateInProgress GateState = "in-progress"
	GatePending    GateState = "gate-pending"
	GateCompleted  GateState = "completed"
)

// GateProgress holds the gate criteria for a domain.
type GateProgress struct {
	MiniOSCEPassed  bool     `json:"mini_osce_passed"`
	MiniOSCEScore   *float64 `json:"mini_osce_score,omitempty"`
	SRSStabilityMet bool     `json:"srs_stability_met"`
}

// CriterionScore is a single rubric line of a Mini-OSCE submission.
type CriterionScore struct {
	CriterionID string `json:"criterion_id" validate:"required"`
	Score       int    `json:"score" validate:"gte=0,lte=2"`
}

// MiniOSCEResult is the scored outcome of one Mini-OSCE attempt.
type MiniOSCEResult struct {
	CriterionScores []CriterionScore `json:"criterion_scores"`
	TotalScore      int              `json:"total_score"`
	MaxScore        int              `json:"max_score"`
	Percentage      float64          `json:"percentage"`
	Passed          bool             `json:"passed"`
	SubmittedAt     time.Time        `json:"submitted_at"`
}

// DomainStatus tracks one domain's progress toward its gate.
type DomainStatus struct {
	Domain       string           `json:"domain"`
	Status       GateState        `json:"status"`
	GateProgress GateProgress     `json:"gate_progress"`
	Attempts     []MiniOSCEResult `json:"attempts,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	ReopenedAt   *time.Time       `json:"reopened_at,omitempty"`
	ReopenReason string           `json:"reopen_reason,omitempty"`
}

// NewDomainStatus returns a not-started status for the domain.
func NewDomainStatus(domain string) DomainStatus {
	return DomainStatus{Domain: domain, Status: GateNotStarted}
}

// RecoveryReason explains why recovery mode is active.
type RecoveryReason string

// Recovery activation reasons.
const (
	RecoveryReasonAuto   RecoveryReason = "auto"
	RecoveryReasonManual RecoveryReason = "manual"
)

// DayOutcome aggregates one calendar day of sessions for the recovery monitor.
type DayOutcome struct {
	Day       string `json:"day"`
	Correct   int    `json:"correct"`
	Total     int    `json:"total"`
	HintsUsed int    `json:"hints_used"`
	Difficult bool   `json:"difficult"`
}

// Accuracy returns Correct/Total, or 0 when nothing was answered.
func (d DayOutcome) Accuracy() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Correct) / float64(d.Total)
}

// RecoveryState is the recovery monitor's persisted state.
type RecoveryState struct {
	Active      bool           `json:"active"`
	Reason      RecoveryReason `json:"reason,omitempty"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty"`
	ActivatedOn string         `json:"activated_on,omitempty"`
	History     []DayOutcome   `json:"history,omitempty"`
}

// DomainPerformance is the rolling accuracy used for weak-domain detection.
type DomainPerformance struct {
	Recent      []PerformanceSample `json:"recent"`
	LastTouched time.Time           `json:"last_touched"`
}

// Accuracy returns pooled accuracy and the number of graded items in the window.
func (p DomainPerformance) Accuracy() (float64, int) {
	correct, total := 0, 0
	for _, s := range p.Recent {
		correct += s.Correct
		total += s.Total
	}
	if total == 0 {
		return 0, 0
	}
	return float64(correct) / float64(total), total
}

// GradedItem is one reviewed item in a session outcome. Grade is set for
// self-assessed micro-cases only; Correct is set for quiz and flashcard items
// and their grade is always derived from behavior.
type GradedItem struct {
	CardID           string `json:"card_id,omitempty" validate:"omitempty,uuid"`
	ContentID        string `json:"content_id" validate:"required"`
	Grade            *int   `json:"grade,omitempty"`
	Correct          *bool  `json:"correct,omitempty"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"gte=0"`
	HintsUsed        int    `json:"hints_used" validate:"gte=0"`
}

// SessionOutcome is produced by the session UI when a learning session completes.
//
// Accuracy and XPEarned are the UI's own summary and are only recorded in
// logs. Band, recovery and weak-domain decisions recompute accuracy from the
// graded items so a client cannot steer them.
type SessionOutcome struct {
	SessionID   string       `json:"session_id" validate:"required,uuid"`
	Domain      string       `json:"domain" validate:"required"`
	ItemsGraded []GradedItem `json:"items_graded" validate:"required,min=1,dive"`
	Accuracy    float64      `json:"accuracy" validate:"gte=0,lte=1"`
	XPEarned    int          `json:"xp_earned" validate:"gte=0"`
	CompletedAt time.Time    `json:"completed_at"`
}

// RubricCriterion is one critical action of a Mini-OSCE rubric.
type RubricCriterion struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// Rubric is the externally authored Mini-OSCE definition for a domain.
type Rubric struct {
	Domain   string            `json:"domain"`
	Criteria []RubricCriterion `json:"criteria"`
	// PassingScore is the fraction of the maximum score needed to pass.
	PassingScore float64 `json:"passing_score"`
}
