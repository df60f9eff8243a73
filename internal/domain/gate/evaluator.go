package gate

import (
	"time"

	"github.com/phrazzld/medscry/internal/domain"
)

// Evaluator drives a domain through its gate. Every method takes the current
// status by value and returns the next one; inputs are never modified.
type Evaluator interface {
	// RecordActivity moves a not-started domain to in-progress on its first
	// completed session. Other states are returned unchanged.
	RecordActivity(status domain.DomainStatus, now time.Time) domain.DomainStatus

	// CheckStability recomputes SRSStabilityMet from the domain's cards and
	// applies the in-progress to gate-pending and gate-pending to completed
	// transitions. changed reports whether Status moved.
	CheckStability(status domain.DomainStatus, cards []domain.ReviewCard, now time.Time) (next domain.DomainStatus, changed bool)

	// SubmitMiniOSCE scores an attempt and records it. Only allowed from
	// gate-pending. Stability is re-checked against cards so completion
	// requires both criteria at the moment of submission.
	SubmitMiniOSCE(
		status domain.DomainStatus,
		cards []domain.ReviewCard,
		rubric domain.Rubric,
		scores []domain.CriterionScore,
		now time.Time,
	) (domain.DomainStatus, domain.MiniOSCEResult, error)

	// Reopen is the out-of-band admin path from completed back to in-progress.
	Reopen(status domain.DomainStatus, reason string, now time.Time) (domain.DomainStatus, error)

	// StabilityMet reports whether the cards satisfy the stability criterion.
	StabilityMet(cards []domain.ReviewCard) bool
}

type defaultEvaluator struct {
	params *Params
}

// NewEvaluator creates a gate evaluator.
func NewEvaluator(params *Params) (Evaluator, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &defaultEvaluator{params: params}, nil
}

func (e *defaultEvaluator) RecordActivity(status domain.DomainStatus, now time.Time) domain.DomainStatus {
	next := copyStatus(status)
	if next.Status == domain.GateNotStarted || next.Status == "" {
		started := now.UTC()
		next.Status = domain.GateInProgress
		next.StartedAt = &started
	}
	return next
}

func (e *defaultEvaluator) StabilityMet(cards []domain.ReviewCard) bool {
	var sum float64
	n := 0
	for _, c := range cards {
		if c.Retired {
			continue
		}
		if c.Stability < e.params.StabilityFloor {
			return false
		}
		sum += c.Stability
		n++
	}
	if n < e.params.MinCards {
		return false
	}
	return sum/float64(n) >= e.params.MeanStability
}

func (e *defaultEvaluator) CheckStability(
	status domain.DomainStatus,
	cards []domain.ReviewCard,
	now time.Time,
) (domain.DomainStatus, bool) {
	next := copyStatus(status)
	if next.Status == domain.GateCompleted {
		return next, false
	}

	// The flag may flip back to false; gate-pending itself never regresses.
	next.GateProgress.SRSStabilityMet = e.StabilityMet(cards)

	from := next.Status
	switch next.Status {
	case domain.GateInProgress:
		if next.GateProgress.SRSStabilityMet {
			next.Status = domain.GatePending
		}
	case domain.GatePending:
		e.completeIfEarned(&next, now)
	}
	return next, next.Status != from
}

func (e *defaultEvaluator) SubmitMiniOSCE(
	status domain.DomainStatus,
	cards []domain.ReviewCard,
	rubric domain.Rubric,
	scores []domain.CriterionScore,
	now time.Time,
) (domain.DomainStatus, domain.MiniOSCEResult, error) {
	if status.Status != domain.GatePending {
		return status, domain.MiniOSCEResult{}, &domain.StateConflictError{
			Entity: "domain " + status.Domain,
			From:   string(status.Status),
			Action: "submit a Mini-OSCE for",
		}
	}

	result, err := ScoreMiniOSCE(rubric, scores, e.params.passingScoreFor(rubric), e.params.MaxCriterionScore)
	if err != nil {
		return status, domain.MiniOSCEResult{}, err
	}
	result.SubmittedAt = now.UTC()

	next := copyStatus(status)
	next.Attempts = append(next.Attempts, result)
	score := result.Percentage
	next.GateProgress.MiniOSCEScore = &score
	if result.Passed {
		next.GateProgress.MiniOSCEPassed = true
	}
	next.GateProgress.SRSStabilityMet = e.StabilityMet(cards)
	e.completeIfEarned(&next, now)

	return next, result, nil
}

func (e *defaultEvaluator) Reopen(status domain.DomainStatus, reason string, now time.Time) (domain.DomainStatus, error) {
	if status.Status != domain.GateCompleted {
		return status, &domain.StateConflictError{
			Entity: "domain " + status.Domain,
			From:   string(status.Status),
			Action: "reopen",
		}
	}
	if reason == "" {
		return status, domain.NewValidationError("reason", "is required to reopen a domain", nil)
	}

	next := copyStatus(status)
	reopened := now.UTC()
	next.Status = domain.GateInProgress
	next.GateProgress = domain.GateProgress{}
	next.CompletedAt = nil
	next.ReopenedAt = &reopened
	next.ReopenReason = reason
	return next, nil
}

// completeIfEarned is the only place a domain becomes completed.
func (e *defaultEvaluator) completeIfEarned(status *domain.DomainStatus, now time.Time) {
	if status.Status != domain.GatePending {
		return
	}
	if status.GateProgress.MiniOSCEPassed && status.GateProgress.SRSStabilityMet {
		completed := now.UTC()
		status.Status = domain.GateCompleted
		status.CompletedAt = &completed
	}
}

func copyStatus(s domain.DomainStatus) domain.DomainStatus {
	next := s
	next.Attempts = append([]domain.MiniOSCEResult(nil), s.Attempts...)
	if s.GateProgress.MiniOSCEScore != nil {
		score := *s.GateProgress.MiniOSCEScore
		next.GateProgress.MiniOSCEScore = &score
	}
	return next
}
