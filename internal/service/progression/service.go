// Package progression orchestrates the progression engine for one learner at
// a time: it loads the learner's profile, runs the scheduler, band controller,
// gate evaluator and recovery monitor over a copy of it, and saves the result.
package progression

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/domain/srs"
)

// Service is the progression engine's entry point. Every method takes the
// learner id explicitly; the service holds no per-learner state.
type Service interface {
	// GetProfile returns the learner's profile. A learner without a stored
	// profile gets a fresh one at the start band; it is not saved.
	GetProfile(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error)

	// CompleteSession applies a finished session: every graded item is
	// scheduled, then the band, the touched domain gates and the recovery
	// state are re-evaluated. The whole outcome is applied or nothing is.
	//
	// Returns:
	//   - (*SessionResult, nil): the applied changes; Duplicate is set when the
	//     session id was applied before and nothing changed
	//   - (nil, error): a *domain.ValidationError, *domain.OwnershipError or
	//     *domain.NotFoundError for bad input, a *domain.PersistenceError when
	//     the profile could not be read or written
	CompleteSession(ctx context.Context, learnerID uuid.UUID, outcome domain.SessionOutcome) (*SessionResult, error)

	// GetDailyMix returns today's mix, generating and caching a new one when
	// the cached mix is stale.
	GetDailyMix(ctx context.Context, learnerID uuid.UUID) (*domain.DailyMix, error)

	// SubmitMiniOSCE scores a Mini-OSCE attempt against the domain's rubric.
	// Only allowed while the domain is gate-pending.
	SubmitMiniOSCE(
		ctx context.Context,
		learnerID uuid.UUID,
		domainName string,
		scores []domain.CriterionScore,
	) (*OSCEResult, error)

	// RequestRecovery turns recovery mode on at the learner's request.
	RequestRecovery(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error)

	// ExitRecovery turns recovery mode off at the learner's request.
	ExitRecovery(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error)

	// ResetCard makes one of the learner's cards due now with the minimum interval.
	ResetCard(ctx context.Context, learnerID uuid.UUID, cardID uuid.UUID) (*domain.ReviewCard, error)

	// ReopenDomain moves a completed domain back to in-progress. Admin only.
	ReopenDomain(ctx context.Context, learnerID uuid.UUID, domainName, reason string) (*domain.DomainStatus, error)

	// UpdatePreferences changes the learner's primary domain or time zone.
	// Both affect mix planning, so the cached mix is invalidated.
	UpdatePreferences(ctx context.Context, learnerID uuid.UUID, prefs Preferences) (*domain.Profile, error)
}

// SessionResult reports what a completed session changed.
type SessionResult struct {
	SessionID string `json:"session_id"`
	// Duplicate is set when the session was already applied.
	Duplicate bool               `json:"duplicate"`
	Reviews   []srs.ReviewResult `json:"reviews"`
	// Skipped lists content ids whose content has been retired.
	Skipped          []string               `json:"skipped,omitempty"`
	Band             domain.BandStatus      `json:"band"`
	BandTransition   *domain.BandTransition `json:"band_transition,omitempty"`
	Recovery         domain.RecoveryState   `json:"recovery"`
	RecoveryChanged  bool                   `json:"recovery_changed"`
	Domains          []domain.DomainStatus  `json:"domains"`
	CompletedDomains []string               `json:"completed_domains,omitempty"`
	MixInvalidated   bool                   `json:"mix_invalidated"`
}

// OSCEResult is a scored attempt and the domain status it produced.
type OSCEResult struct {
	Result domain.MiniOSCEResult `json:"result"`
	Status domain.DomainStatus   `json:"status"`
}

// Preferences carries optional profile settings. Nil fields are left unchanged.
type Preferences struct {
	PrimaryDomain *string `json:"primary_domain,omitempty"`
	TimeZone      *string `json:"time_zone,omitempty"`
}

// Operation names used in ServiceError.
const (
	OpGetProfile        = "get_profile"
	OpCompleteSession   = "complete_session"
	OpGetDailyMix       = "get_daily_mix"
	OpSubmitMiniOSCE    = "submit_mini_osce"
	OpRequestRecovery   = "request_recovery"
	OpExitRecovery      = "exit_recovery"
	OpResetCard         = "reset_card"
	OpReopenDomain      = "reopen_domain"
	OpUpdatePreferences = "update_preferences"
)

// ServiceError wraps errors from the progression service with the failing
// operation. The domain sentinels stay reachable through errors.Is.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "complete_session")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError returns a ServiceError for op.
func NewServiceError(op, message string, err error) *ServiceError {
	return &ServiceError{Operation: op, Message: message, Err: err}
}
