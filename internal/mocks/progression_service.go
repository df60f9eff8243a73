package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/service/progression"
)

var _ progression.Service = (*MockProgressionService)(nil)

// Call records one invocation of a MockProgressionService method.
type Call struct {
	Method    string
	LearnerID uuid.UUID
	Args      []interface{}
}

// MockProgressionService implements progression.Service for testing.
type MockProgressionService struct {
	GetProfileFn        func(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error)
	CompleteSessionFn   func(ctx context.Context, learnerID uuid.UUID, outcome domain.SessionOutcome) (*progression.SessionResult, error)
	GetDailyMixFn       func(ctx context.Context, learnerID uuid.UUID) (*domain.DailyMix, error)
	SubmitMiniOSCEFn    func(ctx context.Context, learnerID uuid.UUID, domainName string, scores []domain.CriterionScore) (*progression.OSCEResult, error)
	RequestRecoveryFn   func(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error)
	ExitRecoveryFn      func(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error)
	ResetCardFn         func(ctx context.Context, learnerID uuid.UUID, cardID uuid.UUID) (*domain.ReviewCard, error)
	ReopenDomainFn      func(ctx context.Context, learnerID uuid.UUID, domainName, reason string) (*domain.DomainStatus, error)
	UpdatePreferencesFn func(ctx context.Context, learnerID uuid.UUID, prefs progression.Preferences) (*domain.Profile, error)

	// Err is returned by methods without a custom function.
	Err error

	mu    sync.Mutex
	calls []Call
}

func (m *MockProgressionService) record(method string, learnerID uuid.UUID, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, LearnerID: learnerID, Args: args})
}

// Calls returns every recorded call in order.
func (m *MockProgressionService) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times method was called.
func (m *MockProgressionService) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// GetProfile implements progression.Service.
func (m *MockProgressionService) GetProfile(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error) {
	m.record("GetProfile", learnerID)
	if m.GetProfileFn != nil {
		return m.GetProfileFn(ctx, learnerID)
	}
	return nil, m.Err
}

// CompleteSession implements progression.Service.
func (m *MockProgressionService) CompleteSession(
	ctx context.Context,
	learnerID uuid.UUID,
	outcome domain.SessionOutcome,
) (*progression.SessionResult, error) {
	m.record("CompleteSession", learnerID, outcome)
	if m.CompleteSessionFn != nil {
		return m.CompleteSessionFn(ctx, learnerID, outcome)
	}
	return nil, m.Err
}

// GetDailyMix implements progression.Service.
func (m *MockProgressionService) GetDailyMix(ctx context.Context, learnerID uuid.UUID) (*domain.DailyMix, error) {
	m.record("GetDailyMix", learnerID)
	if m.GetDailyMixFn != nil {
		return m.GetDailyMixFn(ctx, learnerID)
	}
	return nil, m.Err
}

// SubmitMiniOSCE implements progression.Service.
func (m *MockProgressionService) SubmitMiniOSCE(
	ctx context.Context,
	learnerID uuid.UUID,
	domainName string,
	scores []domain.CriterionScore,
) (*progression.OSCEResult, error) {
	m.record("SubmitMiniOSCE", learnerID, domainName, scores)
	if m.SubmitMiniOSCEFn != nil {
		return m.SubmitMiniOSCEFn(ctx, learnerID, domainName, scores)
	}
	return nil, m.Err
}

// RequestRecovery implements progression.Service.
func (m *MockProgressionService) RequestRecovery(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error) {
	m.record("RequestRecovery", learnerID)
	if m.RequestRecoveryFn != nil {
		return m.RequestRecoveryFn(ctx, learnerID)
	}
	return nil, m.Err
}

// ExitRecovery implements progression.Service.
func (m *MockProgressionService) ExitRecovery(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error) {
	m.record("ExitRecovery", learnerID)
	if m.ExitRecoveryFn != nil {
		return m.ExitRecoveryFn(ctx, learnerID)
	}
	return nil, m.Err
}

// ResetCard implements progression.Service.
func (m *MockProgressionService) ResetCard(
	ctx context.Context,
	learnerID uuid.UUID,
	cardID uuid.UUID,
) (*domain.ReviewCard, error) {
	m.record("ResetCard", learnerID, cardID)
	if m.ResetCardFn != nil {
		return m.ResetCardFn(ctx, learnerID, cardID)
	}
	return nil, m.Err
}

// ReopenDomain implements progression.Service.
func (m *MockProgressionService) ReopenDomain(
	ctx context.Context,
	learnerID uuid.UUID,
	domainName, reason string,
) (*domain.DomainStatus, error) {
	m.record("ReopenDomain", learnerID, domainName, reason)
	if m.ReopenDomainFn != nil {
		return m.ReopenDomainFn(ctx, learnerID, domainName, reason)
	}
	return nil, m.Err
}

// UpdatePreferences implements progression.Service.
func (m *MockProgressionService) UpdatePreferences(
	ctx context.Context,
	learnerID uuid.UUID,
	prefs progression.Preferences,
) (*domain.Profile, error) {
	m.record("UpdatePreferences", learnerID, prefs)
	if m.UpdatePreferencesFn != nil {
		return m.UpdatePreferencesFn(ctx, learnerID, prefs)
	}
	return nil, m.Err
}
