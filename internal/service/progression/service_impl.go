package progression

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/config"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/domain/mix"
	"github.com/phrazzld/medscry/internal/events"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/redact"
	"github.com/phrazzld/medscry/internal/store"
	"golang.org/x/sync/singleflight"
)

// Verify interface compliance at compile time
var _ Service = (*serviceImpl)(nil)

// Options tunes persistence behavior.
type Options struct {
	// MaxRetries bounds the retries of a failed profile load or save.
	MaxRetries int
	// BaseDelay is the first retry delay; later delays double.
	BaseDelay time.Duration
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// OptionsFromConfig converts the persistence configuration.
func OptionsFromConfig(cfg config.PersistenceConfig) Options {
	return Options{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseDelay}
}

const minBaseDelay = time.Millisecond

type serviceImpl struct {
	profiles store.ProfileStore
	catalog  store.ContentCatalog
	locker   store.Locker
	engine   *Engine
	emitter  events.EventEmitter
	validate *validator.Validate
	mixes    singleflight.Group
	opts     Options
	clock    func() time.Time
	logger   *slog.Logger
}

// NewService creates the progression service. A nil locker serializes
// learners in-process and a nil emitter logs events.
func NewService(
	profiles store.ProfileStore,
	catalog store.ContentCatalog,
	locker store.Locker,
	engine *Engine,
	emitter events.EventEmitter,
	opts Options,
	logger *slog.Logger,
) Service {
	if profiles == nil {
		panic("profiles cannot be nil")
	}
	if catalog == nil {
		panic("catalog cannot be nil")
	}
	if engine == nil {
		panic("engine cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "progression_service"))

	if locker == nil {
		locker = store.NewKeyedLocker()
	}
	if emitter == nil {
		e := events.NewInMemoryEventEmitter(logger)
		e.RegisterHandler(events.LogHandler{Logger: logger})
		emitter = e
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay < minBaseDelay {
		opts.BaseDelay = minBaseDelay
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &serviceImpl{
		profiles: profiles,
		catalog:  catalog,
		locker:   locker,
		engine:   engine,
		emitter:  emitter,
		validate: validator.New(),
		opts:     opts,
		clock:    clock,
		logger:   logger,
	}
}

// GetProfile implements Service.GetProfile.
func (s *serviceImpl) GetProfile(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error) {
	if learnerID == uuid.Nil {
		return nil, NewServiceError(OpGetProfile, "invalid learner", domain.NewValidationError("learner_id", "cannot be empty", nil))
	}
	profile, err := s.loadProfile(ctx, learnerID)
	if err != nil {
		s.logFailure(ctx, OpGetProfile, learnerID, err)
		return nil, NewServiceError(OpGetProfile, "failed to load profile", err)
	}
	return profile, nil
}

// GetDailyMix implements Service.GetDailyMix. Concurrent calls for the same
// learner share one generation.
func (s *serviceImpl) GetDailyMix(ctx context.Context, learnerID uuid.UUID) (*domain.DailyMix, error) {
	if learnerID == uuid.Nil {
		return nil, NewServiceError(OpGetDailyMix, "invalid learner", domain.NewValidationError("learner_id", "cannot be empty", nil))
	}

	// One caller going away must not fail the others waiting on the same key.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.mixes.Do(learnerID.String(), func() (interface{}, error) {
		return s.dailyMix(shared, learnerID)
	})
	if err != nil {
		s.logFailure(ctx, OpGetDailyMix, learnerID, err)
		return nil, NewServiceError(OpGetDailyMix, "failed to build daily mix", err)
	}
	m := v.(domain.DailyMix)
	return &m, nil
}

func (s *serviceImpl) dailyMix(ctx context.Context, learnerID uuid.UUID) (domain.DailyMix, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	profile, err := s.loadProfile(ctx, learnerID)
	if err != nil {
		return domain.DailyMix{}, err
	}
	if !mix.IsStale(profile.Mix, profile, s.clock()) {
		return *profile.Mix, nil
	}

	var generated domain.DailyMix
	_, err = s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		if !mix.IsStale(p.Mix, p, c.now) {
			generated = *p.Mix
			return nil
		}
		m, err := s.engine.Mix.Generate(ctx, p, s.catalog, c.now)
		if err != nil {
			return err
		}
		p.Mix = &m
		c.dirty = true
		generated = m
		return nil
	})
	if err == nil {
		return generated, nil
	}
	if !errors.Is(err, domain.ErrPersistence) {
		return domain.DailyMix{}, err
	}

	// The mix is disposable: serve it even if it could not be cached.
	log.Warn("serving daily mix that could not be cached",
		slog.String("learner_id", learnerID.String()),
		redact.ErrorAttr(err))
	return s.engine.Mix.Generate(ctx, profile, s.catalog, s.clock())
}

// SubmitMiniOSCE implements Service.SubmitMiniOSCE.
func (s *serviceImpl) SubmitMiniOSCE(
	ctx context.Context,
	learnerID uuid.UUID,
	domainName string,
	scores []domain.CriterionScore,
) (*OSCEResult, error) {
	domainName = strings.TrimSpace(domainName)
	if learnerID == uuid.Nil || domainName == "" {
		return nil, NewServiceError(OpSubmitMiniOSCE, "invalid request",
			domain.NewValidationError("domain", "learner and domain are required", nil))
	}

	rubric, err := s.catalog.GetRubric(ctx, domainName)
	if err != nil {
		if store.IsNotFoundError(err) {
			err = &domain.NotFoundError{Entity: "rubric", ID: domainName}
		}
		s.logFailure(ctx, OpSubmitMiniOSCE, learnerID, err)
		return nil, NewServiceError(OpSubmitMiniOSCE, "failed to load rubric", err)
	}

	var out OSCEResult
	_, err = s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		status := p.DomainStatus(domainName)
		next, result, err := s.engine.Gate.SubmitMiniOSCE(status, p.CardsInDomain(domainName), rubric, scores, c.now)
		if err != nil {
			return err
		}
		p.Domains[domainName] = next
		c.dirty = true
		if next.Status == domain.GateCompleted && status.Status != domain.GateCompleted {
			c.emit(events.DomainCompleted, events.DomainCompletedPayload{Domain: domainName})
			c.invalidateMix(p, "domain completed")
		}
		out = OSCEResult{Result: result, Status: next}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, OpSubmitMiniOSCE, learnerID, err)
		return nil, NewServiceError(OpSubmitMiniOSCE, "failed to submit mini-osce", err)
	}
	return &out, nil
}

// RequestRecovery implements Service.RequestRecovery.
func (s *serviceImpl) RequestRecovery(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error) {
	profile, err := s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		next, changed := s.engine.Recovery.Request(p.Recovery, p.Day(c.now), c.now)
		if !changed {
			return nil
		}
		p.Recovery = next
		c.dirty = true
		c.emit(events.RecoveryChanged, events.RecoveryChangedPayload{Active: true, Reason: next.Reason})
		c.invalidateMix(p, "recovery entered")
		return nil
	})
	if err != nil {
		s.logFailure(ctx, OpRequestRecovery, learnerID, err)
		return nil, NewServiceError(OpRequestRecovery, "failed to enter recovery", err)
	}
	state := profile.Recovery
	return &state, nil
}

// ExitRecovery implements Service.ExitRecovery.
func (s *serviceImpl) ExitRecovery(ctx context.Context, learnerID uuid.UUID) (*domain.RecoveryState, error) {
	profile, err := s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		next, changed := s.engine.Recovery.Exit(p.Recovery)
		if !changed {
			return nil
		}
		p.Recovery = next
		c.dirty = true
		c.emit(events.RecoveryChanged, events.RecoveryChangedPayload{Active: false})
		c.invalidateMix(p, "recovery exited")
		return nil
	})
	if err != nil {
		s.logFailure(ctx, OpExitRecovery, learnerID, err)
		return nil, NewServiceError(OpExitRecovery, "failed to exit recovery", err)
	}
	state := profile.Recovery
	return &state, nil
}

// ResetCard implements Service.ResetCard.
func (s *serviceImpl) ResetCard(ctx context.Context, learnerID uuid.UUID, cardID uuid.UUID) (*domain.ReviewCard, error) {
	var reset domain.ReviewCard
	_, err := s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		card, ok := p.Cards[cardID]
		if !ok {
			return &domain.NotFoundError{Entity: "card", ID: cardID.String()}
		}
		next, err := s.engine.Scheduler.Reset(card, learnerID, c.now)
		if err != nil {
			return err
		}
		p.Cards[cardID] = next
		c.dirty = true
		c.invalidateMix(p, "card reset")
		reset = next
		return nil
	})
	if err != nil {
		s.logFailure(ctx, OpResetCard, learnerID, err)
		return nil, NewServiceError(OpResetCard, "failed to reset card", err)
	}
	return &reset, nil
}

// ReopenDomain implements Service.ReopenDomain.
func (s *serviceImpl) ReopenDomain(
	ctx context.Context,
	learnerID uuid.UUID,
	domainName, reason string,
) (*domain.DomainStatus, error) {
	var status domain.DomainStatus
	_, err := s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		next, err := s.engine.Gate.Reopen(p.DomainStatus(domainName), reason, c.now)
		if err != nil {
			return err
		}
		p.Domains[domainName] = next
		c.dirty = true
		c.invalidateMix(p, "domain reopened")
		status = next
		return nil
	})
	if err != nil {
		s.logFailure(ctx, OpReopenDomain, learnerID, err)
		return nil, NewServiceError(OpReopenDomain, "failed to reopen domain", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("domain reopened",
		slog.String("learner_id", learnerID.String()),
		slog.String("domain", domainName))
	return &status, nil
}

// UpdatePreferences implements Service.UpdatePreferences.
func (s *serviceImpl) UpdatePreferences(ctx context.Context, learnerID uuid.UUID, prefs Preferences) (*domain.Profile, error) {
	if prefs.TimeZone != nil && *prefs.TimeZone != "" {
		if _, err := time.LoadLocation(*prefs.TimeZone); err != nil {
			return nil, NewServiceError(OpUpdatePreferences, "invalid preferences",
				domain.NewValidationError("time_zone", "is not a known time zone", err))
		}
	}
	if prefs.PrimaryDomain != nil && *prefs.PrimaryDomain != "" {
		if err := s.checkDomain(ctx, *prefs.PrimaryDomain); err != nil {
			return nil, NewServiceError(OpUpdatePreferences, "invalid preferences", err)
		}
	}

	profile, err := s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		if prefs.TimeZone != nil && *prefs.TimeZone != p.TimeZone {
			p.TimeZone = *prefs.TimeZone
			c.dirty = true
		}
		if prefs.PrimaryDomain != nil && *prefs.PrimaryDomain != p.PrimaryDomain {
			p.PrimaryDomain = *prefs.PrimaryDomain
			c.dirty = true
		}
		if c.dirty {
			c.invalidateMix(p, "preferences changed")
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, OpUpdatePreferences, learnerID, err)
		return nil, NewServiceError(OpUpdatePreferences, "failed to update preferences", err)
	}
	return profile, nil
}

func (s *serviceImpl) checkDomain(ctx context.Context, name string) error {
	domains, err := s.catalog.Domains(ctx)
	if err != nil {
		return err
	}
	for _, d := range domains {
		if d == name {
			return nil
		}
	}
	return &domain.NotFoundError{Entity: "domain", ID: name}
}

// logFailure logs at warn for caller mistakes and error for everything else.
func (s *serviceImpl) logFailure(ctx context.Context, op string, learnerID uuid.UUID, err error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	attrs := []any{
		slog.String("operation", op),
		slog.String("learner_id", learnerID.String()),
		redact.ErrorAttr(err),
	}
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrOwnership),
		errors.Is(err, domain.ErrStateConflict):
		log.Warn("progression request rejected", attrs...)
	default:
		log.Error("progression operation failed", attrs...)
	}
}
