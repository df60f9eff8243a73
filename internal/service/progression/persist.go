package progression

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/domain/mix"
	"github.com/phrazzld/medscry/internal/events"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/redact"
	"github.com/phrazzld/medscry/internal/store"
	"github.com/sethvargo/go-retry"
)

// change collects the side effects of one attempt at an update.
type change struct {
	learnerID uuid.UUID
	now       time.Time
	dirty     bool
	events    []pendingEvent
}

type pendingEvent struct {
	eventType events.EventType
	payload   interface{}
}

func (c *change) emit(eventType events.EventType, payload interface{}) {
	c.events = append(c.events, pendingEvent{eventType: eventType, payload: payload})
}

// invalidateMix marks the cached mix stale and records why.
func (c *change) invalidateMix(profile *domain.Profile, reason string) bool {
	if !mix.Invalidate(profile) {
		return false
	}
	c.emit(events.MixInvalidated, events.MixInvalidatedPayload{Reason: reason})
	return true
}

// mutation computes on a copy of the profile. It returns an error to abort
// without saving and sets c.dirty when the copy must be persisted.
type mutation func(profile *domain.Profile, c *change) error

func (s *serviceImpl) backoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(s.opts.MaxRetries), retry.NewExponential(s.opts.BaseDelay))
}

// newProfile is the profile of a learner seen for the first time.
func (s *serviceImpl) newProfile(learnerID uuid.UUID, now time.Time) (*domain.Profile, error) {
	return domain.NewProfile(learnerID, s.engine.StartBand, now)
}

// loadProfile reads the learner's profile with retries. A missing or corrupt
// profile yields a fresh one.
func (s *serviceImpl) loadProfile(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error) {
	var profile *domain.Profile
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		p, err := s.profiles.Load(ctx, learnerID)
		if err != nil {
			return retry.RetryableError(err)
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Err: err}
	}
	if profile == nil {
		return s.newProfile(learnerID, s.clock())
	}
	return profile, nil
}

// update runs fn under the learner lock on a copy of the stored profile and
// saves the copy when fn marks it dirty. A failed save reloads the profile
// and runs fn again, so fn must derive everything from the profile it gets.
// Events are emitted only after the save succeeded.
func (s *serviceImpl) update(ctx context.Context, learnerID uuid.UUID, fn mutation) (*domain.Profile, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	unlock, err := s.locker.Lock(ctx, learnerID.String())
	if err != nil {
		return nil, &domain.PersistenceError{Op: "lock", Err: err}
	}
	defer unlock()

	var (
		result  *domain.Profile
		applied *change
		attempt int
	)
	err = retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		stored, err := s.profiles.Load(ctx, learnerID)
		if err != nil {
			return retry.RetryableError(&domain.PersistenceError{Op: "load", Err: err})
		}

		now := s.clock()
		work := stored.Clone()
		if work == nil {
			if work, err = s.newProfile(learnerID, now); err != nil {
				return err
			}
		}

		c := &change{learnerID: learnerID, now: now}
		if err := fn(work, c); err != nil {
			return err
		}
		if c.dirty {
			work.UpdatedAt = now.UTC()
			if err := s.profiles.Save(ctx, work); err != nil {
				perr := &domain.PersistenceError{Op: "save", Err: err}
				if errors.Is(err, store.ErrInvalidEntity) {
					return perr
				}
				log.Warn("profile save failed, retrying",
					slog.String("learner_id", learnerID.String()),
					slog.Int("attempt", attempt),
					redact.ErrorAttr(err))
				return retry.RetryableError(perr)
			}
		}

		result = work
		applied = c
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPersistence) &&
			(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			err = &domain.PersistenceError{Op: "save", Err: err}
		}
		return nil, err
	}

	s.publish(ctx, applied)
	return result, nil
}

// publish emits the events of an applied change. Emission failures are
// logged; the profile is already saved.
func (s *serviceImpl) publish(ctx context.Context, c *change) {
	if c == nil || len(c.events) == 0 {
		return
	}
	log := logger.FromContextOrDefault(ctx, s.logger)
	for _, pe := range c.events {
		event, err := events.NewProgressionEvent(pe.eventType, c.learnerID, pe.payload, c.now)
		if err == nil {
			err = s.emitter.EmitEvent(ctx, event)
		}
		if err != nil {
			log.Error("failed to emit progression event",
				slog.String("learner_id", c.learnerID.String()),
				slog.String("event_type", string(pe.eventType)),
				redact.ErrorAttr(err))
		}
	}
}
