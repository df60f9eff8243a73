package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/domain/srs"
	"github.com/phrazzld/medscry/internal/events"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/store"
)

// performanceWindow bounds the per-domain samples kept for weak-domain detection.
const performanceWindow = 10

// CompleteSession implements Service.CompleteSession.
func (s *serviceImpl) CompleteSession(
	ctx context.Context,
	learnerID uuid.UUID,
	outcome domain.SessionOutcome,
) (*SessionResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if learnerID == uuid.Nil {
		return nil, NewServiceError(OpCompleteSession, "invalid learner",
			domain.NewValidationError("learner_id", "cannot be empty", nil))
	}
	if err := s.validateOutcome(outcome); err != nil {
		s.logFailure(ctx, OpCompleteSession, learnerID, err)
		return nil, NewServiceError(OpCompleteSession, "invalid session outcome", err)
	}

	// Catalog reads happen before the learner lock is taken.
	content, err := s.resolveContent(ctx, outcome.ItemsGraded)
	if err != nil {
		s.logFailure(ctx, OpCompleteSession, learnerID, err)
		return nil, NewServiceError(OpCompleteSession, "failed to read content", err)
	}

	var result *SessionResult
	_, err = s.update(ctx, learnerID, func(p *domain.Profile, c *change) error {
		r, err := s.applySession(p, c, outcome, content)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		s.logFailure(ctx, OpCompleteSession, learnerID, err)
		return nil, NewServiceError(OpCompleteSession, "failed to apply session", err)
	}

	log.Info("session applied",
		slog.String("learner_id", learnerID.String()),
		slog.String("session_id", outcome.SessionID),
		slog.Bool("duplicate", result.Duplicate),
		slog.Float64("client_accuracy", outcome.Accuracy),
		slog.Int("xp_earned", outcome.XPEarned),
		slog.Int("reviews", len(result.Reviews)),
		slog.String("band", string(result.Band.CurrentBand)),
		slog.Bool("recovery", result.Recovery.Active))
	return result, nil
}

// validateOutcome checks the struct tags of the outcome.
func (s *serviceImpl) validateOutcome(outcome domain.SessionOutcome) error {
	err := s.validate.Struct(outcome)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Namespace(), fmt.Sprintf("failed %q validation", fe.Tag()), err)
	}
	return domain.NewValidationError("session", "is invalid", err)
}

// resolveContent looks up every distinct content id of the session. Ids the
// catalog no longer knows are left out of the map.
func (s *serviceImpl) resolveContent(
	ctx context.Context,
	items []domain.GradedItem,
) (map[string]domain.ContentItem, error) {
	content := make(map[string]domain.ContentItem, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.ContentID] {
			continue
		}
		seen[item.ContentID] = true

		c, err := s.catalog.GetItemByID(ctx, item.ContentID)
		if err != nil {
			if store.IsNotFoundError(err) {
				continue
			}
			return nil, err
		}
		content[item.ContentID] = c
	}
	return content, nil
}

// applySession runs the session through the engine in order: scheduler, band
// controller, gate evaluator, recovery monitor.
func (s *serviceImpl) applySession(
	p *domain.Profile,
	c *change,
	outcome domain.SessionOutcome,
	content map[string]domain.ContentItem,
) (*SessionResult, error) {
	res := &SessionResult{SessionID: outcome.SessionID}
	if p.HasProcessedSession(outcome.SessionID) {
		res.Duplicate = true
		s.summarize(res, p, nil)
		return res, nil
	}

	now := c.now
	params := s.engine.Scheduler.Params()

	touched := map[string]bool{outcome.Domain: true}
	perDomain := make(map[string]*domain.PerformanceSample)
	var day domain.DayOutcome

	for i, item := range outcome.ItemsGraded {
		card, err := cardFor(p, item, content, now)
		if err != nil {
			return nil, indexed(i, err)
		}

		ci, ok := content[item.ContentID]
		if !ok {
			// Retired content: the card stays but is no longer scheduled.
			card.Retired = true
			p.Cards[card.ID] = card
			res.Skipped = append(res.Skipped, item.ContentID)
			continue
		}

		grade, err := srs.GradeFor(ci, item, params)
		if err != nil {
			return nil, indexed(i, err)
		}
		next, review, err := s.engine.Scheduler.Review(card, p.LearnerID, grade, item.TimeSpentSeconds, item.HintsUsed, now)
		if err != nil {
			return nil, indexed(i, err)
		}
		p.Cards[next.ID] = next
		res.Reviews = append(res.Reviews, review)

		touched[next.Domain] = true
		sample, ok := perDomain[next.Domain]
		if !ok {
			sample = &domain.PerformanceSample{Timestamp: now}
			perDomain[next.Domain] = sample
		}
		sample.Total++
		day.Total++
		day.HintsUsed += item.HintsUsed
		if review.Passed {
			sample.Correct++
			day.Correct++
		}
	}

	p.MarkSessionProcessed(outcome.SessionID)
	c.dirty = true
	if day.Total == 0 {
		s.summarize(res, p, nil)
		return res, nil
	}

	next, transition, err := s.engine.Band.Evaluate(p.Band, domain.PerformanceSample{
		Correct:   day.Correct,
		Total:     day.Total,
		Timestamp: now,
	})
	if err != nil {
		return nil, err
	}
	p.Band = next
	if transition != nil {
		res.BandTransition = transition
		c.emit(events.BandChanged, events.BandChangedPayload{Transition: *transition})
		c.invalidateMix(p, "band changed")
	}

	domains := make([]string, 0, len(touched))
	for d := range touched {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		before := p.DomainStatus(d)
		status := s.engine.Gate.RecordActivity(before, now)
		status, _ = s.engine.Gate.CheckStability(status, p.CardsInDomain(d), now)
		p.Domains[d] = status
		if status.Status == domain.GateCompleted && before.Status != domain.GateCompleted {
			res.CompletedDomains = append(res.CompletedDomains, d)
			c.emit(events.DomainCompleted, events.DomainCompletedPayload{Domain: d})
			c.invalidateMix(p, "domain completed")
		}
	}

	for d, sample := range perDomain {
		perf := p.Performance[d]
		perf.Recent = append(perf.Recent, *sample)
		if over := len(perf.Recent) - performanceWindow; over > 0 {
			perf.Recent = append([]domain.PerformanceSample(nil), perf.Recent[over:]...)
		}
		perf.LastTouched = now.UTC()
		p.Performance[d] = perf
	}

	day.Day = p.Day(now)
	recoveryState, changed, err := s.engine.Recovery.Observe(p.Recovery, day, now)
	if err != nil {
		return nil, err
	}
	p.Recovery = recoveryState
	if changed {
		res.RecoveryChanged = true
		c.emit(events.RecoveryChanged, events.RecoveryChangedPayload{
			Active: recoveryState.Active,
			Reason: recoveryState.Reason,
		})
		if recoveryState.Active {
			c.invalidateMix(p, "recovery entered")
		} else {
			c.invalidateMix(p, "recovery exited")
		}
	}

	s.summarize(res, p, domains)
	res.MixInvalidated = p.Mix != nil && p.Mix.Invalidated
	return res, nil
}

// summarize copies the profile state a caller sees after the session.
func (s *serviceImpl) summarize(res *SessionResult, p *domain.Profile, domains []string) {
	res.Band = p.Band
	res.Recovery = p.Recovery
	for _, d := range domains {
		res.Domains = append(res.Domains, p.DomainStatus(d))
	}
}

// cardFor returns the learner's card for a graded item, creating one the
// first time a content item is reviewed.
func cardFor(
	p *domain.Profile,
	item domain.GradedItem,
	content map[string]domain.ContentItem,
	now time.Time,
) (domain.ReviewCard, error) {
	if item.CardID != "" {
		id, err := uuid.Parse(item.CardID)
		if err != nil {
			return domain.ReviewCard{}, domain.NewValidationError("card_id", "is not a uuid", err)
		}
		card, ok := p.Cards[id]
		if !ok {
			return domain.ReviewCard{}, &domain.NotFoundError{Entity: "card", ID: item.CardID}
		}
		if card.ContentID != item.ContentID {
			return domain.ReviewCard{}, domain.NewValidationError("content_id", "does not match the card", nil)
		}
		return card, nil
	}

	if card, ok := p.CardForContent(item.ContentID); ok {
		return card, nil
	}
	ci, ok := content[item.ContentID]
	if !ok {
		return domain.ReviewCard{}, &domain.NotFoundError{Entity: "content", ID: item.ContentID}
	}
	return domain.NewReviewCard(p.LearnerID, ci, now)
}

// indexed prefixes validation errors with the item position.
func indexed(i int, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		field := fmt.Sprintf("items_graded[%d]", i)
		if verr.Field != "" {
			field += "." + verr.Field
		}
		return domain.NewValidationError(field, verr.Message, verr.Err)
	}
	return err
}
