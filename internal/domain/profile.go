package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxProcessedSessions bounds the session dedupe log kept on a profile.
const MaxProcessedSessions = 50

// Profile is the learner's progression state. It exclusively owns the review
// cards, band status, domain statuses and recovery state. Mix is a cached,
// regenerable plan for the current day.
type Profile struct {
	LearnerID     uuid.UUID `json:"learner_id"`
	PrimaryDomain string    `json:"primary_domain,omitempty"`
	TimeZone      string    `json:"time_zone,omitempty"`

	Cards       map[uuid.UUID]ReviewCard     `json:"cards"`
	Band        BandStatus                   `json:"band"`
	Domains     map[string]DomainStatus      `json:"domains"`
	Recovery    RecoveryState                `json:"recovery"`
	Performance map[string]DomainPerformance `json:"performance"`
	Mix         *DailyMix                    `json:"mix,omitempty"`

	ProcessedSessions []string `json:"processed_sessions,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile creates an empty profile starting at the given band.
func NewProfile(learnerID uuid.UUID, startBand Band, now time.Time) (*Profile, error) {
	if learnerID == uuid.Nil {
		return nil, NewValidationError("learner_id", "cannot be empty", nil)
	}
	if !startBand.Valid() {
		return nil, NewValidationError("band", "is not a valid band", nil)
	}
	now = now.UTC()
	return &Profile{
		LearnerID:   learnerID,
		Cards:       make(map[uuid.UUID]ReviewCard),
		Band:        BandStatus{CurrentBand: startBand},
		Domains:     make(map[string]DomainStatus),
		Performance: make(map[string]DomainPerformance),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Location returns the learner's time zone, defaulting to UTC.
func (p *Profile) Location() *time.Location {
	if p.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Day returns the learner-local civil date of t.
func (p *Profile) Day(t time.Time) string {
	return t.In(p.Location()).Format(DayLayout)
}

// EndOfDay returns the last instant of the learner-local day containing t.
func (p *Profile) EndOfDay(t time.Time) time.Time {
	local := t.In(p.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, local.Location()).Add(-time.Nanosecond)
}

// CardsInDomain returns the non-retired cards of a domain.
func (p *Profile) CardsInDomain(domain string) []ReviewCard {
	var cards []ReviewCard
	for _, c := range p.Cards {
		if c.Domain == domain && !c.Retired {
			cards = append(cards, c)
		}
	}
	return cards
}

// CardForContent returns the learner's card for a content id, if any.
func (p *Profile) CardForContent(contentID string) (ReviewCard, bool) {
	for _, c := range p.Cards {
		if c.ContentID == contentID {
			return c, true
		}
	}
	return ReviewCard{}, false
}

// DomainStatus returns the status for a domain, defaulting to not-started.
func (p *Profile) DomainStatus(domain string) DomainStatus {
	if s, ok := p.Domains[domain]; ok {
		return s
	}
	return NewDomainStatus(domain)
}

// HasProcessedSession reports whether the session id was already applied.
func (p *Profile) HasProcessedSession(id string) bool {
	for _, s := range p.ProcessedSessions {
		if s == id {
			return true
		}
	}
	return false
}

// MarkSessionProcessed appends id to the bounded dedupe log.
func (p *Profile) MarkSessionProcessed(id string) {
	p.ProcessedSessions = append(p.ProcessedSessions, id)
	if over := len(p.ProcessedSessions) - MaxProcessedSessions; over > 0 {
		p.ProcessedSessions = append([]string(nil), p.ProcessedSessions[over:]...)
	}
}

// Clone returns a deep copy so callers can compute on it and discard it on error.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p

	c.Cards = make(map[uuid.UUID]ReviewCard, len(p.Cards))
	for k, v := range p.Cards {
		c.Cards[k] = v
	}

	c.Band.RecentPerformance = append([]PerformanceSample(nil), p.Band.RecentPerformance...)
	if p.Band.LastTransition != nil {
		t := *p.Band.LastTransition
		c.Band.LastTransition = &t
	}

	c.Domains = make(map[string]DomainStatus, len(p.Domains))
	for k, v := range p.Domains {
		v.Attempts = append([]MiniOSCEResult(nil), v.Attempts...)
		if v.GateProgress.MiniOSCEScore != nil {
			score := *v.GateProgress.MiniOSCEScore
			v.GateProgress.MiniOSCEScore = &score
		}
		c.Domains[k] = v
	}

	c.Recovery.History = append([]DayOutcome(nil), p.Recovery.History...)
	if p.Recovery.ActivatedAt != nil {
		at := *p.Recovery.ActivatedAt
		c.Recovery.ActivatedAt = &at
	}

	c.Performance = make(map[string]DomainPerformance, len(p.Performance))
	for k, v := range p.Performance {
		v.Recent = append([]PerformanceSample(nil), v.Recent...)
		c.Performance[k] = v
	}

	if p.Mix != nil {
		m := *p.Mix
		m.WeakDomains = append([]WeakDomain(nil), p.Mix.WeakDomains...)
		m.NewContent.Items = append([]MixItem(nil), p.Mix.NewContent.Items...)
		m.InterleavingContent.Items = append([]MixItem(nil), p.Mix.InterleavingContent.Items...)
		m.SRSReviews.Items = append([]MixItem(nil), p.Mix.SRSReviews.Items...)
		c.Mix = &m
	}

	c.ProcessedSessions = append([]string(nil), p.ProcessedSessions...)
	return &c
}
