package api

import (
	"sort"
	"time"

	"github.com/phrazzld/medscry/internal/domain"
)

// MiniOSCERequest carries the rubric scores of one Mini-OSCE attempt.
type MiniOSCERequest struct {
	Scores []domain.CriterionScore `json:"scores" validate:"required,min=1,dive"`
}

// ReopenDomainRequest explains why an admin reopens a completed domain.
type ReopenDomainRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PreferencesRequest changes mix planning preferences. Omitted fields keep
// their current value; an empty string clears them.
type PreferencesRequest struct {
	PrimaryDomain *string `json:"primary_domain" validate:"omitempty,max=100"`
	TimeZone      *string `json:"time_zone" validate:"omitempty,max=64"`
}

// CardSummary counts a learner's cards.
type CardSummary struct {
	Total    int `json:"total"`
	DueToday int `json:"due_today"`
	Leeches  int `json:"leeches"`
	Retired  int `json:"retired"`
}

// ProfileResponse is the progression summary shown to a learner.
type ProfileResponse struct {
	LearnerID     string                `json:"learner_id"`
	PrimaryDomain string                `json:"primary_domain,omitempty"`
	TimeZone      string                `json:"time_zone,omitempty"`
	Band          domain.BandStatus     `json:"band"`
	Recovery      domain.RecoveryState  `json:"recovery"`
	Domains       []domain.DomainStatus `json:"domains"`
	Cards         CardSummary           `json:"cards"`
	Version       int                   `json:"version"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// profileToResponse summarizes p as of now.
func profileToResponse(p *domain.Profile, now time.Time) ProfileResponse {
	resp := ProfileResponse{
		LearnerID:     p.LearnerID.String(),
		PrimaryDomain: p.PrimaryDomain,
		TimeZone:      p.TimeZone,
		Band:          p.Band,
		Recovery:      p.Recovery,
		Domains:       make([]domain.DomainStatus, 0, len(p.Domains)),
		Version:       p.Version,
		UpdatedAt:     p.UpdatedAt,
	}

	for _, status := range p.Domains {
		resp.Domains = append(resp.Domains, status)
	}
	sort.Slice(resp.Domains, func(i, j int) bool {
		return resp.Domains[i].Domain < resp.Domains[j].Domain
	})

	cutoff := p.EndOfDay(now)
	for _, card := range p.Cards {
		resp.Cards.Total++
		switch {
		case card.Retired:
			resp.Cards.Retired++
			continue
		case card.IsLeech:
			resp.Cards.Leeches++
		}
		if card.IsDue(cutoff) {
			resp.Cards.DueToday++
		}
	}
	return resp
}
