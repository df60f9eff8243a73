package mix

import (
	"time"

	"github.com/phrazzld/medscry/internal/domain"
)

// IsStale reports whether a cached mix must be regenerated before serving.
// A mix is stale when it is missing, belongs to another learner-local day,
// was explicitly invalidated, or no longer matches the profile's band or
// recovery state.
func IsStale(mix *domain.DailyMix, profile *domain.Profile, now time.Time) bool {
	if mix == nil || profile == nil {
		return true
	}
	switch {
	case mix.Invalidated:
		return true
	case mix.Date != profile.Day(now):
		return true
	case mix.IsRecoveryDay != profile.Recovery.Active:
		return true
	case mix.BasedOnBand != profile.Band.CurrentBand:
		return true
	case mix.TargetBand != EffectiveBand(profile):
		return true
	}
	return false
}

// Invalidate marks the profile's cached mix stale, returning whether there
// was a live mix to invalidate.
func Invalidate(profile *domain.Profile) bool {
	if profile == nil || profile.Mix == nil || profile.Mix.Invalidated {
		return false
	}
	profile.Mix.Invalidated = true
	return true
}
