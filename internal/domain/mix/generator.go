package mix

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/phrazzld/medscry/internal/domain"
)

// Catalog is the read-only content source the generator draws from.
type Catalog interface {
	GetItemsByDomainAndBand(ctx context.Context, domainName string, band domain.Band) ([]domain.ContentItem, error)
	GetItemByID(ctx context.Context, id string) (domain.ContentItem, error)
	Domains(ctx context.Context) ([]string, error)
}

// Generator builds daily mixes.
type Generator interface {
	// Generate builds the mix for the learner-local day containing now.
	// Catalog failures degrade to empty buckets; only a missing profile or a
	// cancelled context fails the call.
	Generate(ctx context.Context, profile *domain.Profile, catalog Catalog, now time.Time) (domain.DailyMix, error)

	// Params exposes the generator's configuration.
	Params() *Params
}

type defaultGenerator struct {
	params *Params
}

// NewGenerator creates a daily mix generator.
func NewGenerator(params *Params) (Generator, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &defaultGenerator{params: params}, nil
}

func (g *defaultGenerator) Params() *Params {
	return g.params
}

func (g *defaultGenerator) Generate(
	ctx context.Context,
	profile *domain.Profile,
	catalog Catalog,
	now time.Time,
) (domain.DailyMix, error) {
	if profile == nil {
		return domain.DailyMix{}, domain.NewValidationError("profile", "cannot be nil", nil)
	}
	if catalog == nil {
		return domain.DailyMix{}, domain.NewValidationError("catalog", "cannot be nil", nil)
	}

	recovering := profile.Recovery.Active
	effective := EffectiveBand(profile)
	weak := g.weakDomains(profile)

	newSlice := g.params.NewSliceMinutes
	if recovering {
		newSlice = g.params.RecoveryNewSliceMinutes
	}

	sel := &selection{
		carded: make(map[string]bool, len(profile.Cards)),
		picked: make(map[string]bool),
	}
	for _, c := range profile.Cards {
		sel.carded[c.ContentID] = true
	}

	domains, domainsErr := catalog.Domains(ctx)
	if err := ctx.Err(); err != nil {
		return domain.DailyMix{}, err
	}

	newBucket, newDomain := g.newContent(ctx, profile, catalog, domains, weak, effective, recovering, newSlice*60, sel)
	interleave := g.interleaving(ctx, profile, catalog, domains, domainsErr, newDomain, effective, sel)

	remaining := g.params.BudgetMinutes*60 - newBucket.EstimatedSeconds() - interleave.EstimatedSeconds()
	reviews := g.reviews(ctx, profile, catalog, now, remaining)
	if err := ctx.Err(); err != nil {
		return domain.DailyMix{}, err
	}

	for _, b := range []*domain.MixBucket{&newBucket, &interleave, &reviews} {
		b.EstimatedTimeMinutes = float64(b.EstimatedSeconds()) / 60
		if b.Items == nil {
			b.Items = []domain.MixItem{}
		}
	}

	return domain.DailyMix{
		Date:                profile.Day(now),
		GeneratedAt:         now.UTC(),
		TargetBand:          effective,
		BasedOnBand:         profile.Band.CurrentBand,
		IsRecoveryDay:       recovering,
		WeakDomains:         weak,
		NewContent:          newBucket,
		InterleavingContent: interleave,
		SRSReviews:          reviews,
	}, nil
}

// EffectiveBand is the band content is drawn from: one step below the current
// band while recovery is active, never below A.
func EffectiveBand(profile *domain.Profile) domain.Band {
	if profile.Recovery.Active {
		return profile.Band.CurrentBand.Step(-1)
	}
	return profile.Band.CurrentBand
}

// selection tracks content already used so no item appears twice in a mix.
type selection struct {
	carded map[string]bool
	picked map[string]bool
}

func (s *selection) eligible(id string) bool {
	return !s.carded[id] && !s.picked[id]
}

func (g *defaultGenerator) weakDomains(profile *domain.Profile) []domain.WeakDomain {
	weak := []domain.WeakDomain{}
	for name, perf := range profile.Performance {
		acc, n := perf.Accuracy()
		if n >= g.params.WeakMinItems && acc < g.params.WeakAccuracy {
			weak = append(weak, domain.WeakDomain{Domain: name, Accuracy: acc})
		}
	}
	sort.Slice(weak, func(i, j int) bool {
		if weak[i].Accuracy != weak[j].Accuracy {
			return weak[i].Accuracy < weak[j].Accuracy
		}
		return weak[i].Domain < weak[j].Domain
	})
	if len(weak) > g.params.MaxWeakDomains {
		weak = weak[:g.params.MaxWeakDomains]
	}
	return weak
}

// focusDomain picks the domain new content is drawn from and explains why.
func (g *defaultGenerator) focusDomain(
	profile *domain.Profile,
	domains []string,
	weak []domain.WeakDomain,
) (string, string) {
	primary := profile.PrimaryDomain
	if primary == "" {
		primary = firstOpenDomain(profile, domains)
	}

	if len(weak) > 0 && weak[0].Domain != primary {
		primaryAcc, n := profile.Performance[primary].Accuracy()
		if primary == "" || (n >= g.params.WeakMinItems && weak[0].Accuracy+g.params.DominanceMargin <= primaryAcc) {
			return weak[0].Domain, fmt.Sprintf("weak-domain: %s accuracy is %.0f%%", weak[0].Domain, weak[0].Accuracy*100)
		}
	}
	if primary == "" {
		return "", ""
	}
	if profile.PrimaryDomain != "" {
		return primary, fmt.Sprintf("goal-linked: primary domain %s", primary)
	}
	return primary, fmt.Sprintf("default progression: next open domain %s", primary)
}

func firstOpenDomain(profile *domain.Profile, domains []string) string {
	sorted := append([]string(nil), domains...)
	sort.Strings(sorted)
	for _, d := range sorted {
		if profile.DomainStatus(d).Status != domain.GateCompleted {
			return d
		}
	}
	return ""
}

func (g *defaultGenerator) newContent(
	ctx context.Context,
	profile *domain.Profile,
	catalog Catalog,
	domains []string,
	weak []domain.WeakDomain,
	band domain.Band,
	recovering bool,
	sliceSeconds int,
	sel *selection,
) (domain.MixBucket, string) {
	focus, reason := g.focusDomain(profile, domains, weak)
	if focus == "" {
		return domain.MixBucket{Reasoning: "no domain available for new content"}, ""
	}

	items, err := catalog.GetItemsByDomainAndBand(ctx, focus, band)
	if err != nil {
		return domain.MixBucket{Reasoning: fmt.Sprintf("new content for %s is unavailable right now", focus)}, focus
	}

	candidates := filterEligible(items, sel)
	sortByID(candidates)
	if recovering {
		// Easier bins first on recovery days.
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Meta().Difficulty < candidates[j].Meta().Difficulty
		})
		reason += "; recovery day, easier items first"
	}

	bucket := domain.MixBucket{Reasoning: fmt.Sprintf("%s at band %s", reason, band)}
	g.pack(&bucket, candidates, sliceSeconds, 0, sel)
	if len(bucket.Items) == 0 {
		bucket.Reasoning = fmt.Sprintf("no unseen band %s content in %s", band, focus)
	}
	return bucket, focus
}

func (g *defaultGenerator) interleaving(
	ctx context.Context,
	profile *domain.Profile,
	catalog Catalog,
	domains []string,
	domainsErr error,
	exclude string,
	band domain.Band,
	sel *selection,
) domain.MixBucket {
	if domainsErr != nil {
		return domain.MixBucket{Reasoning: "interleaving content is unavailable right now"}
	}

	others := make([]string, 0, len(domains))
	for _, d := range domains {
		if d != exclude && d != profile.PrimaryDomain {
			others = append(others, d)
		}
	}
	// Least recently touched domains first; never-touched domains lead.
	sort.Slice(others, func(i, j int) bool {
		ti, tj := profile.Performance[others[i]].LastTouched, profile.Performance[others[j]].LastTouched
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return others[i] < others[j]
	})

	bucket := domain.MixBucket{}
	slice := g.params.InterleaveSliceMinutes * 60
	var used []string
	for _, d := range others {
		if bucket.EstimatedSeconds() >= slice {
			break
		}
		items, err := catalog.GetItemsByDomainAndBand(ctx, d, band)
		if err != nil {
			continue
		}
		candidates := filterEligible(items, sel)
		sortByID(candidates)
		before := len(bucket.Items)
		g.pack(&bucket, candidates, slice, g.params.MaxInterleavePerDomain, sel)
		if len(bucket.Items) > before {
			used = append(used, d)
		}
	}

	if len(used) == 0 {
		bucket.Reasoning = "no other domain has unseen content at this band"
		return bucket
	}
	bucket.Reasoning = fmt.Sprintf("interleaving least recently practiced domains: %v", used)
	return bucket
}

func (g *defaultGenerator) reviews(
	ctx context.Context,
	profile *domain.Profile,
	catalog Catalog,
	now time.Time,
	budgetSeconds int,
) domain.MixBucket {
	cutoff := profile.EndOfDay(now)
	var due []domain.ReviewCard
	for _, c := range profile.Cards {
		if c.IsDue(cutoff) {
			due = append(due, c)
		}
	}
	if len(due) == 0 {
		return domain.MixBucket{Reasoning: "no reviews due today"}
	}

	sort.Slice(due, func(i, j int) bool {
		oi, oj := due[i].OverdueDays(now), due[j].OverdueDays(now)
		if oi != oj {
			return oi > oj
		}
		if due[i].IsLeech != due[j].IsLeech {
			return due[i].IsLeech
		}
		if !due[i].DueDate.Equal(due[j].DueDate) {
			return due[i].DueDate.Before(due[j].DueDate)
		}
		return due[i].ContentID < due[j].ContentID
	})

	bucket := domain.MixBucket{}
	elapsed, skipped, leeches := 0, 0, 0
	for _, card := range due {
		item := domain.MixItem{
			ContentID:          card.ContentID,
			Kind:               domain.ContentKind(card.ContentType),
			Domain:             card.Domain,
			EstimatedSeconds:   g.params.DefaultItemSeconds,
			CardID:             card.ID.String(),
			OverdueDays:        card.OverdueDays(now),
			NeedsFocusedReview: card.IsLeech,
		}
		content, err := catalog.GetItemByID(ctx, card.ContentID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Retired content: the card stays but is not served.
			continue
		case err == nil:
			if mi, ok := g.toMixItem(content); ok {
				item.Kind, item.Band, item.EstimatedSeconds = mi.Kind, mi.Band, mi.EstimatedSeconds
			}
		}

		if elapsed+item.EstimatedSeconds > budgetSeconds {
			skipped++
			continue
		}
		elapsed += item.EstimatedSeconds
		if card.IsLeech {
			leeches++
		}
		bucket.Items = append(bucket.Items, item)
	}

	switch {
	case len(bucket.Items) == 0:
		bucket.Reasoning = fmt.Sprintf("%d reviews due but none fit the remaining time", len(due))
	case skipped > 0:
		bucket.Reasoning = fmt.Sprintf("%d most overdue of %d due reviews; %d deferred", len(bucket.Items), len(due), skipped)
	default:
		bucket.Reasoning = fmt.Sprintf("all %d due reviews, most overdue first", len(bucket.Items))
	}
	if leeches > 0 {
		bucket.Reasoning += fmt.Sprintf("; %d need focused review", leeches)
	}
	return bucket
}

// pack greedily adds candidates whose estimate still fits in limitSeconds.
// perDomain > 0 caps how many items are added by this call.
func (g *defaultGenerator) pack(
	bucket *domain.MixBucket,
	candidates []domain.ContentItem,
	limitSeconds int,
	perDomain int,
	sel *selection,
) {
	elapsed := bucket.EstimatedSeconds()
	added := 0
	for _, c := range candidates {
		if perDomain > 0 && added >= perDomain {
			return
		}
		item, ok := g.toMixItem(c)
		if !ok || elapsed+item.EstimatedSeconds > limitSeconds {
			continue
		}
		elapsed += item.EstimatedSeconds
		added++
		sel.picked[item.ContentID] = true
		bucket.Items = append(bucket.Items, item)
	}
}

// toMixItem converts a content variant into a mix entry.
func (g *defaultGenerator) toMixItem(c domain.ContentItem) (domain.MixItem, bool) {
	var meta domain.ContentMeta
	switch v := c.(type) {
	case domain.Quiz:
		meta = v.ContentMeta
	case domain.MicroCase:
		meta = v.ContentMeta
	case domain.Flashcard:
		meta = v.ContentMeta
	default:
		return domain.MixItem{}, false
	}

	seconds := meta.ExpectedSeconds
	if seconds <= 0 {
		seconds = g.params.DefaultItemSeconds
	}
	return domain.MixItem{
		ContentID:        meta.ID,
		Kind:             c.Kind(),
		Domain:           meta.Domain,
		Band:             meta.Band,
		EstimatedSeconds: seconds,
	}, true
}

func filterEligible(items []domain.ContentItem, sel *selection) []domain.ContentItem {
	out := make([]domain.ContentItem, 0, len(items))
	for _, item := range items {
		if item != nil && sel.eligible(item.ItemID()) {
			out = append(out, item)
		}
	}
	return out
}

func sortByID(items []domain.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ItemID() < items[j].ItemID()
	})
}
