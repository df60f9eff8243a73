package mix

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 8, 20, 7, 30, 0, 0, time.UTC)

type fakeCatalog struct {
	items      map[string][]domain.ContentItem
	byID       map[string]domain.ContentItem
	failing    map[string]bool
	domainsErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		items:   make(map[string][]domain.ContentItem),
		byID:    make(map[string]domain.ContentItem),
		failing: make(map[string]bool),
	}
}

func (c *fakeCatalog) add(items ...domain.ContentItem) {
	for _, item := range items {
		key := item.ItemDomain() + "/" + string(item.ItemBand())
		c.items[key] = append(c.items[key], item)
		c.byID[item.ItemID()] = item
	}
}

func (c *fakeCatalog) GetItemsByDomainAndBand(_ context.Context, d string, b domain.Band) ([]domain.ContentItem, error) {
	if c.failing[d] {
		return nil, errors.New("catalog timeout")
	}
	return c.items[d+"/"+string(b)], nil
}

func (c *fakeCatalog) GetItemByID(_ context.Context, id string) (domain.ContentItem, error) {
	item, ok := c.byID[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "content", ID: id}
	}
	return item, nil
}

func (c *fakeCatalog) Domains(context.Context) ([]string, error) {
	if c.domainsErr != nil {
		return nil, c.domainsErr
	}
	seen := map[string]bool{}
	var out []string
	for _, items := range c.items {
		for _, item := range items {
			if !seen[item.ItemDomain()] {
				seen[item.ItemDomain()] = true
				out = append(out, item.ItemDomain())
			}
		}
	}
	return out, nil
}

func quiz(id, d string, b domain.Band, difficulty, seconds int) domain.Quiz {
	return domain.Quiz{ContentMeta: domain.ContentMeta{
		ID: id, Domain: d, Band: b, Difficulty: difficulty, ExpectedSeconds: seconds,
	}, OptionCount: 4}
}

func microCase(id, d string, b domain.Band, difficulty, seconds int) domain.MicroCase {
	return domain.MicroCase{ContentMeta: domain.ContentMeta{
		ID: id, Domain: d, Band: b, Difficulty: difficulty, ExpectedSeconds: seconds,
	}, StepCount: 5}
}

// fillDomain adds n two-minute quiz items per band for a domain.
func fillDomain(c *fakeCatalog, d string, n int) {
	for _, b := range domain.Bands {
		for i := 0; i < n; i++ {
			c.add(quiz(fmt.Sprintf("%s-%s-%02d", d, b, i), d, b, 1+i%5, 120))
		}
	}
}

func newProfile(t *testing.T, band domain.Band) *domain.Profile {
	t.Helper()
	p, err := domain.NewProfile(uuid.New(), band, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	p.PrimaryDomain = "cardiology"
	return p
}

func addDueCard(t *testing.T, p *domain.Profile, item domain.ContentItem, due time.Time) domain.ReviewCard {
	t.Helper()
	card, err := domain.NewReviewCard(p.LearnerID, item, due.Add(-24*time.Hour))
	require.NoError(t, err)
	card.DueDate = due
	p.Cards[card.ID] = card
	return card
}

func newTestGenerator(t *testing.T) Generator {
	t.Helper()
	g, err := NewGenerator(nil)
	require.NoError(t, err)
	return g
}

func allItems(m domain.DailyMix) []domain.MixItem {
	var out []domain.MixItem
	out = append(out, m.NewContent.Items...)
	out = append(out, m.InterleavingContent.Items...)
	out = append(out, m.SRSReviews.Items...)
	return out
}

func TestGenerate_Buckets(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()
	fillDomain(catalog, "cardiology", 8)
	fillDomain(catalog, "neurology", 8)
	fillDomain(catalog, "renal", 8)

	profile := newProfile(t, domain.BandC)
	addDueCard(t, profile, quiz("cardiology-B-00", "cardiology", domain.BandB, 1, 120), now.Add(-72*time.Hour))

	m, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-20", m.Date)
	assert.Equal(t, domain.BandC, m.TargetBand)
	assert.False(t, m.IsRecoveryDay)

	require.Len(t, m.NewContent.Items, 5, "ten minutes of two-minute items")
	for _, item := range m.NewContent.Items {
		assert.Equal(t, "cardiology", item.Domain)
		assert.Equal(t, domain.BandC, item.Band)
	}
	assert.Contains(t, m.NewContent.Reasoning, "goal-linked")
	assert.InDelta(t, 10.0, m.NewContent.EstimatedTimeMinutes, 1e-9)

	require.Len(t, m.InterleavingContent.Items, 3)
	for _, item := range m.InterleavingContent.Items {
		assert.NotEqual(t, "cardiology", item.Domain)
	}

	require.Len(t, m.SRSReviews.Items, 1)
	assert.Equal(t, "cardiology-B-00", m.SRSReviews.Items[0].ContentID)
	assert.Equal(t, 3, m.SRSReviews.Items[0].OverdueDays)

	assert.LessOrEqual(t, m.TotalMinutes(), float64(g.Params().BudgetMinutes))
}

func TestGenerate_ExcludesCardedContent(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()
	fillDomain(catalog, "cardiology", 3)

	profile := newProfile(t, domain.BandC)
	card := addDueCard(t, profile, catalog.byID["cardiology-C-00"], now.Add(10*24*time.Hour))
	require.False(t, card.IsDue(now))

	m, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, item := range allItems(m) {
		assert.NotEqual(t, "cardiology-C-00", item.ContentID)
		assert.False(t, seen[item.ContentID], "duplicate %s", item.ContentID)
		seen[item.ContentID] = true
	}
	assert.Len(t, m.NewContent.Items, 2)
}

func TestGenerate_RecoveryDay(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()
	catalog.add(
		quiz("b-4", "cardiology", domain.BandB, 4, 60),
		quiz("b-1", "cardiology", domain.BandB, 1, 60),
		microCase("b-3", "cardiology", domain.BandB, 3, 60),
		quiz("b-2", "cardiology", domain.BandB, 2, 60),
		quiz("b-1b", "cardiology", domain.BandB, 1, 60),
		quiz("b-5", "cardiology", domain.BandB, 5, 60),
		quiz("b-2b", "cardiology", domain.BandB, 2, 60),
	)

	profile := newProfile(t, domain.BandC)
	profile.Recovery.Active = true

	m, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)

	assert.True(t, m.IsRecoveryDay)
	assert.Equal(t, domain.BandB, m.TargetBand)
	assert.Equal(t, domain.BandC, m.BasedOnBand)

	ids := make([]string, 0, len(m.NewContent.Items))
	for _, item := range m.NewContent.Items {
		ids = append(ids, item.ContentID)
	}
	assert.Equal(t, []string{"b-1", "b-1b", "b-2", "b-2b", "b-3"}, ids, "five minutes, easiest first")
	assert.Contains(t, m.NewContent.Reasoning, "recovery")
}

func TestGenerate_RecoveryAtBandA(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	profile := newProfile(t, domain.BandA)
	profile.Recovery.Active = true

	m, err := g.Generate(context.Background(), profile, newFakeCatalog(), now)
	require.NoError(t, err)
	assert.Equal(t, domain.BandA, m.TargetBand)
}

func TestGenerate_ReviewOrdering(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()
	items := []domain.ContentItem{
		quiz("r-1", "cardiology", domain.BandC, 1, 60),
		quiz("r-2", "cardiology", domain.BandC, 1, 60),
		quiz("r-3", "cardiology", domain.BandC, 1, 60),
		quiz("r-4", "cardiology", domain.BandC, 1, 60),
	}
	catalog.add(items...)

	profile := newProfile(t, domain.BandC)
	addDueCard(t, profile, items[0], now.Add(-24*time.Hour))
	addDueCard(t, profile, items[1], now.Add(-5*24*time.Hour))
	leech := addDueCard(t, profile, items[2], now.Add(-24*time.Hour))
	leech.IsLeech = true
	profile.Cards[leech.ID] = leech
	addDueCard(t, profile, items[3], now.Add(3*24*time.Hour))

	m, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)

	require.Len(t, m.SRSReviews.Items, 3)
	assert.Equal(t, "r-2", m.SRSReviews.Items[0].ContentID)
	assert.Equal(t, "r-3", m.SRSReviews.Items[1].ContentID)
	assert.True(t, m.SRSReviews.Items[1].NeedsFocusedReview)
	assert.Equal(t, "r-1", m.SRSReviews.Items[2].ContentID)
	assert.Contains(t, m.SRSReviews.Reasoning, "focused review")
}

func TestGenerate_ReviewsDueLaterToday(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()
	item := quiz("later", "cardiology", domain.BandC, 1, 60)
	catalog.add(item)

	profile := newProfile(t, domain.BandC)
	addDueCard(t, profile, item, now.Add(6*time.Hour))

	m, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)
	assert.Len(t, m.SRSReviews.Items, 1)
}

func TestGenerate_SkipsRetiredContent(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()

	profile := newProfile(t, domain.BandC)
	addDueCard(t, profile, quiz("gone", "cardiology", domain.BandC, 1, 60), now.Add(-24*time.Hour))
	retired := addDueCard(t, profile, quiz("retired", "cardiology", domain.BandC, 1, 60), now.Add(-24*time.Hour))
	retired.Retired = true
	profile.Cards[retired.ID] = retired

	m, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)
	assert.Empty(t, m.SRSReviews.Items)
	assert.NotNil(t, m.SRSReviews.Items)
}

func TestGenerate_CatalogFailuresDegrade(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)

	t.Run("failing focus domain", func(t *testing.T) {
		t.Parallel()
		catalog := newFakeCatalog()
		fillDomain(catalog, "cardiology", 5)
		fillDomain(catalog, "neurology", 5)
		catalog.failing["cardiology"] = true

		m, err := g.Generate(context.Background(), newProfile(t, domain.BandC), catalog, now)
		require.NoError(t, err)
		assert.Empty(t, m.NewContent.Items)
		assert.Zero(t, m.NewContent.EstimatedTimeMinutes)
		assert.Contains(t, m.NewContent.Reasoning, "unavailable")
		assert.NotEmpty(t, m.InterleavingContent.Items)
	})

	t.Run("domain listing fails", func(t *testing.T) {
		t.Parallel()
		catalog := newFakeCatalog()
		fillDomain(catalog, "cardiology", 5)
		catalog.domainsErr = errors.New("catalog down")

		m, err := g.Generate(context.Background(), newProfile(t, domain.BandC), catalog, now)
		require.NoError(t, err)
		assert.NotEmpty(t, m.NewContent.Items)
		assert.Empty(t, m.InterleavingContent.Items)
	})

	t.Run("brand-new domain with no content", func(t *testing.T) {
		t.Parallel()
		m, err := g.Generate(context.Background(), newProfile(t, domain.BandE), newFakeCatalog(), now)
		require.NoError(t, err)
		assert.Empty(t, m.NewContent.Items)
		assert.Empty(t, m.InterleavingContent.Items)
		assert.Empty(t, m.SRSReviews.Items)
		assert.Zero(t, m.TotalMinutes())
	})
}

func TestGenerate_WeakDomains(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()
	fillDomain(catalog, "cardiology", 5)
	fillDomain(catalog, "neurology", 5)

	profile := newProfile(t, domain.BandC)
	perf := func(correct, total int) domain.DomainPerformance {
		return domain.DomainPerformance{Recent: []domain.PerformanceSample{{Correct: correct, Total: total}}}
	}
	profile.Performance["cardiology"] = perf(9, 10)
	profile.Performance["neurology"] = perf(4, 10)
	profile.Performance["renal"] = perf(6, 10)
	profile.Performance["derm"] = perf(5, 10)
	profile.Performance["psych"] = perf(3, 10)
	profile.Performance["ortho"] = perf(1, 3)

	m, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)

	require.Len(t, m.WeakDomains, 3)
	assert.Equal(t, "psych", m.WeakDomains[0].Domain)
	assert.Equal(t, "neurology", m.WeakDomains[1].Domain)
	assert.Equal(t, "derm", m.WeakDomains[2].Domain)

	// psych dominates but has no content; selection still follows the weakest domain.
	assert.Contains(t, m.NewContent.Reasoning, "psych")

	delete(profile.Performance, "psych")
	m, err = g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)
	require.NotEmpty(t, m.NewContent.Items)
	assert.Equal(t, "neurology", m.NewContent.Items[0].Domain)
	assert.Contains(t, m.NewContent.Reasoning, "weak-domain")
}

func TestGenerate_Deterministic(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	catalog := newFakeCatalog()
	fillDomain(catalog, "cardiology", 10)
	fillDomain(catalog, "neurology", 10)
	fillDomain(catalog, "renal", 10)
	profile := newProfile(t, domain.BandB)
	for i := 0; i < 10; i++ {
		item := catalog.byID[fmt.Sprintf("renal-A-%02d", i)]
		addDueCard(t, profile, item, now.Add(-time.Duration(i)*24*time.Hour))
	}

	first, err := g.Generate(context.Background(), profile, catalog, now)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), profile, catalog, now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, allItems(first), allItems(second))
	assert.Equal(t, first.TotalMinutes(), second.TotalMinutes())
}

// The summed estimate never exceeds the budget, including for empty catalogs.
func TestGenerate_BudgetNeverExceeded(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(7))
	budget := float64(g.Params().BudgetMinutes)
	domains := []string{"cardiology", "neurology", "renal", "derm"}

	for run := 0; run < 200; run++ {
		catalog := newFakeCatalog()
		for _, d := range domains {
			n := rng.Intn(30)
			for i := 0; i < n; i++ {
				b := domain.Bands[rng.Intn(len(domain.Bands))]
				catalog.add(quiz(fmt.Sprintf("%s-%d-%d", d, run, i), d, b, 1+rng.Intn(5), rng.Intn(600)))
			}
		}

		profile := newProfile(t, domain.Bands[rng.Intn(len(domain.Bands))])
		profile.Recovery.Active = rng.Intn(2) == 0
		due := rng.Intn(60)
		for i := 0; i < due; i++ {
			item := quiz(fmt.Sprintf("due-%d-%d", run, i), domains[rng.Intn(len(domains))], domain.BandA, 1, 30+rng.Intn(300))
			catalog.byID[item.ID] = item
			addDueCard(t, profile, item, now.Add(-time.Duration(rng.Intn(20))*24*time.Hour))
		}

		m, err := g.Generate(context.Background(), profile, catalog, now)
		require.NoError(t, err)
		assert.LessOrEqual(t, m.TotalMinutes(), budget, "run %d", run)
		if profile.Recovery.Active {
			assert.Equal(t, profile.Band.CurrentBand.Step(-1), m.TargetBand)
		}
	}
}

func TestGenerate_Rejections(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t)

	_, err := g.Generate(context.Background(), nil, newFakeCatalog(), now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, newProfile(t, domain.BandC), newFakeCatalog(), now)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NewDefaultParams().Validate())

	_, err := NewGenerator(NewParams(ParamsConfig{BudgetMinutes: 15}))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewGenerator(NewParams(ParamsConfig{RecoveryNewSliceMinutes: 12}))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
