package progression_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/events"
	"github.com/phrazzld/medscry/internal/service/progression"
	"github.com/phrazzld/medscry/internal/store"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingHandler keeps every emitted event.
type recordingHandler struct {
	mu     sync.Mutex
	events []*events.ProgressionEvent
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *events.ProgressionEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) Types() []events.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]events.EventType, 0, len(h.events))
	for _, e := range h.events {
		types = append(types, e.Type)
	}
	return types
}

// flakyStore fails Save with the queued errors before delegating.
type flakyStore struct {
	store.ProfileStore

	mu       sync.Mutex
	saveErrs []error
	saves    int
}

func (f *flakyStore) Save(ctx context.Context, profile *domain.Profile) error {
	f.mu.Lock()
	f.saves++
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		if err != nil {
			f.mu.Unlock()
			return err
		}
	}
	f.mu.Unlock()
	return f.ProfileStore.Save(ctx, profile)
}

func (f *flakyStore) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type harness struct {
	svc      progression.Service
	profiles *flakyStore
	catalog  *store.MemoryCatalog
	clock    *testClock
	events   *recordingHandler
}

func newHarness(t *testing.T, seed store.CatalogSeed) *harness {
	t.Helper()

	catalog, err := store.NewMemoryCatalog(seed)
	require.NoError(t, err)
	engine, err := progression.NewDefaultEngine()
	require.NoError(t, err)

	h := &harness{
		profiles: &flakyStore{ProfileStore: store.NewMemoryProfileStore()},
		catalog:  catalog,
		clock:    &testClock{now: startTime},
		events:   &recordingHandler{},
	}
	emitter := events.NewInMemoryEventEmitter(nil)
	emitter.RegisterHandler(h.events)

	h.svc = progression.NewService(
		h.profiles,
		catalog,
		store.NewKeyedLocker(),
		engine,
		emitter,
		progression.Options{MaxRetries: 2, BaseDelay: time.Millisecond, Clock: h.clock.Now},
		nil,
	)
	return h
}

// saveProfile stores p as the learner's current profile.
func (h *harness) saveProfile(t *testing.T, p *domain.Profile) {
	t.Helper()
	require.NoError(t, h.profiles.ProfileStore.Save(context.Background(), p))
}

func (h *harness) loadProfile(t *testing.T, learnerID uuid.UUID) *domain.Profile {
	t.Helper()
	p, err := h.profiles.Load(context.Background(), learnerID)
	require.NoError(t, err)
	return p
}

func quiz(id, domainName string, band domain.Band, difficulty int) domain.ContentRecord {
	return domain.ContentRecord{
		ContentMeta: domain.ContentMeta{
			ID:              id,
			Domain:          domainName,
			Band:            band,
			Difficulty:      difficulty,
			ExpectedSeconds: 60,
		},
		Kind:        domain.ContentKindQuiz,
		OptionCount: 4,
	}
}

func microCase(id, domainName string, band domain.Band) domain.ContentRecord {
	return domain.ContentRecord{
		ContentMeta: domain.ContentMeta{ID: id, Domain: domainName, Band: band, Difficulty: 3, ExpectedSeconds: 300},
		Kind:        domain.ContentKindMicroCase,
		StepCount:   4,
	}
}

// defaultSeed has five quiz items per band for cardiology and renal.
func defaultSeed() store.CatalogSeed {
	var seed store.CatalogSeed
	for _, d := range []string{"cardiology", "renal"} {
		for _, b := range domain.Bands {
			for i := 1; i <= 5; i++ {
				seed.Items = append(seed.Items, quiz(fmt.Sprintf("%s-%s-%d", d, b, i), d, b, i))
			}
		}
	}
	seed.Items = append(seed.Items, microCase("cardiology-case-1", "cardiology", domain.BandC))
	seed.Rubrics = []domain.Rubric{{
		Domain: "renal",
		Criteria: []domain.RubricCriterion{
			{ID: "history"}, {ID: "exam"}, {ID: "labs"}, {ID: "diagnosis"}, {ID: "plan"},
		},
		PassingScore: 0.8,
	}}
	return seed
}

func correct(contentID string, hints int) domain.GradedItem {
	ok := true
	return domain.GradedItem{ContentID: contentID, Correct: &ok, TimeSpentSeconds: 30, HintsUsed: hints}
}

func incorrect(contentID string) domain.GradedItem {
	ok := false
	return domain.GradedItem{ContentID: contentID, Correct: &ok, TimeSpentSeconds: 30}
}

func graded(contentID string, grade int) domain.GradedItem {
	return domain.GradedItem{ContentID: contentID, Grade: &grade, TimeSpentSeconds: 30}
}

func session(domainName string, items ...domain.GradedItem) domain.SessionOutcome {
	return domain.SessionOutcome{
		SessionID:   uuid.NewString(),
		Domain:      domainName,
		ItemsGraded: items,
		Accuracy:    0.5,
		CompletedAt: startTime,
	}
}
