package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProfileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemoryProfileStore()
	learner := uuid.New()

	got, err := s.Load(ctx, learner)
	require.NoError(t, err)
	assert.Nil(t, got, "missing profile loads as nil")

	p, err := domain.NewProfile(learner, domain.BandC, time.Now())
	require.NoError(t, err)
	p.PrimaryDomain = "cardiology"
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, 1, p.Version)

	got, err = s.Load(ctx, learner)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cardiology", got.PrimaryDomain)
	assert.Equal(t, 1, got.Version)

	got.PrimaryDomain = "renal"
	again, err := s.Load(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, "cardiology", again.PrimaryDomain, "loaded profiles do not alias stored state")
}

func TestMemoryProfileStoreVersionConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemoryProfileStore()

	p, err := domain.NewProfile(uuid.New(), domain.BandB, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, p))

	first, err := s.Load(ctx, p.LearnerID)
	require.NoError(t, err)
	second, err := s.Load(ctx, p.LearnerID)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, first))
	err = s.Save(ctx, second)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, 1, second.Version, "a rejected save leaves the version untouched")

	assert.ErrorIs(t, s.Save(ctx, &domain.Profile{}), store.ErrInvalidEntity)
}

func TestMemoryProfileStoreCorruptBlob(t *testing.T) {
	t.Parallel()
	ctx, logs := logger.NewCaptureContext(t)
	s := store.NewMemoryProfileStore()
	learner := uuid.New()

	s.PutRaw(learner, []byte(`{"learner_id": 42`), 3)
	got, err := s.Load(ctx, learner)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Contains(t, logs.String(), "discarding corrupt learner profile")

	s.PutRaw(learner, []byte(`{"learner_id":"`+uuid.NewString()+`"}`), 3)
	got, err = s.Load(ctx, learner)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryProfileStoreCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := store.NewMemoryProfileStore()

	_, err := s.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

const seedJSON = `{
  "items": [
    {"id": "cardio-q-002", "domain": "cardiology", "band": "C", "kind": "quiz", "difficulty": 2, "expected_seconds": 60},
    {"id": "cardio-q-001", "domain": "cardiology", "band": "C", "kind": "quiz", "difficulty": 1, "expected_seconds": 60},
    {"id": "cardio-mc-001", "domain": "cardiology", "band": "D", "kind": "micro-case", "step_count": 4, "expected_seconds": 300},
    {"id": "renal-f-001", "domain": "renal", "band": "C", "kind": "flashcard", "expected_seconds": 20}
  ],
  "rubrics": [
    {"domain": "cardiology", "passing_score": 0.8, "criteria": [{"id": "airway"}, {"id": "ecg"}]}
  ]
}`

func TestMemoryCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := store.LoadMemoryCatalog(strings.NewReader(seedJSON))
	require.NoError(t, err)

	items, err := c.GetItemsByDomainAndBand(ctx, "cardiology", domain.BandC)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "cardio-q-001", items[0].ItemID())

	item, err := c.GetItemByID(ctx, "cardio-mc-001")
	require.NoError(t, err)
	mc, ok := item.(domain.MicroCase)
	require.True(t, ok)
	assert.Equal(t, 4, mc.StepCount)

	domains, err := c.Domains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cardiology", "renal"}, domains)

	rubric, err := c.GetRubric(ctx, "cardiology")
	require.NoError(t, err)
	assert.Len(t, rubric.Criteria, 2)

	_, err = c.GetRubric(ctx, "renal")
	assert.ErrorIs(t, err, store.ErrRubricNotFound)

	c.Retire("renal-f-001")
	_, err = c.GetItemByID(ctx, "renal-f-001")
	assert.ErrorIs(t, err, store.ErrContentNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	domains, err = c.Domains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cardiology"}, domains)
}

func TestMemoryCatalogRejectsBadSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seed store.CatalogSeed
		want error
	}{
		{
			name: "unknown kind",
			seed: store.CatalogSeed{Items: []domain.ContentRecord{{ContentMeta: domain.ContentMeta{ID: "x", Domain: "d", Band: domain.BandA}, Kind: "essay"}}},
			want: store.ErrInvalidEntity,
		},
		{
			name: "bad band",
			seed: store.CatalogSeed{Items: []domain.ContentRecord{{ContentMeta: domain.ContentMeta{ID: "x", Domain: "d", Band: "Z"}, Kind: domain.ContentKindQuiz}}},
			want: store.ErrInvalidEntity,
		},
		{
			name: "duplicate id",
			seed: store.CatalogSeed{Items: []domain.ContentRecord{
				{ContentMeta: domain.ContentMeta{ID: "x", Domain: "d", Band: domain.BandA}, Kind: domain.ContentKindQuiz},
				{ContentMeta: domain.ContentMeta{ID: "x", Domain: "d", Band: domain.BandB}, Kind: domain.ContentKindQuiz},
			}},
			want: store.ErrDuplicate,
		},
		{
			name: "empty rubric",
			seed: store.CatalogSeed{Rubrics: []domain.Rubric{{Domain: "d"}}},
			want: store.ErrInvalidEntity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := store.NewMemoryCatalog(tc.seed)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := store.LoadMemoryCatalog(strings.NewReader("{"))
	var storeErr *store.StoreError
	assert.ErrorAs(t, err, &storeErr)
}
