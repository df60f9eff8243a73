package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/platform/logger"
)

// MemoryProfileStore keeps profiles as serialized blobs in memory, so callers
// never share pointers with the stored state.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	blobs    map[uuid.UUID][]byte
	versions map[uuid.UUID]int
}

var _ ProfileStore = (*MemoryProfileStore)(nil)

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		blobs:    make(map[uuid.UUID][]byte),
		versions: make(map[uuid.UUID]int),
	}
}

// Load implements ProfileStore.Load.
func (s *MemoryProfileStore) Load(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	blob, ok := s.blobs[learnerID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	return DecodeProfile(ctx, learnerID, blob), nil
}

// Save implements ProfileStore.Save.
func (s *MemoryProfileStore) Save(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile == nil || profile.LearnerID == uuid.Nil {
		return fmt.Errorf("%w: profile must have a learner id", ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.versions[profile.LearnerID]; current != profile.Version {
		return fmt.Errorf("%w: stored version %d, saving version %d",
			ErrVersionConflict, current, profile.Version)
	}

	next := *profile
	next.Version++
	blob, err := json.Marshal(&next)
	if err != nil {
		return NewStoreError("profile", "save", "failed to encode profile", err)
	}

	s.blobs[profile.LearnerID] = blob
	s.versions[profile.LearnerID] = next.Version
	profile.Version = next.Version
	return nil
}

// PutRaw stores an arbitrary blob for a learner, bypassing encoding.
// It exists to exercise corrupt-blob handling.
func (s *MemoryProfileStore) PutRaw(learnerID uuid.UUID, blob []byte, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[learnerID] = append([]byte(nil), blob...)
	s.versions[learnerID] = version
}

// DecodeProfile unmarshals a stored blob. A corrupt blob is logged and
// reported as absent so the learner starts over instead of being locked out.
func DecodeProfile(ctx context.Context, learnerID uuid.UUID, blob []byte) *domain.Profile {
	var p domain.Profile
	if err := json.Unmarshal(blob, &p); err != nil {
		logger.FromContext(ctx).Error("discarding corrupt learner profile",
			"learner_id", learnerID,
			"error", err)
		return nil
	}
	if p.LearnerID != learnerID {
		logger.FromContext(ctx).Error("discarding learner profile with mismatched id",
			"learner_id", learnerID,
			"stored_learner_id", p.LearnerID)
		return nil
	}
	if p.Cards == nil {
		p.Cards = make(map[uuid.UUID]domain.ReviewCard)
	}
	if p.Domains == nil {
		p.Domains = make(map[string]domain.DomainStatus)
	}
	if p.Performance == nil {
		p.Performance = make(map[string]domain.DomainPerformance)
	}
	return &p
}

// CatalogSeed is the JSON document loaded into a MemoryCatalog.
type CatalogSeed struct {
	Items   []domain.ContentRecord `json:"items"`
	Rubrics []domain.Rubric        `json:"rubrics"`
}

// MemoryCatalog is a ContentCatalog backed by an in-memory index.
type MemoryCatalog struct {
	mu      sync.RWMutex
	items   map[string]domain.ContentItem
	retired map[string]bool
	rubrics map[string]domain.Rubric
}

var _ ContentCatalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog indexes the seed. Records with unknown kinds, invalid bands
// or duplicate ids are rejected.
func NewMemoryCatalog(seed CatalogSeed) (*MemoryCatalog, error) {
	c := &MemoryCatalog{
		items:   make(map[string]domain.ContentItem, len(seed.Items)),
		retired: make(map[string]bool),
		rubrics: make(map[string]domain.Rubric, len(seed.Rubrics)),
	}
	for _, rec := range seed.Items {
		item, err := rec.Item()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
		}
		if !item.ItemBand().Valid() || item.ItemDomain() == "" {
			return nil, fmt.Errorf("%w: content %q needs a domain and a valid band", ErrInvalidEntity, rec.ID)
		}
		if _, dup := c.items[rec.ID]; dup {
			return nil, fmt.Errorf("%w: content %q", ErrDuplicate, rec.ID)
		}
		c.items[rec.ID] = item
	}
	for _, r := range seed.Rubrics {
		if r.Domain == "" || len(r.Criteria) == 0 {
			return nil, fmt.Errorf("%w: rubric needs a domain and criteria", ErrInvalidEntity)
		}
		c.rubrics[r.Domain] = r
	}
	return c, nil
}

// DecodeCatalogSeed reads a CatalogSeed JSON document from r.
func DecodeCatalogSeed(r io.Reader) (CatalogSeed, error) {
	var seed CatalogSeed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return CatalogSeed{}, NewStoreError("content", "load", "failed to decode catalog seed", err)
	}
	return seed, nil
}

// LoadMemoryCatalog decodes a CatalogSeed from r and indexes it.
func LoadMemoryCatalog(r io.Reader) (*MemoryCatalog, error) {
	seed, err := DecodeCatalogSeed(r)
	if err != nil {
		return nil, err
	}
	return NewMemoryCatalog(seed)
}

// Retire hides an item from every lookup, as a content withdrawal would.
func (c *MemoryCatalog) Retire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retired[id] = true
}

// GetItemsByDomainAndBand implements ContentCatalog.GetItemsByDomainAndBand.
// Items are returned sorted by id.
func (c *MemoryCatalog) GetItemsByDomainAndBand(
	ctx context.Context,
	domainName string,
	band domain.Band,
) ([]domain.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.ContentItem
	for id, item := range c.items {
		if c.retired[id] || item.ItemDomain() != domainName || item.ItemBand() != band {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID() < out[j].ItemID() })
	return out, nil
}

// GetItemByID implements ContentCatalog.GetItemByID.
func (c *MemoryCatalog) GetItemByID(ctx context.Context, id string) (domain.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok || c.retired[id] {
		return nil, fmt.Errorf("%w: %q", ErrContentNotFound, id)
	}
	return item, nil
}

// Domains implements ContentCatalog.Domains.
func (c *MemoryCatalog) Domains(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	for id, item := range c.items {
		if !c.retired[id] {
			seen[item.ItemDomain()] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// GetRubric implements ContentCatalog.GetRubric.
func (c *MemoryCatalog) GetRubric(ctx context.Context, domainName string) (domain.Rubric, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rubric{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.rubrics[domainName]
	if !ok {
		return domain.Rubric{}, fmt.Errorf("%w: %q", ErrRubricNotFound, domainName)
	}
	r.Criteria = append([]domain.RubricCriterion(nil), r.Criteria...)
	return r, nil
}
