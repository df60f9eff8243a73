package domain

import (
	"fmt"
	"strings"
)

// Band is a discrete difficulty tier, A (easiest) through E (hardest).
type Band string

// Supported bands in ascending difficulty.
const (
	BandA Band = "A"
	BandB Band = "B"
	BandC Band = "C"
	BandD Band = "D"
	BandE Band = "E"
)

// Bands lists every band from easiest to hardest.
var Bands = []Band{BandA, BandB, BandC, BandD, BandE}

// Index returns the zero-based position of the band, or -1 if it is unknown.
func (b Band) Index() int {
	for i, candidate := range Bands {
		if candidate == b {
			return i
		}
	}
	return -1
}

// Valid reports whether b is one of the known bands.
func (b Band) Valid() bool {
	return b.Index() >= 0
}

// Step moves the band by delta tiers, clamped to the A..E range.
func (b Band) Step(delta int) Band {
	idx := b.Index()
	if idx < 0 {
		return b
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(Bands) {
		idx = len(Bands) - 1
	}
	return Bands[idx]
}

// ParseBand converts a string (case-insensitive) to a Band.
func ParseBand(s string) (Band, error) {
	b := Band(strings.ToUpper(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", NewValidationError("band", fmt.Sprintf("%q is not a band", s), nil)
	}
	return b, nil
}

// ContentKind discriminates the ContentItem variants.
type ContentKind string

// Content kinds known to the engine.
const (
	ContentKindQuiz      ContentKind = "quiz"
	ContentKindMicroCase ContentKind = "micro-case"
	ContentKindFlashcard ContentKind = "flashcard"
)

// ContentItem is the tagged variant served by the content catalog:
// Quiz, MicroCase or Flashcard. The engine never inspects question text.
type ContentItem interface {
	ItemID() string
	ItemDomain() string
	ItemBand() Band
	Meta() ContentMeta
	Kind() ContentKind
	contentItem()
}

// ContentMeta holds the fields every content variant carries.
type ContentMeta struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Band   Band   `json:"band"`
	// Difficulty is a 1..5 bin within the band.
	Difficulty int `json:"difficulty"`
	// ExpectedSeconds is the time an average learner needs for the item.
	ExpectedSeconds int `json:"expected_seconds"`
}

// ItemID returns the catalog id.
func (m ContentMeta) ItemID() string { return m.ID }

// ItemDomain returns the clinical domain.
func (m ContentMeta) ItemDomain() string { return m.Domain }

// ItemBand returns the band the item belongs to.
func (m ContentMeta) ItemBand() Band { return m.Band }

// Meta returns the shared metadata.
func (m ContentMeta) Meta() ContentMeta { return m }

// Quiz is a multiple-choice item; its grade is derived from behavior.
type Quiz struct {
	ContentMeta
	OptionCount int `json:"option_count"`
}

// Kind implements ContentItem.
func (Quiz) Kind() ContentKind { return ContentKindQuiz }
func (Quiz) contentItem()      {}

// MicroCase is a free-form clinical case; its grade is self-assessed.
type MicroCase struct {
	ContentMeta
	StepCount int `json:"step_count"`
}

// Kind implements ContentItem.
func (MicroCase) Kind() ContentKind { return ContentKindMicroCase }
func (MicroCase) contentItem()      {}

// Flashcard is a short recall prompt.
type Flashcard struct {
	ContentMeta
}

// Kind implements ContentItem.
func (Flashcard) Kind() ContentKind { return ContentKindFlashcard }
func (Flashcard) contentItem()      {}

// ContentRecord is the flat, serialized form of a ContentItem.
type ContentRecord struct {
	ContentMeta
	Kind        ContentKind `json:"kind"`
	OptionCount int         `json:"option_count,omitempty"`
	StepCount   int         `json:"step_count,omitempty"`
}

// Item converts the record into its variant. Unknown kinds are rejected.
func (r ContentRecord) Item() (ContentItem, error) {
	if r.ID == "" {
		return nil, NewValidationError("content.id", "is required", nil)
	}
	switch r.Kind {
	case ContentKindQuiz:
		return Quiz{ContentMeta: r.ContentMeta, OptionCount: r.OptionCount}, nil
	case ContentKindMicroCase:
		return MicroCase{ContentMeta: r.ContentMeta, StepCount: r.StepCount}, nil
	case ContentKindFlashcard:
		return Flashcard{ContentMeta: r.ContentMeta}, nil
	default:
		return nil, NewValidationError("content.kind", fmt.Sprintf("unknown kind %q", r.Kind), nil)
	}
}

// CardTypeFor maps a content kind to the review card type. Flashcards are
// reviewed like quiz items.
func CardTypeFor(kind ContentKind) CardType {
	switch kind {
	case ContentKindMicroCase:
		return CardTypeMicroCase
	case ContentKindQuiz, ContentKindFlashcard:
		return CardTypeQuiz
	default:
		return CardTypeQuiz
	}
}
