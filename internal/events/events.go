package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
)

// EventType names a progression change worth notifying the learner about.
type EventType string

// Progression event types.
const (
	BandChanged     EventType = "band_changed"
	RecoveryChanged EventType = "recovery_changed"
	DomainCompleted EventType = "domain_completed"
	MixInvalidated  EventType = "mix_invalidated"
)

// ProgressionEvent is emitted after a profile change has been saved.
type ProgressionEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      EventType       `json:"type"`
	LearnerID uuid.UUID       `json:"learner_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// BandChangedPayload carries the transition that moved the learner.
type BandChangedPayload struct {
	Transition domain.BandTransition `json:"transition"`
}

// RecoveryChangedPayload describes the new recovery mode.
type RecoveryChangedPayload struct {
	Active bool                  `json:"active"`
	Reason domain.RecoveryReason `json:"reason,omitempty"`
}

// DomainCompletedPayload names the completed domain.
type DomainCompletedPayload struct {
	Domain string `json:"domain"`
}

// MixInvalidatedPayload explains why today's mix was discarded.
type MixInvalidatedPayload struct {
	Reason string `json:"reason"`
}

// UnmarshalPayload decodes the event payload into v.
func (e *ProgressionEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewProgressionEvent creates an event for learnerID with a JSON payload.
func NewProgressionEvent(
	eventType EventType,
	learnerID uuid.UUID,
	payload interface{},
	now time.Time,
) (*ProgressionEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &ProgressionEvent{
		ID:        uuid.New(),
		Type:      eventType,
		LearnerID: learnerID,
		Payload:   payloadBytes,
		CreatedAt: now.UTC(),
	}, nil
}

// EventHandler processes emitted events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *ProgressionEvent) error
}

// EventEmitter publishes events without knowing which handlers consume them.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *ProgressionEvent) error
}
