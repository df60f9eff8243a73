package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgressionEvent(t *testing.T) {
	t.Parallel()
	learner := uuid.New()
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	transition := domain.BandTransition{FromBand: domain.BandC, ToBand: domain.BandD, Reason: "promoted", Timestamp: now}

	event, err := NewProgressionEvent(BandChanged, learner, BandChangedPayload{Transition: transition}, now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, BandChanged, event.Type)
	assert.Equal(t, learner, event.LearnerID)
	assert.Equal(t, now, event.CreatedAt)

	var payload BandChangedPayload
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, domain.BandD, payload.Transition.ToBand)
}

func TestNewProgressionEventBadPayload(t *testing.T) {
	t.Parallel()
	_, err := NewProgressionEvent(MixInvalidated, uuid.New(), make(chan int), time.Now())
	assert.Error(t, err)
}
