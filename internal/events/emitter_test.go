package events

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	err    error
	events []*ProgressionEvent
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *ProgressionEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func TestInMemoryEventEmitter(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	event, err := NewProgressionEvent(DomainCompleted, uuid.New(), DomainCompletedPayload{Domain: "cardiology"}, time.Now())
	require.NoError(t, err)

	t.Run("no handlers", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, NewInMemoryEventEmitter(logger).EmitEvent(context.Background(), event))
	})

	t.Run("every handler runs and the first error wins", func(t *testing.T) {
		t.Parallel()
		emitter := NewInMemoryEventEmitter(nil)
		ok := &recordingHandler{}
		failing := &recordingHandler{err: errors.New("handler error")}
		last := &recordingHandler{err: errors.New("second error")}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(ok)
		emitter.RegisterHandler(last)

		err := emitter.EmitEvent(context.Background(), event)
		assert.EqualError(t, err, "handler error")
		assert.Len(t, ok.events, 1)
		assert.Len(t, last.events, 1)
		assert.Same(t, event, ok.events[0])
	})
}

func TestLogHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := LogHandler{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	event, err := NewProgressionEvent(RecoveryChanged, uuid.New(), RecoveryChangedPayload{Active: true, Reason: "auto"}, time.Now())
	require.NoError(t, err)

	require.NoError(t, h.HandleEvent(context.Background(), event))
	assert.Contains(t, buf.String(), `"event_type":"recovery_changed"`)
}
