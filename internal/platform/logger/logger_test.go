package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		want  slog.Level
		known bool
	}{
		{name: "debug", want: slog.LevelDebug, known: true},
		{name: "INFO", want: slog.LevelInfo, known: true},
		{name: "", want: slog.LevelInfo, known: true},
		{name: "warn", want: slog.LevelWarn, known: true},
		{name: "Error", want: slog.LevelError, known: true},
		{name: "verbose", want: slog.LevelInfo, known: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := logger.ParseLevel(tc.name)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.known, ok)
		})
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := logger.New(&buf, "warn")

	log.Info("hidden")
	log.Warn("shown", "learner_id", "abc")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"learner_id":"abc"`)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	assert.Same(t, fallback, logger.FromContextOrDefault(nil, fallback)) //nolint:staticcheck // nil context is tolerated
	assert.NotNil(t, logger.FromContext(context.Background()))

	ctx, buf := logger.NewCaptureContext(t)
	logger.FromContext(ctx).Debug("captured", "component", "test")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "captured", entries[0]["msg"])
	assert.Equal(t, "test", entries[0]["component"])
}
