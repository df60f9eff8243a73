package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ContextKey is the type of every request-scoped value set by the API.
type ContextKey string

const (
	// LearnerIDContextKey holds the authenticated learner's uuid.UUID.
	LearnerIDContextKey ContextKey = "learnerID"

	// RoleContextKey holds the authenticated caller's role claim.
	RoleContextKey ContextKey = "role"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// RoleAdmin may reopen completed domains for any learner.
const RoleAdmin = "admin"

// SetTraceID adds a fresh trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context, or "".
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithIdentity stores the authenticated learner and role in ctx.
func WithIdentity(ctx context.Context, learnerID uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, LearnerIDContextKey, learnerID)
	return context.WithValue(ctx, RoleContextKey, role)
}

// GetLearnerID returns the authenticated learner. The second result is false
// when the request carries no identity or a nil id.
func GetLearnerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(LearnerIDContextKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// GetRole returns the authenticated caller's role, or "".
func GetRole(ctx context.Context) string {
	role, _ := ctx.Value(RoleContextKey).(string)
	return role
}

// generateTraceID returns 32 hex characters from crypto/rand. If the random
// source fails it falls back to a time-derived id, never a static value.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	n, err := rand.Read(b)
	if err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"fallback", "time-based generation")
		return generateFallbackTraceID()
	}
	return hex.EncodeToString(b)
}

func generateFallbackTraceID() string {
	fallbackID := make([]byte, TraceIDLength)
	now := time.Now()
	binary.BigEndian.PutUint64(fallbackID[:8], uint64(now.UnixNano()))
	binary.BigEndian.PutUint32(fallbackID[8:12], uint32(now.Nanosecond()))
	binary.BigEndian.PutUint32(fallbackID[12:16], uint32(now.Unix()))
	return hex.EncodeToString(fallbackID)
}
