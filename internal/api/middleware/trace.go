package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/medscry/internal/api/shared"
	"github.com/phrazzld/medscry/internal/platform/logger"
)

// Trace adds a trace ID to the request context together with a logger that
// carries it. Apply it before any middleware that logs or writes errors.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			log := base.With(slog.String("trace_id", shared.GetTraceID(ctx)))
			ctx = logger.WithContext(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
