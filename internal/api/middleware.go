package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/seamark/payrecon/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with request logging, a correlation id, and
// Prometheus instrumentation.
func instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(name, r.Method).Observe(elapsed.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		slog.Info("request",
			"handler", name,
			"method", r.Method,
			"status", wrapped.statusCode,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", reqID,
		)
	}
}
