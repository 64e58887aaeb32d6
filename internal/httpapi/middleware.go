package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/metrics"
)

type contextKey int

const requestIDKey contextKey = iota

// HeaderRequestID is echoed back on every response so a caller can
// correlate its request against server-side logs.
const HeaderRequestID = "X-Request-ID"

// GetRequestID returns the request ID stashed in ctx by Tracing, or ""
// if none is present.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Tracing assigns a request ID, logs each request's outcome, and tracks
// in-flight/duration/status metrics. Adapted from a middleware package's
// tracing middleware, trimmed of its S3-specific request-ID header
// aliases and bucket/key path normalization.
type Tracing struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewTracing builds a Tracing middleware. m is optional; pass nil to
// skip metrics recording.
func NewTracing(m *metrics.Metrics, logger zerolog.Logger) *Tracing {
	return &Tracing{metrics: m, logger: logger}
}

// Middleware wraps next with request-ID propagation, structured access
// logging, and metrics recording.
func (t *Tracing) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		w.Header().Set(HeaderRequestID, requestID)

		if t.metrics != nil {
			t.metrics.IncHTTPInFlight()
			defer t.metrics.DecHTTPInFlight()
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		logEvent := t.logger.Info()
		switch {
		case rw.statusCode >= 500:
			logEvent = t.logger.Error()
		case rw.statusCode >= 400:
			logEvent = t.logger.Warn()
		}
		logEvent.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("http request")

		if t.metrics != nil {
			t.metrics.RecordHTTPRequest(r.Method, r.URL.Path, http.StatusText(rw.statusCode), duration.Seconds())
		}
	})
}

// responseWriter captures the status code a handler writes so Tracing can
// log and record it after the fact.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wrote {
		return
	}
	rw.wrote = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wrote {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
