package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Middleware wraps an http.HandlerFunc with cross-cutting behavior.
type Middleware func(http.HandlerFunc) http.HandlerFunc

// ChainMiddleware applies mw in the order given, so the first entry runs
// outermost (sees the request first, the response last).
func ChainMiddleware(h http.HandlerFunc, mw ...Middleware) http.HandlerFunc {
	chained := h
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

type correlationIDKey struct{}

// CorrelationMiddleware stamps every request with a request-scoped uuid,
// mirroring the teacher's use of google/uuid for jti generation.
func CorrelationMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next(w, r.WithContext(withCorrelationID(r.Context(), id)))
	}
}

// LoggingMiddleware logs one structured line per request. It never logs
// the query string, since state/code/error values may embed credentials
// indirectly through the envelope.
func LoggingMiddleware(log zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next(rec, r)
			log.Info().
				Str("request_id", correlationIDFrom(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("elapsed", time.Since(start)).
				Msg("request handled")
		}
	}
}

// RecoverMiddleware converts a panic in a handler into a 500 response
// instead of taking down the listener.
func RecoverMiddleware(log zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().
						Str("request_id", correlationIDFrom(r.Context())).
						Interface("panic", rec).
						Msg("recovered panic in handler")
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next(w, r)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
