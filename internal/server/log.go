package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func logMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusResponseWriter(w)
			next.ServeHTTP(sw, r)

			status := sw.Status()
			ev := logger.Info()
			if status >= http.StatusInternalServerError {
				ev = logger.Error()
			} else if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				ev = logger.Debug()
			}
			ev.Str("event", "http.request").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", sw.bytes).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
