package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// runRateLimit limits manual run triggers per client IP.
func runRateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeError(w, "too many requests", http.StatusTooManyRequests)
		}),
	)
}
