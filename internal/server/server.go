// Package server exposes the top ten status, manual runs and the library
// import API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	tlog "github.com/treefix50/topten/internal/log"
)

const (
	maxBodyBytes    = 4 << 20
	shutdownTimeout = 5 * time.Second
)

type Options struct {
	Addr string
	CORS bool
	// RunLimit is the number of manual triggers allowed per RunWindow and IP.
	RunLimit  int
	RunWindow time.Duration
	Gatherer  prometheus.Gatherer
}

type Server struct {
	store  LibraryStore
	runner Runner
	config ConfigSource
	task   TaskInfo
	opts   Options
	logger zerolog.Logger
	http   *http.Server
}

func New(store LibraryStore, runner Runner, config ConfigSource, task TaskInfo, opts Options) *Server {
	if opts.RunWindow <= 0 {
		opts.RunWindow = time.Minute
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		store:  store,
		runner: runner,
		config: config,
		task:   task,
		opts:   opts,
		logger: tlog.WithComponent("http"),
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware(s.opts.CORS))
	r.Use(logMiddleware(s.logger))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/topten", s.handleStatus)
		r.With(runRateLimit(s.opts.RunLimit, s.opts.RunWindow)).Post("/topten/run", s.handleRun)
		r.Get("/topten/collection", s.handleCollection)

		r.Post("/items", s.handleSaveItems)
		r.Post("/users", s.handleCreateUser)
		r.Post("/users/{userID}/played/{itemID}", s.handleMarkPlayed)
	})
	return r
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("event", "http.listen").Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
