package topten

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	tlog "github.com/treefix50/topten/internal/log"
)

// Phase is the orchestrator state of a run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExtractingMovies
	PhaseExtractingSeries
	PhaseReconciling
	PhaseDone
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseExtractingMovies:
		return "extracting_movies"
	case PhaseExtractingSeries:
		return "extracting_series"
	case PhaseReconciling:
		return "reconciling"
	case PhaseDone:
		return "done"
	case PhaseErrored:
		return "errored"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Run outcomes, used as the metrics label.
const (
	OutcomeSuccess       = "success"
	OutcomeFailed        = "failed"
	OutcomeCanceled      = "canceled"
	OutcomeConfigMissing = "config_missing"
	OutcomeConfigInvalid = "config_invalid"
)

// Progress checkpoints, in percent.
const (
	ProgressStart      = 0
	ProgressMoviesDone = 33
	ProgressSeriesDone = 66
	ProgressDone       = 100
)

type Progress interface {
	Report(percent float64)
}

type ProgressFunc func(percent float64)

func (f ProgressFunc) Report(percent float64) { f(percent) }

// MetricsRecorder receives run telemetry. The zero Task uses a no-op recorder.
type MetricsRecorder interface {
	ObservePhase(phase Phase, d time.Duration)
	RecordRanked(kind Kind, count int)
	IncExtractionFailure(kind Kind)
	RecordCollectionChanges(added, removed int)
	IncRun(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObservePhase(Phase, time.Duration) {}
func (nopRecorder) RecordRanked(Kind, int)            {}
func (nopRecorder) IncExtractionFailure(Kind)         {}
func (nopRecorder) RecordCollectionChanges(int, int)  {}
func (nopRecorder) IncRun(string)                     {}

// Result summarises one run.
type Result struct {
	Phase      Phase     `json:"phase"`
	Cutoff     time.Time `json:"cutoff"`
	Movies     RankedSet `json:"movies"`
	Series     RankedSet `json:"series"`
	Plan       Plan      `json:"plan"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Task computes the top movies and series and reconciles the collection.
type Task struct {
	Users      UserDirectory
	Movies     Strategy
	Series     Strategy
	Reconciler *Reconciler
	Logger     zerolog.Logger
	Metrics    MetricsRecorder
	Clock      func() time.Time
}

// NewTask wires the default strategies and reconciler over the given
// collaborators.
func NewTask(catalog Catalog, users UserDirectory, activity ActivityStore, collections CollectionStore, workers int, logger zerolog.Logger) *Task {
	extractor := NewExtractor(catalog, activity, workers)
	return &Task{
		Users:      users,
		Movies:     MovieStrategy{Extractor: extractor},
		Series:     SeriesStrategy{Extractor: extractor},
		Reconciler: NewReconciler(catalog, collections, logger),
		Logger:     logger,
	}
}

func (t *Task) Name() string     { return "Update Top Ten Collection" }
func (t *Task) Key() string      { return "UpdateTopTenCollection" }
func (t *Task) Category() string { return "Library" }

func (t *Task) Description() string {
	return "Creates or updates a collection containing the most watched movies and TV shows of the recent past."
}

// Execute runs one pass. Extraction failures shrink the ranking of the
// affected kind; missing configuration, a failed user listing, cancellation
// and reconciliation failures end the run with an error.
func (t *Task) Execute(ctx context.Context, cfg *Config, progress Progress) (Result, error) {
	if progress == nil {
		progress = ProgressFunc(func(float64) {})
	}
	metrics := t.metrics()
	now := t.now()
	res := Result{Phase: PhaseIdle, StartedAt: now}
	base := t.Logger
	if id := tlog.RunIDFromContext(ctx); id != "" {
		base = base.With().Str("run_id", id).Logger()
	}

	base.Info().Str("event", "topten.start").Msg("starting top ten collection update")
	progress.Report(ProgressStart)

	if cfg == nil {
		base.Error().Str("event", "topten.config_missing").Msg("configuration is missing")
		return t.finish(res, OutcomeConfigMissing), ErrConfigurationMissing
	}
	if err := cfg.Validate(); err != nil {
		base.Error().Err(err).Str("event", "topten.config_invalid").Msg("configuration is invalid")
		return t.finish(res, OutcomeConfigInvalid), err
	}

	res.Cutoff = cfg.Cutoff(now)
	logger := base.With().
		Str("collection", cfg.CollectionName).
		Int("top", cfg.TopItemCount).
		Time("cutoff", res.Cutoff).
		Logger()

	users, err := t.Users.ListUsers(ctx)
	if err != nil {
		logger.Error().Err(err).Str("event", "topten.users_failed").Msg("listing users failed")
		return t.finish(res, OutcomeFailed), fmt.Errorf("topten: list users: %w", err)
	}

	res.Phase = PhaseExtractingMovies
	res.Movies, err = t.extract(ctx, logger, t.Movies, users, res.Cutoff, cfg.TopItemCount)
	if err != nil {
		return t.finish(res, OutcomeCanceled), err
	}
	progress.Report(ProgressMoviesDone)

	res.Phase = PhaseExtractingSeries
	res.Series, err = t.extract(ctx, logger, t.Series, users, res.Cutoff, cfg.TopItemCount)
	if err != nil {
		return t.finish(res, OutcomeCanceled), err
	}
	progress.Report(ProgressSeriesDone)

	if err := ctx.Err(); err != nil {
		logger.Warn().Str("event", "topten.canceled").Msg("run canceled before reconciliation")
		return t.finish(res, OutcomeCanceled), err
	}

	res.Phase = PhaseReconciling
	start := time.Now()
	// Once started, reconciliation is not interrupted by cancellation.
	res.Plan, err = t.Reconciler.Reconcile(context.WithoutCancel(ctx), cfg.CollectionName, Desired(res.Movies, res.Series))
	metrics.ObservePhase(PhaseReconciling, time.Since(start))
	if err != nil {
		logger.Error().Err(err).Str("event", "topten.failed").Msg("error updating top ten collection")
		return t.finish(res, OutcomeFailed), err
	}
	metrics.RecordCollectionChanges(len(res.Plan.ToAdd), len(res.Plan.ToRemove))
	progress.Report(ProgressDone)

	res.Phase = PhaseDone
	logger.Info().
		Str("event", "topten.success").
		Int("movies", res.Movies.Len()).
		Int("series", res.Series.Len()).
		Int("added", len(res.Plan.ToAdd)).
		Int("removed", len(res.Plan.ToRemove)).
		Msg("top ten collection update completed")
	return t.finish(res, OutcomeSuccess), nil
}

// extract runs one strategy. It returns an error only when ctx is done, so
// callers can finish the run as canceled. Other failures are logged and
// yield an empty ranking.
func (t *Task) extract(ctx context.Context, logger zerolog.Logger, strategy Strategy, users []string, cutoff time.Time, n int) (RankedSet, error) {
	kind := strategy.Kind()
	phase := PhaseExtractingMovies
	if kind == KindSeries {
		phase = PhaseExtractingSeries
	}

	logger.Info().
		Str("event", "topten.extract").
		Str("kind", string(kind)).
		Int("users", len(users)).
		Msg("finding top items")

	start := time.Now()
	set, err := strategy.Top(ctx, users, cutoff, n)
	t.metrics().ObservePhase(phase, time.Since(start))
	if err != nil {
		// Only the run context ends the run. A collaborator timeout degrades the kind.
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn().Err(err).Str("event", "topten.canceled").Str("kind", string(kind)).Msg("extraction canceled")
			return RankedSet{Kind: kind}, ctxErr
		}
		var extractErr *ExtractionError
		if !errors.As(err, &extractErr) {
			extractErr = &ExtractionError{Kind: kind, Err: err}
		}
		logger.Error().Err(extractErr).Str("event", "topten.extract_failed").Str("kind", string(kind)).Msg("error getting top items")
		t.metrics().IncExtractionFailure(kind)
		set = RankedSet{Kind: kind, Items: []Item{}}
	}
	t.metrics().RecordRanked(kind, set.Len())
	return set, nil
}

func (t *Task) finish(res Result, outcome string) Result {
	if outcome != OutcomeSuccess {
		res.Phase = PhaseErrored
	}
	res.FinishedAt = t.now()
	t.metrics().IncRun(outcome)
	return res
}

func (t *Task) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}

func (t *Task) metrics() MetricsRecorder {
	if t.Metrics == nil {
		return nopRecorder{}
	}
	return t.Metrics
}
