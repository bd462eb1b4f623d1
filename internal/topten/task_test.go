package topten

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) Report(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

type countingRecorder struct {
	nopRecorder
	runs     []string
	failures []Kind
}

func (c *countingRecorder) IncRun(outcome string)          { c.runs = append(c.runs, outcome) }
func (c *countingRecorder) IncExtractionFailure(kind Kind) { c.failures = append(c.failures, kind) }

func newTestTask(lib *fakeLibrary) *Task {
	task := NewTask(lib, lib, lib, lib, 2, zerolog.Nop())
	task.Reconciler.RetryDelay = 0
	task.Clock = func() time.Time { return testNow }
	return task
}

func seededLibrary() *fakeLibrary {
	lib := newFakeLibrary().add(
		movie("m1"), movie("m2"), movie("m3"),
		series("s1"), episode("s1e1", "s1"), episode("s1e2", "s1"),
		series("s2"), episode("s2e1", "s2"),
	)
	recent := testNow.Add(-24 * time.Hour)
	lib.play("u1", "m1", recent)
	lib.play("u2", "m1", recent)
	lib.play("u1", "m2", recent)
	lib.play("u1", "s1e1", recent)
	lib.play("u1", "s1e2", recent)
	lib.play("u2", "s2e1", recent)
	return lib
}

func TestExecuteFullRun(t *testing.T) {
	lib := seededLibrary()
	task := newTestTask(lib)
	progress := &progressLog{}
	cfg := DefaultConfig()

	res, err := task.Execute(context.Background(), &cfg, progress)

	require.NoError(t, err)
	assert.Equal(t, PhaseDone, res.Phase)
	assert.Equal(t, []float64{0, 33, 66, 100}, progress.values)
	assert.Equal(t, []string{"m1", "m2"}, itemIDs(res.Movies.Items))
	assert.Equal(t, []string{"s1", "s2"}, itemIDs(res.Series.Items))
	assert.Equal(t, testNow.Add(-30*24*time.Hour), res.Cutoff)
	assert.Equal(t, []string{"m1", "m2", "s1", "s2"}, lib.members[res.Plan.CollectionID])
}

func TestExecuteMissingConfiguration(t *testing.T) {
	lib := seededLibrary()
	task := newTestTask(lib)
	progress := &progressLog{}

	res, err := task.Execute(context.Background(), nil, progress)

	require.ErrorIs(t, err, ErrConfigurationMissing)
	assert.Equal(t, PhaseErrored, res.Phase)
	assert.Equal(t, []float64{0}, progress.values)
	assert.Zero(t, lib.listCalls)
	assert.Empty(t, lib.createCalls)
	assert.Empty(t, lib.addCalls)
}

func TestExecuteInvalidConfiguration(t *testing.T) {
	lib := seededLibrary()
	cfg := DefaultConfig()
	cfg.TopItemCount = -1

	_, err := newTestTask(lib).Execute(context.Background(), &cfg, nil)

	require.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Zero(t, lib.listCalls)
}

func TestExecuteDegradesOnExtractionFailure(t *testing.T) {
	lib := seededLibrary()
	lib.failList[KindMovie] = errors.New("catalog timeout")
	task := newTestTask(lib)
	rec := &countingRecorder{}
	task.Metrics = rec
	progress := &progressLog{}
	cfg := DefaultConfig()

	res, err := task.Execute(context.Background(), &cfg, progress)

	require.NoError(t, err)
	assert.Empty(t, res.Movies.Items)
	assert.Equal(t, []string{"s1", "s2"}, itemIDs(res.Series.Items))
	assert.Equal(t, []Kind{KindMovie}, rec.failures)
	assert.Equal(t, []string{OutcomeSuccess}, rec.runs)
	assert.Equal(t, []float64{0, 33, 66, 100}, progress.values)
}

func TestExecuteDegradesOnCollaboratorDeadline(t *testing.T) {
	lib := seededLibrary()
	lib.failGet = fmt.Errorf("activity query: %w", context.DeadlineExceeded)
	task := newTestTask(lib)
	rec := &countingRecorder{}
	task.Metrics = rec
	progress := &progressLog{}
	cfg := DefaultConfig()

	res, err := task.Execute(context.Background(), &cfg, progress)

	require.NoError(t, err)
	assert.Equal(t, PhaseDone, res.Phase)
	assert.Empty(t, res.Movies.Items)
	assert.Empty(t, res.Series.Items)
	assert.Equal(t, []Kind{KindMovie, KindSeries}, rec.failures)
	assert.Equal(t, []string{OutcomeSuccess}, rec.runs)
	assert.Equal(t, []float64{0, 33, 66, 100}, progress.values)
}

func TestExecuteReconcileFailurePropagates(t *testing.T) {
	lib := seededLibrary()
	boom := errors.New("write failed")
	lib.failAdd = []error{boom, boom, boom}
	progress := &progressLog{}
	cfg := DefaultConfig()

	res, err := newTestTask(lib).Execute(context.Background(), &cfg, progress)

	var recErr *ReconcileError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, PhaseErrored, res.Phase)
	assert.Equal(t, []float64{0, 33, 66}, progress.values)
}

func TestExecuteCanceledSkipsReconciliation(t *testing.T) {
	lib := seededLibrary()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultConfig()

	res, err := newTestTask(lib).Execute(ctx, &cfg, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseErrored, res.Phase)
	assert.Empty(t, lib.createCalls)
	assert.Empty(t, lib.addCalls)
	assert.Empty(t, lib.removeCalls)
}

func TestExecuteZeroTopCountEmptiesCollection(t *testing.T) {
	lib := seededLibrary().add(Item{ID: "c1", Name: DefaultCollectionName, Kind: KindCollection})
	lib.members["c1"] = []string{"m3"}
	cfg := DefaultConfig()
	cfg.TopItemCount = 0

	res, err := newTestTask(lib).Execute(context.Background(), &cfg, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, res.Plan.ToRemove)
	assert.Empty(t, lib.members["c1"])
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "reconciling", PhaseReconciling.String())
	text, err := PhaseDone.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "done", string(text))
}
