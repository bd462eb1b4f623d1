package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treefix50/topten/internal/scheduler"
	"github.com/treefix50/topten/internal/storage"
	"github.com/treefix50/topten/internal/topten"
)

type fakeRunner struct {
	status  scheduler.Status
	err     error
	trigger int
}

func (f *fakeRunner) Trigger() (string, error) {
	f.trigger++
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

func (f *fakeRunner) Status() scheduler.Status { return f.status }

type staticConfig struct{ cfg *topten.Config }

func (s staticConfig) TopTen() *topten.Config { return s.cfg }

type taskInfo struct{}

func (taskInfo) Name() string        { return "Update Top Ten Collection" }
func (taskInfo) Key() string         { return "UpdateTopTenCollection" }
func (taskInfo) Category() string    { return "Library" }
func (taskInfo) Description() string { return "test" }

type fixture struct {
	store  *storage.Store
	runner *fakeRunner
	cfg    *topten.Config
	h      http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:", storage.Options{BusyTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := topten.DefaultConfig()
	f := &fixture{store: store, runner: &fakeRunner{}, cfg: &cfg}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	f.h = New(store, f.runner, staticConfig{cfg: f.cfg}, taskInfo{}, opts).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.status = scheduler.Status{Running: true, RunID: "abc", Progress: 33}

	rec := f.do(t, http.MethodGet, "/api/topten", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Key    string           `json:"key"`
		Config topten.Config    `json:"config"`
		Status scheduler.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UpdateTopTenCollection", body.Key)
	assert.Equal(t, topten.DefaultCollectionName, body.Config.CollectionName)
	assert.True(t, body.Status.Running)
	assert.InDelta(t, 33, body.Status.Progress, 0)
}

func TestRunTrigger(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"in flight", scheduler.ErrAlreadyRunning, http.StatusConflict},
		{"stopped", scheduler.ErrNotStarted, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.runner.err = tt.err
			rec := f.do(t, http.MethodPost, "/api/topten/run", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRunTriggerRateLimited(t *testing.T) {
	f := newFixture(t, Options{RunLimit: 2, RunWindow: time.Minute})
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/topten/run", "").Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/topten/run", "").Code)

	rec := f.do(t, http.MethodPost, "/api/topten/run", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, f.runner.trigger)
}

func TestImportAndPlayback(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/items", `[
		{"id":"m1","name":"Heat","kind":"movie","path":"/movies/heat.mkv"},
		{"id":"s1","name":"Dark","kind":"series"},
		{"id":"e1","name":"Secrets","kind":"episode","parentId":"s1"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/items", `[{"id":"c","name":"C","kind":"collection"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users", `{"id":"u1","name":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/users", `{"name":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var existing storage.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &existing))
	assert.Equal(t, "u1", existing.ID)

	rec = f.do(t, http.MethodPost, "/api/users/u1/played/e1?datePlayed=2026-02-20T10:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	activity, ok, err := f.store.GetActivity(ctx, "u1", "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC), activity.LastPlayed)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/users/ghost/played/e1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/users/u1/played/ghost", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/users/u1/played/e1?datePlayed=yesterday", "").Code)
}

func TestCollection(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/topten/collection", "").Code)

	require.NoError(t, f.store.SaveItems(ctx, []storage.MediaItem{
		{Item: topten.Item{ID: "m1", Name: "Heat", Kind: topten.KindMovie}},
	}))
	coll, err := f.store.CreateCollection(ctx, f.cfg.CollectionName, true)
	require.NoError(t, err)
	require.NoError(t, f.store.AddToCollection(ctx, coll.ID, []string{"m1"}))

	rec := f.do(t, http.MethodGet, "/api/topten/collection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body collectionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, coll.ID, body.Collection.ID)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "m1", body.Items[0].ID)
}

func TestCollectionWithoutConfig(t *testing.T) {
	f := newFixture(t, Options{})
	h := New(f.store, f.runner, staticConfig{}, taskInfo{}, Options{Gatherer: prometheus.NewRegistry()}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/topten/collection", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, Options{CORS: true})

		rec := f.do(t, http.MethodOptions, "/api/topten/run", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Zero(t, f.runner.trigger)

		rec = f.do(t, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(t, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
