package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treefix50/topten/internal/topten"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, topten.DefaultConfig(), cfg.Config)
	assert.Equal(t, ":8096", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
collection_name: Weekly Hits
top_item_count: 5
days_to_consider: 7
database:
  path: /tmp/hits.db
  busy_timeout: 2s
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Weekly Hits", cfg.CollectionName)
	assert.Equal(t, 5, cfg.TopItemCount)
	assert.Equal(t, 7, cfg.DaysToConsider)
	assert.Equal(t, topten.DefaultRefreshIntervalHours, cfg.RefreshIntervalHours)
	assert.Equal(t, "/tmp/hits.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "colection_name: typo\n")
	_, err := Load(path)
	require.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "\n"))
	require.NoError(t, err)
	assert.Equal(t, topten.DefaultCollectionName, cfg.CollectionName)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "top_item_count: 5\n")
	t.Setenv("TOPTEN_TOP_ITEM_COUNT", "3")
	t.Setenv("TOPTEN_COLLECTION_NAME", " From Env ")
	t.Setenv("TOPTEN_RUN_ON_START", "true")
	t.Setenv("TOPTEN_CORS", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TopItemCount)
	assert.Equal(t, "From Env", cfg.CollectionName)
	assert.True(t, cfg.Server.RunOnStart)
	assert.True(t, cfg.Server.CORS)
}

func TestLoadServerCORS(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  cors: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Server.CORS)
	assert.False(t, Defaults().Server.CORS)
}

func TestEnvRejectsMalformedNumbers(t *testing.T) {
	env := map[string]string{"TOPTEN_DAYS_TO_CONSIDER": "thirty", "TOPTEN_CORS": "maybe"}
	cfg := Defaults()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOPTEN_DAYS_TO_CONSIDER")
	assert.Contains(t, err.Error(), "TOPTEN_CORS")
	assert.Equal(t, topten.DefaultDaysToConsider, cfg.DaysToConsider)
	assert.False(t, cfg.Server.CORS)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))

	cfg.TopItemCount = -1
	cfg.Database.Path = " "
	err := Validate(cfg)
	require.ErrorIs(t, err, topten.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "database.path")
}

func TestHolderReloadKeepsOldValueOnError(t *testing.T) {
	path := writeConfig(t, "top_item_count: 4\n")
	initial, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(&initial, path)

	require.NoError(t, os.WriteFile(path, []byte("top_item_count: [\n"), 0o600))
	require.Error(t, h.Reload())
	assert.Equal(t, 4, h.TopTen().TopItemCount)

	require.NoError(t, os.WriteFile(path, []byte("top_item_count: 6\nrefresh_interval_hours: 2\n"), 0o600))
	require.NoError(t, h.Reload())
	assert.Equal(t, 6, h.TopTen().TopItemCount)
	assert.Equal(t, 2*time.Hour, h.RefreshInterval())
}

func TestHolderCopiesAreIndependent(t *testing.T) {
	initial := Defaults()
	h := NewHolder(&initial, "")

	cfg := h.TopTen()
	cfg.CollectionName = "mutated"
	assert.Equal(t, topten.DefaultCollectionName, h.TopTen().CollectionName)
}

func TestHolderWithoutConfig(t *testing.T) {
	h := NewHolder(nil, "")
	assert.Nil(t, h.Get())
	assert.Nil(t, h.TopTen())
	assert.Equal(t, 24*time.Hour, h.RefreshInterval())
}
