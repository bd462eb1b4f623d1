package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	tlog "github.com/treefix50/topten/internal/log"
	"github.com/treefix50/topten/internal/topten"
)

const reloadDebounce = 500 * time.Millisecond

// Holder keeps the current configuration and reloads it when the file
// changes. A reload that fails to parse or validate keeps the old value.
type Holder struct {
	mu      sync.RWMutex
	current *AppConfig
	path    string
	logger  zerolog.Logger
}

func NewHolder(initial *AppConfig, path string) *Holder {
	return &Holder{
		current: initial,
		path:    path,
		logger:  tlog.WithComponent("config"),
	}
}

// Get returns a copy of the current configuration, or nil if none is loaded.
func (h *Holder) Get() *AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil
	}
	cfg := *h.current
	return &cfg
}

// TopTen returns the per-run settings, or nil if no configuration is loaded.
func (h *Holder) TopTen() *topten.Config {
	cfg := h.Get()
	if cfg == nil {
		return nil
	}
	out := cfg.Config
	return &out
}

// RefreshInterval falls back to the default when no configuration is loaded.
func (h *Holder) RefreshInterval() time.Duration {
	if cfg := h.TopTen(); cfg != nil && cfg.RefreshIntervalHours > 0 {
		return cfg.RefreshInterval()
	}
	return topten.DefaultRefreshIntervalHours * time.Hour
}

func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("failed to reload configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = &cfg
	h.mu.Unlock()

	ev := h.logger.Info().Str("event", "config.reload_success")
	if old != nil {
		ev = ev.
			Bool("collection_changed", old.CollectionName != cfg.CollectionName).
			Bool("interval_changed", old.RefreshIntervalHours != cfg.RefreshIntervalHours)
	}
	ev.Msg("configuration reloaded")
	return nil
}

// Watch reloads on writes to the config file until ctx is done. Without a
// file path it returns immediately.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("config file watcher disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.logger.Info().Str("event", "config.watcher_started").Str("path", h.path).Msg("watching config file for changes")

	target := filepath.Clean(h.path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				_ = h.Reload()
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}
