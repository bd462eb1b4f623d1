// Package config loads the service configuration from YAML and environment.
//
// Precedence is ENV > file > defaults. The top ten settings are handed to
// each run as an immutable copy.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/treefix50/topten/internal/topten"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

type AppConfig struct {
	topten.Config `yaml:",inline"`

	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Scan     ScanConfig     `yaml:"scan"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	CacheSize   int           `yaml:"cache_size"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RunOnStart triggers one update right after startup.
	RunOnStart bool `yaml:"run_on_start"`
	// CORS allows browser clients from any origin.
	CORS bool `yaml:"cors"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type ScanConfig struct {
	Workers int `yaml:"workers"`
}

func Defaults() AppConfig {
	return AppConfig{
		Config: topten.DefaultConfig(),
		Database: DatabaseConfig{
			Path:        "./data/topten.db",
			BusyTimeout: 5 * time.Second,
			CacheSize:   -2000,
		},
		Server: ServerConfig{Addr: ":8096"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Scan: ScanConfig{Workers: topten.DefaultWorkers},
	}
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *AppConfig) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return err
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *AppConfig, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("TOPTEN_COLLECTION_NAME", &cfg.CollectionName)
	num("TOPTEN_TOP_ITEM_COUNT", &cfg.TopItemCount)
	num("TOPTEN_REFRESH_INTERVAL_HOURS", &cfg.RefreshIntervalHours)
	num("TOPTEN_DAYS_TO_CONSIDER", &cfg.DaysToConsider)
	str("TOPTEN_DB_PATH", &cfg.Database.Path)
	str("TOPTEN_LISTEN_ADDR", &cfg.Server.Addr)
	str("TOPTEN_LOG_LEVEL", &cfg.Log.Level)
	str("TOPTEN_LOG_FILE", &cfg.Log.File)
	num("TOPTEN_SCAN_WORKERS", &cfg.Scan.Workers)
	flag("TOPTEN_RUN_ON_START", &cfg.Server.RunOnStart)
	flag("TOPTEN_CORS", &cfg.Server.CORS)

	if len(errs) > 0 {
		return fmt.Errorf("environment: %w", errors.Join(errs...))
	}
	return nil
}

func Validate(cfg AppConfig) error {
	var errs []error
	if err := cfg.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is empty"))
	}
	if cfg.Database.BusyTimeout < 0 {
		errs = append(errs, errors.New("database.busy_timeout is negative"))
	}
	if cfg.Scan.Workers < 0 {
		errs = append(errs, errors.New("scan.workers is negative"))
	}
	return errors.Join(errs...)
}
