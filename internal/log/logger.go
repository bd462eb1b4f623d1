// Package log configures the process-wide zerolog logger.
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stdout)
	Service string    // optional service name attached to every entry
	File    *FileConfig
}

// FileConfig enables a rotating log file next to Output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	mu         sync.Mutex
	configured bool
	base       zerolog.Logger
	fileWriter *lumberjack.Logger
)

// Configure sets up the global logger. The first call wins; later calls are
// ignored so packages can log before main has parsed its flags.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if configured {
		return
	}
	configured = true

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}
	if cfg.File != nil && cfg.File.Path != "" {
		fileWriter = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		writer = io.MultiWriter(writer, fileWriter)
	}

	service := cfg.Service
	if service == "" {
		service = "topten"
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Logger()
}

func logger() zerolog.Logger {
	Configure(Config{})
	mu.Lock()
	defer mu.Unlock()
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

type ctxKey struct{}

// ContextWithRunID stores a run id for WithComponentFromContext.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithComponentFromContext is WithComponent plus the run id carried by ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := WithComponent(component)
	if id := RunIDFromContext(ctx); id != "" {
		l = l.With().Str("run_id", id).Logger()
	}
	return l
}

// Close flushes and closes the rotating file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}
