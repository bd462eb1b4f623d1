package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/treefix50/topten/internal/config"
	tlog "github.com/treefix50/topten/internal/log"
	"github.com/treefix50/topten/internal/metrics"
	"github.com/treefix50/topten/internal/scheduler"
	"github.com/treefix50/topten/internal/server"
	"github.com/treefix50/topten/internal/storage"
	"github.com/treefix50/topten/internal/topten"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (optional)")
		addr       = flag.String("addr", "", "listen address (overrides config)")
		once       = flag.Bool("once", false, "run a single update and exit")
	)
	flag.Parse()

	if err := run(*configPath, *addr, *once); err != nil {
		logger := tlog.Base()
		logger.Error().Err(err).Str("event", "main.exit").Msg("topten exited with error")
		_ = tlog.Close()
		os.Exit(1)
	}
	_ = tlog.Close()
}

func run(configPath, addr string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logCfg := tlog.Config{Level: cfg.Log.Level}
	if cfg.Log.File != "" {
		logCfg.File = &tlog.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	tlog.Configure(logCfg)
	logger := tlog.WithComponent("main")

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	store, err := storage.Open(cfg.Database.Path, storage.Options{
		BusyTimeout: cfg.Database.BusyTimeout,
		CacheSize:   cfg.Database.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	holder := config.NewHolder(&cfg, configPath)
	recorder := metrics.New(nil)

	task := topten.NewTask(store, store, store, store, cfg.Scan.Workers, tlog.WithComponent("topten"))
	task.Reconciler.Logger = tlog.WithComponent("collection")
	task.Metrics = recorder

	runTask := func(ctx context.Context, progress topten.Progress) (topten.Result, error) {
		runCfg := holder.TopTen()
		if runCfg != nil {
			recorder.SetTopItemCount(runCfg.TopItemCount)
		}
		return task.Execute(ctx, runCfg, progress)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		runCtx := tlog.ContextWithRunID(ctx, uuid.NewString())
		res, err := runTask(runCtx, nil)
		if err != nil {
			return err
		}
		logger.Info().
			Str("event", "main.once_done").
			Int("added", len(res.Plan.ToAdd)).
			Int("removed", len(res.Plan.ToRemove)).
			Msg("single run finished")
		return nil
	}

	sched := scheduler.New(runTask, holder.RefreshInterval, scheduler.Options{RunOnStart: cfg.Server.RunOnStart})
	srv := server.New(store, sched, holder, task, server.Options{
		Addr:      cfg.Server.Addr,
		CORS:      cfg.Server.CORS,
		RunLimit:  5,
		RunWindow: time.Minute,
	})

	logger.Info().
		Str("event", "main.start").
		Str("addr", cfg.Server.Addr).
		Str("db", cfg.Database.Path).
		Str("collection", cfg.CollectionName).
		Msg("starting topten")

	g, gctx := errgroup.WithContext(ctx)
	sched.Start(gctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return holder.Watch(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Str("event", "main.stopped").Msg("shutdown complete")
	return nil
}
