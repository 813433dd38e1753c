// Command worldtick advances the hamlet simulation by exactly one tick.
// It is meant to be run from cron or a systemd timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/hamlet/internal/config"
	"github.com/talgya/hamlet/internal/engine"
	"github.com/talgya/hamlet/internal/entropy"
	"github.com/talgya/hamlet/internal/persistence"
	"github.com/talgya/hamlet/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to hamlet.yaml")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worldtick: config: %v\n", err)
		os.Exit(2)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := cfg.NewLogger().With("invocation", uuid.NewString())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.DBPath, cfg.BusyTimeout())
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// ── Driver ────────────────────────────────────────────────────────
	d := engine.NewDriver(db)
	d.Params = cfg.Params()
	d.Seed = cfg.Seed
	if client := entropy.NewClient(cfg.Entropy.RandomOrgKey); client.Enabled() {
		d.Seed = 0
		d.Entropy = client
		logger.Info("using random.org entropy")
	} else if d.Seed == 0 {
		// A fresh seed still lets this one tick be replayed from the log.
		d.Seed = entropy.CryptoSeed()
		logger.Info("fresh tick seed", "seed", d.Seed)
	}

	if cfg.TickLogDir != "" {
		tl := persistence.NewTickLog(cfg.TickLogDir)
		defer tl.Close()
		d.Journal = tl
	}

	start := time.Now()
	rec, err := d.Tick(ctx)
	if err != nil {
		logger.Error("tick failed", "error", err)
		db.Close()
		os.Exit(1)
	}

	logger.Debug("invocation finished", "tick", rec.TickIndex, "elapsed", time.Since(start))

	// The status file is a convenience view; failing to refresh it does not
	// fail the tick.
	if cfg.StatusPath != "" {
		st, err := report.BuildStatus(ctx, db, cfg.RecentWindow, time.Now())
		if err == nil {
			err = report.WriteStatusFile(cfg.StatusPath, st)
		}
		if err != nil {
			logger.Warn("status refresh failed", "path", cfg.StatusPath, "error", err)
		}
	}
}
