// Command worldreport reads the hamlet tick log without advancing it.
//
//	worldreport status [-text]
//	worldreport chart [-dir DIR] [-from N] [-to N]
//	worldreport export -out FILE
//	worldreport serve [-port N]
//
// Every subcommand also accepts -config and -db.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/hamlet/internal/api"
	"github.com/talgya/hamlet/internal/config"
	"github.com/talgya/hamlet/internal/persistence"
	"github.com/talgya/hamlet/internal/report"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: worldreport <status|chart|export|serve> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "path to hamlet.yaml")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")

	var run func(ctx context.Context, cfg config.Config, db *persistence.DB) error
	switch cmd {
	case "status":
		text := fs.Bool("text", false, "render for a terminal instead of writing JSON")
		run = func(ctx context.Context, cfg config.Config, db *persistence.DB) error {
			return runStatus(ctx, cfg, db, *text)
		}
	case "chart":
		dir := fs.String("dir", "", "output directory (overrides config chart_dir)")
		from := fs.Int64("from", 0, "first tick index")
		to := fs.Int64("to", 1<<63-1, "last tick index")
		run = func(ctx context.Context, cfg config.Config, db *persistence.DB) error {
			if *dir != "" {
				cfg.ChartDir = *dir
			}
			return runChart(ctx, cfg, db, *from, *to)
		}
	case "export":
		out := fs.String("out", "", "output file (.jsonl.zst)")
		run = func(ctx context.Context, cfg config.Config, db *persistence.DB) error {
			if *out == "" {
				return errors.New("export: -out is required")
			}
			return runExport(ctx, db, *out)
		}
	case "serve":
		port := fs.Int("port", 0, "listen port (overrides config api.port)")
		run = func(ctx context.Context, cfg config.Config, db *persistence.DB) error {
			if *port != 0 {
				cfg.API.Port = *port
			}
			return runServe(ctx, cfg, db)
		}
	default:
		usage()
	}
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worldreport: config: %v\n", err)
		os.Exit(2)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := persistence.Open(cfg.DBPath, cfg.BusyTimeout())
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	err = run(ctx, cfg, db)
	db.Close()
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func runStatus(ctx context.Context, cfg config.Config, db *persistence.DB, text bool) error {
	now := time.Now()
	st, err := report.BuildStatus(ctx, db, cfg.RecentWindow, now)
	if err != nil {
		return err
	}
	if text {
		fmt.Println(report.RenderText(st, now))
		return nil
	}
	if err := report.WriteStatusFile(cfg.StatusPath, st); err != nil {
		return err
	}
	fmt.Println(cfg.StatusPath)
	return nil
}

func runChart(ctx context.Context, cfg config.Config, db *persistence.DB, from, to int64) error {
	ticks, err := db.Ticks(ctx, from, to, 0)
	if err != nil {
		return err
	}
	paths, err := report.WriteCharts(cfg.ChartDir, ticks)
	if errors.Is(err, report.ErrNoData) {
		fmt.Fprintln(os.Stderr, "no ticks recorded yet")
		return nil
	}
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func runExport(ctx context.Context, db *persistence.DB, out string) error {
	ticks, err := db.Ticks(ctx, 0, 1<<63-1, 0)
	if err != nil {
		return err
	}
	if err := report.ExportFile(out, ticks); err != nil {
		return err
	}
	fmt.Printf("%d ticks written to %s\n", len(ticks), out)
	return nil
}

func runServe(ctx context.Context, cfg config.Config, db *persistence.DB) error {
	limiter := api.NewRateLimiter(cfg.API.RatePerSec, cfg.API.Burst)
	srv := api.NewServer(db, cfg.API.Port, cfg.RecentWindow, limiter)
	return srv.ListenAndServe(ctx)
}
