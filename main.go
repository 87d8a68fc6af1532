package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/steam/config"
	"github.com/pthm-cable/steam/engine"
	"github.com/pthm-cable/steam/stream"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	serve := flag.String("serve", "", "Stream snapshots over websocket on this address (overrides stream.address)")
	realtime := flag.Bool("realtime", false, "Pace steps to wall-clock time instead of running flat out")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Stream.Address
	if *serve != "" {
		addr = *serve
	}
	var srv *stream.Server
	if addr != "" {
		srv = stream.NewServer()
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				slog.Error("stream server failed", "error", err)
				stop()
			}
		}()
	}

	e, err := engine.New(cfg, engine.Options{
		Seed:           rngSeed,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		OutputDir:      *outputDir,
		Stream:         srv,
	})
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := e.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()

	dt := e.ClampDT(cfg.Physics.DT)
	slog.Info("starting simulation",
		"seed", rngSeed,
		"dt", dt,
		"capacity", cfg.Pool.Capacity,
		"max_ticks", *maxTicks,
		"realtime", *realtime,
		"stream", addr,
	)

	var ticker *time.Ticker
	if *realtime {
		ticker = time.NewTicker(time.Duration(dt * float64(time.Second)))
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
		if ctx.Err() != nil {
			slog.Info("interrupted", "tick", e.Tick(), "sim_time", e.SimTime())
			return
		}

		e.Update(dt)

		if *maxTicks > 0 && int(e.Tick()) >= *maxTicks {
			slog.Info("max ticks reached",
				"tick", e.Tick(),
				"sim_time", e.SimTime(),
				"active", e.ActiveCount(),
			)
			return
		}
	}
}
