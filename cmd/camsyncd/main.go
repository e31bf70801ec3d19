// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fieldrig/camsyncd/internal/api"
	"github.com/fieldrig/camsyncd/internal/capture"
	"github.com/fieldrig/camsyncd/internal/clocksync"
	"github.com/fieldrig/camsyncd/internal/config"
	"github.com/fieldrig/camsyncd/internal/coordinator"
	"github.com/fieldrig/camsyncd/internal/diskman"
	"github.com/fieldrig/camsyncd/internal/health"
	"github.com/fieldrig/camsyncd/internal/liveness"
	cslog "github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/offload"
	"github.com/fieldrig/camsyncd/internal/registry"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the real config is loaded.
	cslog.Configure(cslog.Config{
		Level:   "info",
		Service: "camsyncd",
		Version: version,
	})
	logger := cslog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise ${CAMSYNC_DATA_DIR}/config.yaml
	// when present, so rig-provisioned config survives restarts.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("CAMSYNC_DATA_DIR", "/var/lib/camsyncd"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	cslog.Configure(cslog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	logger.Info().
		Str("event", "config.loaded").
		Str(cslog.FieldCameraID, cfg.CameraID).
		Str("position", cfg.Position).
		Bool("master", cfg.IsMaster()).
		Str("config_path", effectiveConfigPath).
		Msg("configuration loaded")

	for _, dir := range []string{cfg.DataDir, cfg.SpoolDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to create data directory")
		}
	}

	// Peer registry: persisted table first, then config seeds for roles the
	// table does not know yet.
	reg := registry.New(cfg.DataDir)
	if err := reg.Load(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load peer registry")
	}
	if err := reg.Seed(cfg.Peers); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed peer registry")
	}

	// Clock tracking: the master serves time, followers sample it.
	var tracker *clocksync.Tracker
	switch {
	case cfg.IsMaster():
		tracker = clocksync.NewMaster(cfg.MaxOffsetMS)
		logger.Info().Msg("acting as clock master")
	case cfg.MasterAddr == "":
		tracker = clocksync.New(nil, cfg.MaxOffsetMS)
		logger.Warn().Msg("no master address configured, clock sync runs simulated")
	default:
		sampler := clocksync.NewHTTPSampler(cfg.MasterAddr, cfg.StatusTimeout)
		tracker = clocksync.New(sampler, cfg.MaxOffsetMS)
	}
	// Runs in every mode so sync status always carries a measurement time;
	// on the master and in simulated mode it just refreshes the stamp.
	tracker.Run(ctx, cfg.SyncInterval)

	// The capture driver is an external collaborator; the built-in fake
	// serves until a hardware driver is linked in.
	driver := capture.Driver(capture.NewFake())
	disk := diskman.NewLocal(cfg.SpoolDir)

	coord := coordinator.New(cfg, reg, tracker, driver, disk)

	// Offload pipeline with crash resume, plus the spool watcher that feeds it.
	uploader := offload.NewServerClient(cfg.ServerBaseURL, cfg.UploadTimeout)
	pipeline := offload.New(disk, uploader, cfg.DataDir, cfg.MaxRetries, cfg.RetryBaseDelay)
	if err := pipeline.Load(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load offload job table")
	}
	pipeline.Start(ctx)

	watcher := offload.NewWatcher(cfg.SpoolDir, cfg.SettleWindow, pipeline)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("spool watcher stopped")
		}
	}()

	// Liveness polling of registered peers.
	monitor := liveness.New(reg, cfg.LivenessInterval, cfg.StatusTimeout)
	monitor.Start(ctx)

	healthMgr := health.NewManager(cfg.Version)
	healthMgr.RegisterChecker(health.NewCaptureChecker(driver, cfg.MaxTempC))
	healthMgr.RegisterChecker(health.NewClockChecker(tracker))
	healthMgr.RegisterChecker(health.NewStorageChecker(disk, cfg.MinFreeBytes))
	if cfg.IsMaster() {
		healthMgr.RegisterChecker(health.NewPeerChecker(reg))
	}

	server := api.New(cfg, coord, reg, tracker, pipeline, healthMgr)
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}

	logger.Info().Msg("shutdown complete")
}
