// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

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

	"github.com/aleczinn/loki-sub000/internal/config"
	"github.com/aleczinn/loki-sub000/internal/daemon"
	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded; the level is applied below.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "loki",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = resolveDefaultConfigPath()
	}

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}
	if !xglog.SetLevel(cfg.Log.Level) {
		logger.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, keeping info")
	}

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str(xglog.FieldPath, path).
		Str("listen", cfg.Server.Listen).
		Int("library_dirs", len(cfg.Library.Dirs)).
		Msg("configuration loaded")

	holder := config.NewHolder(loader, cfg)
	app, err := build(ctx, holder)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.failed").
			Msg("failed to initialize components")
	}

	mgr, err := daemon.NewManager(serverConfig(cfg), daemon.Deps{
		Logger:     xglog.WithComponent("daemon"),
		APIHandler: app.handler,
		Workers:    app.workers,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create daemon manager")
	}
	for _, h := range app.hooks {
		mgr.RegisterShutdownHook(h.name, h.fn)
	}

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Msg("starting loki")

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
	}
	logger.Info().Str(xglog.FieldEvent, "shutdown.complete").Msg("server exiting")
}

// resolveDefaultConfigPath picks ${LOKI_DATA_DIR}/config.yaml when it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv("LOKI_DATA_DIR"))
	if dataDir == "" {
		dataDir = config.Defaults().Streaming.DataDir
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
