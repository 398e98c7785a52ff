// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/aleczinn/loki-sub000/internal/api"
	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/config"
	"github.com/aleczinn/loki-sub000/internal/daemon"
	"github.com/aleczinn/loki-sub000/internal/ffmpeg"
	"github.com/aleczinn/loki-sub000/internal/hardware"
	"github.com/aleczinn/loki-sub000/internal/library"
	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/media"
	"github.com/aleczinn/loki-sub000/internal/poll"
	"github.com/aleczinn/loki-sub000/internal/session"
	"github.com/aleczinn/loki-sub000/internal/telemetry"
	"github.com/aleczinn/loki-sub000/internal/version"
)

type hook struct {
	name string
	fn   daemon.ShutdownHook
}

type application struct {
	handler http.Handler
	workers []daemon.Worker
	hooks   []hook // run in reverse order on shutdown
}

// build constructs every component from the current config. On error the
// hooks registered so far are run so partial state is released.
func build(ctx context.Context, holder *config.Holder) (app *application, err error) {
	cfg := holder.Current()
	logger := xglog.WithComponent("daemon")
	app = &application{}
	defer func() {
		if err != nil {
			for i := len(app.hooks) - 1; i >= 0; i-- {
				_ = app.hooks[i].fn(context.WithoutCancel(ctx))
			}
			app = nil
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetryConfig(cfg))
	if err != nil {
		return app, fmt.Errorf("telemetry: %w", err)
	}
	app.hooks = append(app.hooks, hook{"telemetry", tp.Shutdown})

	detector := hardware.NewDetector(hardwareConfig(cfg), hardware.WithLogger(xglog.WithComponent("hardware")))
	info := detector.Detect(ctx)
	logger.Info().
		Str(xglog.FieldEvent, "hardware.detected").
		Str("preferred", string(info.Preferred)).
		Int("available", len(info.Available)).
		Msg("encoding backends detected")

	regOpts := []capabilities.RegistryOption{capabilities.WithLogger(xglog.WithComponent("capabilities"))}
	if cfg.Capabilities.RedisAddr != "" {
		store, err := capabilities.NewRedisStore(capabilities.RedisConfig{
			Addr:     cfg.Capabilities.RedisAddr,
			Password: cfg.Capabilities.RedisPassword,
			DB:       cfg.Capabilities.RedisDB,
			TTL:      cfg.Capabilities.TTL,
		}, xglog.WithComponent("capabilities"))
		if err != nil {
			// Capabilities are re-registered by clients; memory-only is a degraded but valid mode.
			logger.Warn().Err(err).
				Str(xglog.FieldEvent, "capabilities.store_unavailable").
				Msg("redis store unavailable, keeping capabilities in memory")
		} else {
			regOpts = append(regOpts, capabilities.WithStore(store))
			app.hooks = append(app.hooks, hook{"capability-store", func(context.Context) error { return store.Close() }})
		}
	}
	registry := capabilities.NewRegistry(regOpts...)

	prober := media.NewProber(cfg.FFmpeg.ProbeBin, xglog.WithComponent("probe"))
	catOpts := []library.Option{library.WithLogger(xglog.WithComponent("library"))}
	if len(cfg.Library.Extensions) > 0 {
		catOpts = append(catOpts, library.WithExtensions(cfg.Library.Extensions...))
	}
	catalog := library.NewCatalog(prober, catOpts...)
	for _, dir := range cfg.Library.Dirs {
		n, err := catalog.AddDir(ctx, dir)
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldPath, dir).Msg("library directory scan failed")
			continue
		}
		logger.Info().Str(xglog.FieldPath, dir).Int("files", n).Msg("library directory scanned")
	}
	if cfg.Library.Watch && len(cfg.Library.Dirs) > 0 {
		app.workers = append(app.workers, daemon.Worker{Name: "library-watch", Run: catalog.Watch})
	}

	planner := session.NewDecisionPlanner(detector, cfg.Streaming.PreferFragmented)
	encoder := ffmpeg.NewSegmentEncoder(detector, ffmpeg.NewRunner(cfg.FFmpeg.Bin, cfg.FFmpeg.StallTimeout))
	sessionLogger := xglog.WithComponent("session")
	orch, err := session.NewOrchestrator(sessionConfig(cfg), session.Deps{
		Planner: planner,
		Encoder: encoder,
		Logger:  &sessionLogger,
	})
	if err != nil {
		return app, fmt.Errorf("sessions: %w", err)
	}
	app.hooks = append(app.hooks, hook{"sessions", orch.Close})

	sweeper := &session.Sweeper{Orch: orch, Interval: cfg.Streaming.SweepInterval}
	app.workers = append(app.workers,
		daemon.Worker{Name: "session-sweeper", Run: func(ctx context.Context) error {
			sweeper.Run(ctx)
			return nil
		}},
		daemon.Worker{Name: "config-watch", Run: holder.Watch},
	)

	holder.OnReload(func(next config.AppConfig) {
		planner.SetPreferFragmented(next.Streaming.PreferFragmented)
		orch.SetPrefetchSegments(next.Streaming.PrefetchSegments)
		xglog.SetLevel(next.Log.Level)
	})

	srv, err := api.New(apiConfig(cfg), api.Deps{
		Media:        catalog,
		Capabilities: registry,
		Planner:      planner,
		Sessions:     orch,
		Hardware:     detector,
	})
	if err != nil {
		return app, fmt.Errorf("api: %w", err)
	}
	app.handler = srv.Handler()
	return app, nil
}

func telemetryConfig(cfg config.AppConfig) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "loki",
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	}
}

func hardwareConfig(cfg config.AppConfig) hardware.Config {
	return hardware.Config{
		FFmpegBin:    cfg.FFmpeg.Bin,
		VAAPIDevice:  cfg.Hardware.VAAPIDevice,
		ProbeTimeout: cfg.Hardware.ProbeTimeout,
		Override:     cfg.Hardware.Override,
	}
}

func sessionConfig(cfg config.AppConfig) session.Config {
	return session.Config{
		WorkDir:              filepath.Join(cfg.Streaming.DataDir, "sessions"),
		SegmentDuration:      cfg.Streaming.SegmentDuration,
		PrefetchSegments:     cfg.Streaming.PrefetchSegments,
		SessionTTL:           cfg.Streaming.SessionTTL,
		MaxConcurrentEncodes: int64(cfg.Streaming.MaxConcurrentEncodes),
		SegmentRetention:     cfg.Streaming.SegmentRetention,
	}
}

func apiConfig(cfg config.AppConfig) api.Config {
	c := api.Config{
		RateLimitRPS:  cfg.Server.RateLimitRPS,
		EnableMetrics: true,
		EnableLogging: true,
		Poll: poll.Options{
			Interval: cfg.Streaming.PollInterval,
			Timeout:  cfg.Streaming.PollTimeout,
		},
	}
	if cfg.Telemetry.Enabled {
		c.TracingService = "loki/http"
	}
	return c
}

func serverConfig(cfg config.AppConfig) daemon.ServerConfig {
	return daemon.ServerConfig{
		ListenAddr:        cfg.Server.Listen,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}
}
