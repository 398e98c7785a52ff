// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// Holder keeps the active configuration and reloads it when the file changes.
type Holder struct {
	loader *Loader
	logger zerolog.Logger

	mu        sync.RWMutex
	current   AppConfig
	listeners []func(AppConfig)
}

// NewHolder wraps an already loaded configuration.
func NewHolder(loader *Loader, initial AppConfig) *Holder {
	return &Holder{loader: loader, logger: xglog.WithComponent("config"), current: initial}
}

// Current returns the active configuration.
func (h *Holder) Current() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to run with every successfully reloaded config.
func (h *Holder) OnReload(fn func(AppConfig)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// Reload re-reads the configuration. An invalid config is rejected and the
// active one kept.
func (h *Holder) Reload() error {
	cfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("config reload rejected")
		return err
	}
	h.mu.Lock()
	h.current = cfg
	listeners := append(([]func(AppConfig))(nil), h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// Watch reloads on file changes until ctx ends. It watches the parent
// directory so editors that replace the file are followed. With no config
// file it returns immediately.
func (h *Holder) Watch(ctx context.Context) error {
	path := h.loader.path
	if path == "" {
		h.logger.Info().Str(xglog.FieldEvent, "config.watcher_disabled").Msg("no config file; watcher disabled")
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.logger.Info().Str(xglog.FieldEvent, "config.watcher_started").Str(xglog.FieldPath, abs).Msg("watching config file")

	var (
		debounce *time.Timer
		fire     = make(chan struct{}, 1)
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			_ = h.Reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}
