// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/metrics"
)

const reprobeDebounce = 500 * time.Millisecond

var errWatching = errors.New("library watcher already running")

// Watch follows the directories of known media until ctx ends. Removed or
// renamed files are dropped; written files are dropped and re-probed once
// writes settle; new files matching the extension filter are added.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	c.mu.Lock()
	if c.watcher != nil {
		c.mu.Unlock()
		_ = w.Close()
		return errWatching
	}
	c.watcher = w
	dirs := make([]string, 0, len(c.dirs))
	for d := range c.dirs {
		dirs = append(dirs, d)
	}
	c.mu.Unlock()

	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldPath, d).Msg("failed to watch media dir")
		}
	}
	c.logger.Info().Str(xglog.FieldEvent, "library.watch.start").Int("dirs", len(dirs)).Msg("watching media dirs")

	var (
		timersMu sync.Mutex
		timers   = map[string]*time.Timer{}
		pending  sync.WaitGroup
	)
	reprobe := func(path string) {
		timersMu.Lock()
		defer timersMu.Unlock()
		if t, ok := timers[path]; ok && t.Stop() {
			pending.Done()
		}
		pending.Add(1)
		timers[path] = time.AfterFunc(reprobeDebounce, func() {
			defer pending.Done()
			timersMu.Lock()
			delete(timers, path)
			timersMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if _, err := c.Add(ctx, path); err != nil {
				c.logger.Warn().Err(err).Str(xglog.FieldPath, path).Msg("re-probe failed")
			}
		})
	}

	defer func() {
		c.mu.Lock()
		c.watcher = nil
		c.mu.Unlock()
		_ = w.Close()

		timersMu.Lock()
		for path, t := range timers {
			if t.Stop() {
				pending.Done()
			}
			delete(timers, path)
		}
		timersMu.Unlock()
		pending.Wait()
		c.logger.Info().Str(xglog.FieldEvent, "library.watch.stop").Msg("media dir watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			c.handle(ev, reprobe)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Error().Err(err).Str(xglog.FieldEvent, "library.watch.error").Msg("media dir watcher error")
		}
	}
}

func (c *Catalog) handle(ev fsnotify.Event, reprobe func(string)) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if c.Remove(path) {
			metrics.IncLibraryInvalidation()
			c.logger.Info().Str(xglog.FieldPath, path).Msg("media file removed")
		}
	case ev.Has(fsnotify.Write):
		if c.Remove(path) {
			metrics.IncLibraryInvalidation()
		}
		if c.accepts(path) {
			reprobe(path)
		}
	case ev.Has(fsnotify.Create):
		if c.accepts(path) {
			reprobe(path)
		}
	}
}
