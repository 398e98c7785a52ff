// SPDX-License-Identifier: MIT

// Package library keeps probed media descriptors for playable files and
// invalidates them when the files change on disk.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/media"
	"github.com/aleczinn/loki-sub000/internal/metrics"
)

var (
	ErrNotFound    = errors.New("media not found")
	ErrUnsupported = errors.New("unsupported media file")
)

// DefaultExtensions are the file extensions AddDir considers.
var DefaultExtensions = []string{".mkv", ".mp4", ".m4v", ".mov", ".avi", ".ts", ".webm", ".flv", ".wmv", ".mp3", ".flac", ".m4a"}

// Prober extracts a descriptor from a media file. *media.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (media.MediaDescriptor, error)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithExtensions replaces the extension filter used by AddDir.
func WithExtensions(exts ...string) Option {
	return func(c *Catalog) {
		c.exts = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			e = strings.ToLower(e)
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			c.exts[e] = struct{}{}
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// Catalog maps media ids to descriptors of files that were added explicitly
// or found by AddDir.
type Catalog struct {
	prober Prober
	logger zerolog.Logger
	exts   map[string]struct{}
	probes singleflight.Group

	mu      sync.RWMutex
	byID    map[string]media.MediaDescriptor
	byPath  map[string]string // abs path -> id
	dirs    map[string]struct{}
	watcher *fsnotify.Watcher
}

// NewCatalog creates an empty catalog.
func NewCatalog(p Prober, opts ...Option) *Catalog {
	c := &Catalog{
		prober: p,
		logger: xglog.WithComponent("library"),
		byID:   make(map[string]media.MediaDescriptor),
		byPath: make(map[string]string),
		dirs:   make(map[string]struct{}),
	}
	WithExtensions(DefaultExtensions...)(c)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Add probes path and stores its descriptor. Concurrent adds of one path
// share a single probe.
func (c *Catalog) Add(ctx context.Context, path string) (media.MediaDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return media.MediaDescriptor{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	v, err, _ := c.probes.Do(abs, func() (any, error) {
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s is not a regular file", ErrUnsupported, abs)
		}
		d, err := c.prober.Probe(ctx, abs)
		if err != nil {
			metrics.IncLibraryProbe("error")
			return nil, fmt.Errorf("probe %s: %w", abs, err)
		}
		metrics.IncLibraryProbe("ok")
		if d.ID == "" {
			d.ID = media.IDForPath(abs)
		}
		if d.Path == "" {
			d.Path = abs
		}
		if d.SizeBytes == 0 {
			d.SizeBytes = info.Size()
		}
		c.store(d)
		return d, nil
	})
	if err != nil {
		return media.MediaDescriptor{}, err
	}
	return v.(media.MediaDescriptor), nil
}

func (c *Catalog) store(d media.MediaDescriptor) {
	dir := filepath.Dir(d.Path)

	c.mu.Lock()
	if old, ok := c.byPath[d.Path]; ok && old != d.ID {
		delete(c.byID, old)
	}
	c.byID[d.ID] = d
	c.byPath[d.Path] = d.ID
	_, known := c.dirs[dir]
	c.dirs[dir] = struct{}{}
	w := c.watcher
	c.mu.Unlock()

	if !known && w != nil {
		if err := w.Add(dir); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldPath, dir).Msg("failed to watch media dir")
		}
	}
}

// AddDir adds every file in dir (not recursive) whose extension passes the
// filter. Files resolving outside dir through symlinks are skipped. It
// returns the number of files added; per-file failures are logged.
func (c *Catalog) AddDir(ctx context.Context, dir string) (int, error) {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return 0, fmt.Errorf("resolve dir: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}

	added := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if e.IsDir() || !c.accepts(e.Name()) {
			continue
		}
		path := filepath.Join(root, e.Name())
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(root, resolved); err != nil || strings.HasPrefix(rel, "..") {
			c.logger.Warn().Str(xglog.FieldPath, path).Msg("skipping file outside media dir")
			continue
		}
		if _, err := c.Add(ctx, path); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldPath, path).Msg("failed to add media file")
			continue
		}
		added++
	}
	c.logger.Info().Str(xglog.FieldPath, root).Int("added", added).Msg("media dir indexed")
	return added, nil
}

func (c *Catalog) accepts(name string) bool {
	_, ok := c.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Get returns the descriptor for id.
func (c *Catalog) Get(id string) (media.MediaDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	if !ok {
		return media.MediaDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// Remove forgets the file at path and reports whether it was known.
func (c *Catalog) Remove(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byPath[abs]
	if !ok {
		return false
	}
	delete(c.byPath, abs)
	delete(c.byID, id)
	return true
}

// List returns all descriptors ordered by path.
func (c *Catalog) List() []media.MediaDescriptor {
	c.mu.RLock()
	out := make([]media.MediaDescriptor, 0, len(c.byID))
	for _, d := range c.byID {
		out = append(out, d)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of known media items.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
