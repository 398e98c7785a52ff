// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleczinn/loki-sub000/internal/media"
)

type fakeProber struct {
	mu    sync.Mutex
	calls map[string]int
	gate  chan struct{}
	err   error
}

func newFakeProber() *fakeProber { return &fakeProber{calls: map[string]int{}} }

func (p *fakeProber) Probe(ctx context.Context, path string) (media.MediaDescriptor, error) {
	p.mu.Lock()
	p.calls[path]++
	gate, err := p.gate, p.err
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return media.MediaDescriptor{}, ctx.Err()
		}
	}
	if err != nil {
		return media.MediaDescriptor{}, err
	}
	return media.MediaDescriptor{
		ID:        media.IDForPath(path),
		Path:      path,
		Container: media.ContainerFromPath(path),
		Duration:  60,
	}, nil
}

func (p *fakeProber) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

func newTestCatalog(p Prober) *Catalog {
	return NewCatalog(p, WithLogger(zerolog.Nop()))
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestCatalog_AddGetRemove(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "movie.mkv")
	writeFile(t, path)
	c := newTestCatalog(newFakeProber())

	d, err := c.Add(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, media.IDForPath(path), d.ID)
	assert.EqualValues(t, 5, d.SizeBytes)

	got, err := c.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	assert.True(t, c.Remove(path))
	assert.False(t, c.Remove(path))
	_, err = c.Get(d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_AddFailures(t *testing.T) {
	dir := tempDir(t)
	p := newFakeProber()
	c := newTestCatalog(p)

	_, err := c.Add(context.Background(), filepath.Join(dir, "missing.mkv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = c.Add(context.Background(), dir)
	assert.ErrorIs(t, err, ErrUnsupported)

	path := filepath.Join(dir, "broken.mkv")
	writeFile(t, path)
	p.err = media.ErrNoPlayableStreams
	_, err = c.Add(context.Background(), path)
	assert.ErrorIs(t, err, media.ErrNoPlayableStreams)
	assert.Zero(t, c.Len())
}

func TestCatalog_ConcurrentAddProbesOnce(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "movie.mp4")
	writeFile(t, path)
	p := newFakeProber()
	p.gate = make(chan struct{})
	c := newTestCatalog(p)

	const callers = 8
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Add(context.Background(), path)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return p.Calls(path) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	assert.Equal(t, 1, p.Calls(path))
	assert.Equal(t, 1, c.Len())
}

func TestCatalog_AddDir(t *testing.T) {
	dir := tempDir(t)
	outside := tempDir(t)
	writeFile(t, filepath.Join(dir, "a.mkv"))
	writeFile(t, filepath.Join(dir, "b.MP4"))
	writeFile(t, filepath.Join(dir, "notes.txt"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mkv"), 0o755))
	writeFile(t, filepath.Join(outside, "escape.mkv"))
	require.NoError(t, os.Symlink(filepath.Join(outside, "escape.mkv"), filepath.Join(dir, "link.mkv")))

	c := newTestCatalog(newFakeProber())
	n, err := c.AddDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, filepath.Join(dir, "a.mkv"), list[0].Path)
	assert.Equal(t, filepath.Join(dir, "b.MP4"), list[1].Path)

	_, err = c.AddDir(context.Background(), filepath.Join(dir, "nope"))
	assert.Error(t, err)
}

func TestCatalog_WithExtensions(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, filepath.Join(dir, "a.mkv"))
	writeFile(t, filepath.Join(dir, "b.ts"))

	c := NewCatalog(newFakeProber(), WithLogger(zerolog.Nop()), WithExtensions("ts"))
	n, err := c.AddDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCatalog_WatchInvalidatesAndReprobes(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "movie.mkv")
	writeFile(t, path)
	p := newFakeProber()
	c := newTestCatalog(p)
	d, err := c.Add(context.Background(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.watcher != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, err := c.Get(d.ID)
		return errors.Is(err, ErrNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	fresh := filepath.Join(dir, "fresh.mp4")
	writeFile(t, fresh)
	require.Eventually(t, func() bool {
		_, err := c.Get(media.IDForPath(fresh))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
