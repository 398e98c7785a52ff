// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader(path string, env map[string]string) *Loader {
	l := NewLoader(path)
	l.logger = zerolog.Nop()
	l.env = envReader{
		logger: zerolog.Nop(),
		lookup: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	}
	return l
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
streaming:
  segmentDuration: 4s
  prefetchSegments: 5
library:
  dirs: [/media/movies, /media/shows]
hardware:
  override: vaapi
`)
	cfg, err := testLoader(path, nil).Load()
	require.NoError(t, err)

	assert.Equal(t, 4*time.Second, cfg.Streaming.SegmentDuration)
	assert.Equal(t, 5, cfg.Streaming.PrefetchSegments)
	assert.Equal(t, []string{"/media/movies", "/media/shows"}, cfg.Library.Dirs)
	assert.Equal(t, "vaapi", cfg.Hardware.Override)
	assert.Equal(t, Defaults().Streaming.SessionTTL, cfg.Streaming.SessionTTL, "absent keys keep defaults")
	assert.Equal(t, Defaults().Server.Listen, cfg.Server.Listen)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	path := writeConfig(t, "streaming:\n  segmentLength: 4s\n")
	_, err := testLoader(path, nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoad_EmptyAndMissingFile(t *testing.T) {
	cfg, err := testLoader(writeConfig(t, ""), nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)

	cfg, err = testLoader(filepath.Join(t.TempDir(), "absent.yaml"), nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "streaming:\n  prefetchSegments: 5\n")
	env := map[string]string{
		"LOKI_PREFETCH_SEGMENTS":      "1",
		"LOKI_PREFER_FRAGMENTED":      "yes",
		"LOKI_MEDIA_DIRS":             " /a, ,/b ",
		"LOKI_SESSION_TTL":            "10m",
		"LOKI_HWACCEL":                "nvenc",
		"LOKI_SEGMENT_DURATION":       "",
		"LOKI_MAX_CONCURRENT_ENCODES": "many",
		"LOG_LEVEL":                   "debug",
	}
	cfg, err := testLoader(path, env).Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Streaming.PrefetchSegments)
	assert.True(t, cfg.Streaming.PreferFragmented)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Library.Dirs)
	assert.Equal(t, 10*time.Minute, cfg.Streaming.SessionTTL)
	assert.Equal(t, "nvenc", cfg.Hardware.Override)
	assert.Equal(t, Defaults().Streaming.SegmentDuration, cfg.Streaming.SegmentDuration, "empty env is ignored")
	assert.Equal(t, Defaults().Streaming.MaxConcurrentEncodes, cfg.Streaming.MaxConcurrentEncodes, "invalid env is ignored")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"zero segment duration", func(c *AppConfig) { c.Streaming.SegmentDuration = 0 }, "streaming.segmentDuration"},
		{"negative prefetch", func(c *AppConfig) { c.Streaming.PrefetchSegments = -1 }, "streaming.prefetchSegments"},
		{"ttl shorter than segment", func(c *AppConfig) { c.Streaming.SessionTTL = time.Second }, "streaming.sessionTTL"},
		{"poll timeout below interval", func(c *AppConfig) { c.Streaming.PollTimeout = time.Millisecond }, "streaming.pollTimeout"},
		{"unknown backend", func(c *AppConfig) { c.Hardware.Override = "voodoo" }, "hardware.override"},
		{"no encodes", func(c *AppConfig) { c.Streaming.MaxConcurrentEncodes = 0 }, "streaming.maxConcurrentEncodes"},
		{"bad exporter", func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestHolder_ReloadKeepsLastGoodConfig(t *testing.T) {
	path := writeConfig(t, "streaming:\n  prefetchSegments: 2\n")
	loader := testLoader(path, nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(loader, initial)
	h.logger = zerolog.Nop()
	var seen atomic.Int32
	h.OnReload(func(c AppConfig) { seen.Store(int32(c.Streaming.PrefetchSegments)) })

	require.NoError(t, os.WriteFile(path, []byte("streaming:\n  prefetchSegments: 7\n"), 0o600))
	require.NoError(t, h.Reload())
	assert.Equal(t, 7, h.Current().Streaming.PrefetchSegments)
	assert.EqualValues(t, 7, seen.Load())

	require.NoError(t, os.WriteFile(path, []byte("streaming:\n  prefetchSegments: -4\n"), 0o600))
	require.Error(t, h.Reload())
	assert.Equal(t, 7, h.Current().Streaming.PrefetchSegments)
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "streaming:\n  prefetchSegments: 2\n")
	loader := testLoader(path, nil)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(loader, initial)
	h.logger = zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("streaming:\n  prefetchSegments: 9\n"), 0o600))
	require.Eventually(t, func() bool {
		return h.Current().Streaming.PrefetchSegments == 9
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestHolder_WatchWithoutFile(t *testing.T) {
	h := NewHolder(testLoader("", nil), Defaults())
	h.logger = zerolog.Nop()
	require.NoError(t, h.Watch(context.Background()))
}
