// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// envReader reads typed overrides and logs where each value came from.
// Secrets are reported as set without their value.
type envReader struct {
	logger zerolog.Logger
	lookup func(string) (string, bool)
}

func newEnvReader(logger zerolog.Logger) envReader {
	return envReader{logger: logger, lookup: os.LookupEnv}
}

func (e envReader) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e envReader) used(key, value string) {
	lower := strings.ToLower(key)
	ev := e.logger.Debug().Str("key", key).Str("source", "environment")
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") {
		ev.Bool("sensitive", true).Msg("using environment variable")
		return
	}
	ev.Str("value", value).Msg("using environment variable")
}

func (e envReader) invalid(key, value, kind string) {
	e.logger.Warn().Str("key", key).Str("value", value).Msgf("invalid %s in environment variable, keeping configured value", kind)
}

func (e envReader) String(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		e.used(key, v)
		*dst = v
	}
}

func (e envReader) Int(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "integer")
		return
	}
	e.used(key, v)
	*dst = i
}

func (e envReader) Float(key string, dst *float64) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(key, v, "number")
		return
	}
	e.used(key, v)
	*dst = f
}

// Bool accepts true/false, 1/0 and yes/no in any case.
func (e envReader) Bool(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		e.invalid(key, v, "boolean")
		return
	}
	e.used(key, v)
}

func (e envReader) Duration(key string, dst *time.Duration) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(key, v, "duration")
		return
	}
	e.used(key, v)
	*dst = d
}

// List splits a comma separated value, dropping empty items.
func (e envReader) List(key string, dst *[]string) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	e.used(key, v)
	*dst = out
}

func (e envReader) apply(cfg *AppConfig) {
	e.String("LOKI_LISTEN", &cfg.Server.Listen)
	e.Int("LOKI_RATE_LIMIT_RPS", &cfg.Server.RateLimitRPS)

	e.List("LOKI_MEDIA_DIRS", &cfg.Library.Dirs)

	e.String("LOKI_DATA_DIR", &cfg.Streaming.DataDir)
	e.Duration("LOKI_SEGMENT_DURATION", &cfg.Streaming.SegmentDuration)
	e.Int("LOKI_PREFETCH_SEGMENTS", &cfg.Streaming.PrefetchSegments)
	e.Duration("LOKI_SESSION_TTL", &cfg.Streaming.SessionTTL)
	e.Duration("LOKI_SWEEP_INTERVAL", &cfg.Streaming.SweepInterval)
	e.Duration("LOKI_SEGMENT_RETENTION", &cfg.Streaming.SegmentRetention)
	e.Bool("LOKI_PREFER_FRAGMENTED", &cfg.Streaming.PreferFragmented)
	e.Int("LOKI_MAX_CONCURRENT_ENCODES", &cfg.Streaming.MaxConcurrentEncodes)
	e.Duration("LOKI_POLL_INTERVAL", &cfg.Streaming.PollInterval)
	e.Duration("LOKI_POLL_TIMEOUT", &cfg.Streaming.PollTimeout)

	e.String("LOKI_HWACCEL", &cfg.Hardware.Override)
	e.Duration("LOKI_HWACCEL_PROBE_TIMEOUT", &cfg.Hardware.ProbeTimeout)
	e.String("LOKI_VAAPI_DEVICE", &cfg.Hardware.VAAPIDevice)

	e.String("LOKI_FFMPEG_BIN", &cfg.FFmpeg.Bin)
	e.String("LOKI_FFPROBE_BIN", &cfg.FFmpeg.ProbeBin)
	e.Duration("LOKI_STALL_TIMEOUT", &cfg.FFmpeg.StallTimeout)

	e.String("LOKI_REDIS_ADDR", &cfg.Capabilities.RedisAddr)
	e.String("LOKI_REDIS_PASSWORD", &cfg.Capabilities.RedisPassword)
	e.Duration("LOKI_CAPABILITY_TTL", &cfg.Capabilities.TTL)

	e.Bool("LOKI_TRACING_ENABLED", &cfg.Telemetry.Enabled)
	e.String("LOKI_TRACING_EXPORTER", &cfg.Telemetry.Exporter)
	e.String("LOKI_TRACING_ENDPOINT", &cfg.Telemetry.Endpoint)
	e.Float("LOKI_TRACING_SAMPLING_RATE", &cfg.Telemetry.SamplingRate)

	e.String("LOG_LEVEL", &cfg.Log.Level)
}
