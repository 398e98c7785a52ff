// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"

	"github.com/aleczinn/loki-sub000/internal/hardware"
)

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks cross-field constraints. All violations are returned
// joined.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	s := cfg.Streaming
	if cfg.Server.Listen == "" {
		add("server.listen", "must not be empty")
	}
	if cfg.Server.RateLimitRPS < 0 {
		add("server.rateLimitRPS", "must not be negative")
	}
	if s.DataDir == "" {
		add("streaming.dataDir", "must not be empty")
	}
	if s.SegmentDuration <= 0 {
		add("streaming.segmentDuration", "must be positive, got %s", s.SegmentDuration)
	}
	if s.PrefetchSegments < 0 {
		add("streaming.prefetchSegments", "must not be negative, got %d", s.PrefetchSegments)
	}
	if s.SessionTTL < s.SegmentDuration {
		add("streaming.sessionTTL", "%s is shorter than one segment (%s)", s.SessionTTL, s.SegmentDuration)
	}
	if s.SegmentRetention < 0 {
		add("streaming.segmentRetention", "must not be negative")
	}
	if s.MaxConcurrentEncodes <= 0 {
		add("streaming.maxConcurrentEncodes", "must be positive, got %d", s.MaxConcurrentEncodes)
	}
	if s.PollInterval <= 0 {
		add("streaming.pollInterval", "must be positive")
	}
	if s.PollTimeout < s.PollInterval {
		add("streaming.pollTimeout", "%s is shorter than the poll interval %s", s.PollTimeout, s.PollInterval)
	}
	if o := cfg.Hardware.Override; o != "" {
		if _, ok := hardware.ParseBackend(o); !ok {
			add("hardware.override", "unknown backend %q", o)
		}
	}
	if cfg.FFmpeg.Bin == "" {
		add("ffmpeg.bin", "must not be empty")
	}
	if t := cfg.Telemetry; t.Enabled {
		if t.Exporter != "grpc" && t.Exporter != "http" {
			add("telemetry.exporter", "must be grpc or http, got %q", t.Exporter)
		}
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			add("telemetry.samplingRate", "must be within [0,1]")
		}
	}
	return errors.Join(errs...)
}
