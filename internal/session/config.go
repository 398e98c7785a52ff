// SPDX-License-Identifier: MIT

package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aleczinn/loki-sub000/internal/hardware"
)

// Config tunes segment production and session lifetime.
type Config struct {
	WorkDir              string
	SegmentDuration      time.Duration
	PrefetchSegments     int
	SessionTTL           time.Duration
	MaxConcurrentEncodes int64
	// SegmentRetention removes ready segment files older than this; they are
	// re-encoded on demand. Zero keeps files for the session's lifetime.
	SegmentRetention time.Duration
	// StopTimeout bounds how long destroying a session waits for its encodes.
	StopTimeout time.Duration
}

const (
	DefaultSegmentDuration      = 6 * time.Second
	DefaultPrefetchSegments     = 3
	DefaultSessionTTL           = 5 * time.Minute
	DefaultMaxConcurrentEncodes = 4
	defaultStopTimeout          = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = DefaultSegmentDuration
	}
	if c.PrefetchSegments < 0 {
		c.PrefetchSegments = 0
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxConcurrentEncodes <= 0 {
		c.MaxConcurrentEncodes = DefaultMaxConcurrentEncodes
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaultStopTimeout
	}
	return c
}

// HardwareInfo exposes the cached detection result.
type HardwareInfo interface {
	Info() hardware.Info
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Planner Planner
	Encoder SegmentEncoder
	Logger  *zerolog.Logger
	Clock   func() time.Time
	NewID   func() string
}
