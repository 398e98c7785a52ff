// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 30 * time.Second
)

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return c
}

// Worker is a background loop that runs until its context ends. A worker
// returning early is logged and does not stop the daemon.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

// Deps contains the dependencies of a Manager.
type Deps struct {
	Logger     zerolog.Logger
	APIHandler http.Handler
	Workers    []Worker
}

// Validate checks that required dependencies are present.
func (d Deps) Validate() error {
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
