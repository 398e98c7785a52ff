// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStalled is returned when an encode stops reporting progress.
var ErrStalled = errors.New("ffmpeg stalled: no progress")

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// WatchState is the watchdog's view of the encode.
type WatchState int

const (
	StateStarting WatchState = iota
	StateRunning
	StateStalled
	StateTimedOut
	StateCompleted
)

// Watchdog fails an encode that never starts reporting progress within
// startTimeout, or that stops advancing for longer than stallTimeout.
type Watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration
	interval     time.Duration

	lastOutTime   time.Duration
	lastTotalSize int64
	lastHeartbeat time.Time
	state         WatchState

	clock clock
}

// NewWatchdog creates a watchdog. Zero timeouts disable the matching check.
func NewWatchdog(startTimeout, stallTimeout time.Duration) *Watchdog {
	interval := time.Second
	for _, d := range []time.Duration{startTimeout, stallTimeout} {
		if d > 0 && d/4 < interval {
			interval = max(d/4, 10*time.Millisecond)
		}
	}
	return &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		interval:     interval,
		clock:        realClock{},
	}
}

// Run blocks until ctx ends (nil) or a timeout trips (ErrStalled).
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.lastHeartbeat = w.clock.Now()
	w.state = StateStarting
	w.mu.Unlock()

	t := w.clock.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			if err := w.check(); err != nil {
				return err
			}
		}
	}
}

// Observe records a progress block. Only advancing output counts as a heartbeat.
func (w *Watchdog) Observe(p Progress) {
	w.mu.Lock()
	defer w.mu.Unlock()

	advanced := false
	if p.OutTime > w.lastOutTime {
		w.lastOutTime = p.OutTime
		advanced = true
	}
	if p.TotalSize > w.lastTotalSize {
		w.lastTotalSize = p.TotalSize
		advanced = true
	}
	if advanced {
		w.lastHeartbeat = w.clock.Now()
		if w.state == StateStarting {
			w.state = StateRunning
		}
	}
	if p.Done {
		w.state = StateCompleted
	}
}

func (w *Watchdog) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clock.Now().Sub(w.lastHeartbeat)
	switch w.state {
	case StateStarting:
		if w.startTimeout > 0 && elapsed > w.startTimeout {
			w.state = StateTimedOut
			return ErrStalled
		}
	case StateRunning:
		if w.stallTimeout > 0 && elapsed > w.stallTimeout {
			w.state = StateStalled
			return ErrStalled
		}
	}
	return nil
}

// State returns the current watchdog state.
func (w *Watchdog) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
