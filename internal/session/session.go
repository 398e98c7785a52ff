// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aleczinn/loki-sub000/internal/decision"
	"github.com/aleczinn/loki-sub000/internal/media"
)

// PlaySession is one viewer's playback of one media item at one profile.
// Identity fields are immutable after creation.
type PlaySession struct {
	ID              string
	ClientToken     string
	Media           media.MediaDescriptor
	Profile         string
	Plan            decision.StreamPlan
	SegmentDuration float64
	Durations       []float64
	WorkDir         string
	CreatedAt       time.Time

	key    string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // running encodes

	lastAccess atomic.Int64 // unix nanos

	mu       sync.Mutex
	closed   bool
	position float64
	segments []*segment
}

type segment struct {
	state    SegmentState
	attempts int
	job      *job
	path     string
	err      error
	readyAt  time.Time
}

// job is one in-flight encode; joiners wait on done and then read err.
type job struct {
	done chan struct{}
	err  error
}

// TotalSegments is ceil(duration / segment duration), or 0 for direct play.
func (s *PlaySession) TotalSegments() int { return len(s.Durations) }

// IsDirectPlay reports whether the source is served unmodified.
func (s *PlaySession) IsDirectPlay() bool { return s.Plan.Mode == decision.ModeDirectPlay }

// LastAccess returns the time of the most recent request touching the session.
func (s *PlaySession) LastAccess() time.Time { return time.Unix(0, s.lastAccess.Load()) }

func (s *PlaySession) touch(now time.Time) { s.lastAccess.Store(now.UnixNano()) }

// Position returns the last reported playback position in seconds.
func (s *PlaySession) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SegmentState returns the state of segment i.
func (s *PlaySession) SegmentState(i int) SegmentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.segments) {
		return SegmentAbsent
	}
	return s.segments[i].state
}

// ReadyCount returns how many segments are materialized.
func (s *PlaySession) ReadyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, seg := range s.segments {
		if seg.state == SegmentReady {
			n++
		}
	}
	return n
}

// segmentIndexAt maps a position to its segment, clamped to the last one.
func (s *PlaySession) segmentIndexAt(pos float64) int {
	n := len(s.Durations)
	// Compare as float: converting a huge quotient to int overflows.
	q := pos / s.SegmentDuration
	if q >= float64(n) {
		return max(n-1, 0)
	}
	if q < 0 {
		return 0
	}
	return int(q)
}

func (s *PlaySession) segmentStart(i int) float64 {
	return float64(i) * s.SegmentDuration
}
