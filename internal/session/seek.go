// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"fmt"
	"math"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
)

// Seek maps a position in seconds to the segment containing it and starts
// producing that segment and its look-ahead without waiting. Positions past
// the end clamp to the last segment.
func (o *Orchestrator) Seek(ctx context.Context, sessionID string, seconds float64) (SeekResult, error) {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return SeekResult{}, fmt.Errorf("%w: %v", ErrInvalidPosition, seconds)
	}
	s, err := o.Session(sessionID)
	if err != nil {
		return SeekResult{}, err
	}
	if s.IsDirectPlay() {
		return SeekResult{}, ErrDirectPlay
	}

	target := s.segmentIndexAt(seconds)
	s.mu.Lock()
	s.position = seconds
	s.mu.Unlock()

	if _, _, err := o.ensure(ctx, s, target); err != nil {
		o.logger.Debug().Err(err).
			Str(xglog.FieldSessionID, s.ID).
			Int(xglog.FieldSegment, target).
			Msg("seek target not started")
	}
	o.schedulePrefetch(s, target+1)
	return SeekResult{TargetSegment: target, SegmentStart: s.segmentStart(target)}, nil
}

// ReportProgress records the client's playback position and returns the
// segment it is in and the one it will need next.
func (o *Orchestrator) ReportProgress(sessionID string, position float64) (ProgressResult, error) {
	if position < 0 || math.IsNaN(position) || math.IsInf(position, 0) {
		return ProgressResult{}, fmt.Errorf("%w: %v", ErrInvalidPosition, position)
	}
	s, err := o.Session(sessionID)
	if err != nil {
		return ProgressResult{}, err
	}
	if s.IsDirectPlay() {
		return ProgressResult{CurrentSegment: -1, NextSegment: -1}, nil
	}

	s.mu.Lock()
	s.position = position
	s.mu.Unlock()

	cur := s.segmentIndexAt(position)
	next := cur + 1
	if next >= s.TotalSegments() {
		next = -1
	} else {
		o.schedulePrefetch(s, next)
	}
	return ProgressResult{CurrentSegment: cur, NextSegment: next}, nil
}
