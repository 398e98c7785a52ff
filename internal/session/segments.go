// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/metrics"
	"github.com/aleczinn/loki-sub000/internal/telemetry"
)

// SegmentFileName is the on-disk name of segment i inside a session directory.
func SegmentFileName(i int) string { return fmt.Sprintf("segment_%05d.ts", i) }

// GetSegment returns immediately: the ready segment, or a transcoding result
// after starting (or finding) its encode. A segment that failed twice returns
// ErrSegmentFailed. Look-ahead encodes are scheduled either way.
func (o *Orchestrator) GetSegment(ctx context.Context, sessionID string, index int) (SegmentResult, error) {
	s, err := o.segmentSession(sessionID, index)
	if err != nil {
		return SegmentResult{}, err
	}
	res, _, err := o.ensure(ctx, s, index)
	o.schedulePrefetch(s, index+1)
	return res, err
}

// AwaitSegment blocks until segment index is ready, its encode fails, or ctx
// ends. Concurrent callers share one encode and observe the same outcome.
func (o *Orchestrator) AwaitSegment(ctx context.Context, sessionID string, index int) (SegmentResult, error) {
	s, err := o.segmentSession(sessionID, index)
	if err != nil {
		return SegmentResult{}, err
	}
	res, j, err := o.ensure(ctx, s, index)
	o.schedulePrefetch(s, index+1)
	if err != nil || j == nil {
		return res, err
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return res, ctx.Err()
	case <-s.ctx.Done():
		return res, ErrSessionNotFound
	}
	if j.err != nil {
		return SegmentResult{Index: index, State: SegmentFailed}, fmt.Errorf("%w: segment %d: %w", ErrSegmentFailed, index, j.err)
	}
	return o.snapshot(s, index), nil
}

func (o *Orchestrator) segmentSession(sessionID string, index int) (*PlaySession, error) {
	s, err := o.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if s.IsDirectPlay() {
		return nil, ErrDirectPlay
	}
	if index < 0 || index >= s.TotalSegments() {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrSegmentOutOfRange, index, s.TotalSegments())
	}
	return s, nil
}

// ensure advances the state machine for one requested segment and returns
// the in-flight job when the segment is not ready yet.
func (o *Orchestrator) ensure(ctx context.Context, s *PlaySession, index int) (SegmentResult, *job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SegmentResult{}, nil, ErrSessionNotFound
	}

	seg := s.segments[index]
	res := SegmentResult{Index: index, Duration: s.Durations[index]}
	switch seg.state {
	case SegmentReady:
		res.State, res.Path = SegmentReady, seg.path
		return res, nil, nil
	case SegmentTranscoding:
		metrics.IncSegmentJoin()
		res.State = SegmentTranscoding
		return res, seg.job, nil
	case SegmentFailed:
		if seg.attempts >= maxAttempts {
			res.State = SegmentFailed
			return res, nil, fmt.Errorf("%w: segment %d after %d attempts: %w", ErrSegmentFailed, index, seg.attempts, seg.err)
		}
	}

	j := o.startLocked(ctx, s, index, false)
	res.State = SegmentTranscoding
	return res, j, nil
}

func (o *Orchestrator) snapshot(s *PlaySession, index int) SegmentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg := s.segments[index]
	return SegmentResult{Index: index, State: seg.state, Path: seg.path, Duration: s.Durations[index]}
}

// schedulePrefetch starts encodes for the next PrefetchSegments segments
// from index on that have never been attempted. It never waits: when no
// encode slot is free the look-ahead is skipped and retried on the next
// request.
func (o *Orchestrator) schedulePrefetch(s *PlaySession, from int) {
	n := int(o.prefetch.Load())
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i := from; i < from+n && i < len(s.segments); i++ {
		if seg := s.segments[i]; !prefetchable(seg) {
			continue
		}
		if !o.sem.TryAcquire(1) {
			metrics.IncSegmentPrefetch("skipped_busy")
			return
		}
		o.startLocked(context.Background(), s, i, true)
		metrics.IncSegmentPrefetch("started")
	}
}

// prefetchable is true only for absent segments. A failed segment keeps its
// retry for the next client request.
func prefetchable(seg *segment) bool {
	return seg.state == SegmentAbsent
}

// startLocked moves segment index to transcoding and launches its encode.
// s.mu must be held. When acquired is true the caller already holds an
// encode slot.
func (o *Orchestrator) startLocked(ctx context.Context, s *PlaySession, index int, acquired bool) *job {
	seg := s.segments[index]
	j := &job{done: make(chan struct{})}
	seg.state = SegmentTranscoding
	seg.attempts++
	seg.job = j
	seg.err = nil

	req := EncodeRequest{
		SessionID:       s.ID,
		Media:           s.Media,
		Plan:            s.Plan,
		Index:           index,
		Start:           s.segmentStart(index),
		Duration:        s.Durations[index],
		SegmentDuration: s.SegmentDuration,
		OutputPath:      filepath.Join(s.WorkDir, SegmentFileName(index)),
	}
	link := trace.LinkFromContext(ctx)
	attempt := seg.attempts

	s.wg.Add(1)
	go o.runJob(s, req, j, attempt, acquired, link)
	return j
}

func (o *Orchestrator) runJob(s *PlaySession, req EncodeRequest, j *job, attempt int, acquired bool, link trace.Link) {
	defer s.wg.Done()

	var err error
	start := time.Now()
	if !acquired {
		err = o.sem.Acquire(s.ctx, 1)
		acquired = err == nil
	}
	if acquired {
		defer o.sem.Release(1)
		err = o.encode(s, req, attempt, link)
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	seg := s.segments[req.Index]
	if err == nil {
		seg.state = SegmentReady
		seg.path = req.OutputPath
		seg.readyAt = o.now()
	} else {
		seg.state = SegmentFailed
		seg.err = err
	}
	seg.job = nil
	j.err = err
	close(j.done)
	s.mu.Unlock()

	log := o.logger.With().
		Str(xglog.FieldSessionID, s.ID).
		Int(xglog.FieldSegment, req.Index).
		Int(xglog.FieldAttempt, attempt).
		Int64(xglog.FieldDurationMS, elapsed.Milliseconds()).
		Logger()
	switch {
	case err == nil:
		metrics.ObserveSegmentEncode("ok", elapsed)
		log.Debug().Str(xglog.FieldEvent, "segment.ready").Msg("segment ready")
	case errors.Is(err, context.Canceled):
		metrics.ObserveSegmentEncode("canceled", elapsed)
		log.Debug().Str(xglog.FieldEvent, "segment.canceled").Msg("segment encode canceled")
	default:
		metrics.ObserveSegmentEncode("failed", elapsed)
		log.Warn().Err(err).Str(xglog.FieldEvent, "segment.failed").Msg("segment encode failed")
	}
}

func (o *Orchestrator) encode(s *PlaySession, req EncodeRequest, attempt int, link trace.Link) (err error) {
	ctx, span := o.tracer.Start(s.ctx, "segment.encode",
		trace.WithLinks(link),
		trace.WithAttributes(telemetry.SegmentAttributes(s.ID, s.Media.ID, req.Index, req.Start)...),
		trace.WithAttributes(attribute.Int("segment.attempt", attempt)),
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("segment encoder panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		return fmt.Errorf("segment dir: %w", err)
	}
	return o.encoder.EncodeSegment(ctx, req)
}

// EvictExpiredSegments removes ready segment files older than the retention
// window. Evicted segments return to absent and are re-encoded on demand.
func (o *Orchestrator) EvictExpiredSegments(now time.Time) int {
	if o.cfg.SegmentRetention <= 0 {
		return 0
	}
	evicted := 0
	for _, s := range o.byID.values() {
		var paths []string
		s.mu.Lock()
		if !s.closed {
			for _, seg := range s.segments {
				if seg.state == SegmentReady && now.Sub(seg.readyAt) > o.cfg.SegmentRetention {
					paths = append(paths, seg.path)
					seg.state, seg.path, seg.attempts = SegmentAbsent, "", 0
				}
			}
		}
		s.mu.Unlock()

		for _, p := range paths {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				o.logger.Warn().Err(err).Str(xglog.FieldPath, p).Msg("failed to evict segment file")
				continue
			}
			evicted++
			metrics.IncSegmentFileEvicted()
		}
	}
	return evicted
}
