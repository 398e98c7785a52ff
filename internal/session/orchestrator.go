// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/aleczinn/loki-sub000/internal/decision"
	xglog "github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/metrics"
	"github.com/aleczinn/loki-sub000/internal/telemetry"
)

// Orchestrator owns every PlaySession of the process.
type Orchestrator struct {
	cfg     Config
	segDur  float64
	planner Planner
	encoder SegmentEncoder
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
	tracer  trace.Tracer

	byID    *shardedMap[*PlaySession]
	byTuple *shardedMap[*PlaySession]
	create  singleflight.Group
	sem     *semaphore.Weighted

	prefetch atomic.Int64

	baseCtx context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
}

// NewOrchestrator creates an orchestrator. The work directory is created if missing.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if deps.Planner == nil || deps.Encoder == nil {
		return nil, fmt.Errorf("session: planner and encoder are required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("session: work dir is required")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create work dir: %w", err)
	}

	o := &Orchestrator{
		cfg:     cfg,
		segDur:  cfg.SegmentDuration.Seconds(),
		planner: deps.Planner,
		encoder: deps.Encoder,
		logger:  xglog.WithComponent("session"),
		now:     time.Now,
		newID:   uuid.NewString,
		tracer:  telemetry.Tracer("loki/session"),
		byID:    newShardedMap[*PlaySession](),
		byTuple: newShardedMap[*PlaySession](),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentEncodes),
	}
	if deps.Logger != nil {
		o.logger = *deps.Logger
	}
	if deps.Clock != nil {
		o.now = deps.Clock
	}
	if deps.NewID != nil {
		o.newID = deps.NewID
	}
	o.prefetch.Store(int64(cfg.PrefetchSegments))
	o.baseCtx, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

// SetPrefetchSegments changes the look-ahead depth at runtime.
func (o *Orchestrator) SetPrefetchSegments(n int) {
	if n < 0 {
		n = 0
	}
	o.prefetch.Store(int64(n))
}

// SegmentDuration returns the configured target segment length.
func (o *Orchestrator) SegmentDuration() time.Duration { return o.cfg.SegmentDuration }

// Len returns the number of live sessions.
func (o *Orchestrator) Len() int { return o.byID.len() }

// GetOrCreateSession returns the live session for the request tuple, creating
// it when none exists or the existing one has expired. Creation for one tuple
// is single-flight; distinct tuples never wait on each other.
func (o *Orchestrator) GetOrCreateSession(ctx context.Context, req Request) (*PlaySession, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	if req.Media.ID == "" || req.ClientToken == "" {
		return nil, fmt.Errorf("%w: media id and client token are required", ErrInvalidRequest)
	}
	if req.Media.Duration <= 0 {
		return nil, fmt.Errorf("%w: media %s has no duration", ErrInvalidRequest, req.Media.ID)
	}

	key := req.key()
	if s, ok := o.liveByTuple(key); ok {
		return s, nil
	}
	v, err, _ := o.create.Do(key, func() (any, error) {
		if s, ok := o.liveByTuple(key); ok {
			return s, nil
		}
		return o.createSession(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PlaySession), nil
}

func (o *Orchestrator) liveByTuple(key string) (*PlaySession, bool) {
	s, ok := o.byTuple.get(key)
	if !ok {
		return nil, false
	}
	now := o.now()
	if o.expired(s, now) {
		// Reclaim eagerly so the tuple gets a fresh session.
		o.destroy(s, "idle")
		return nil, false
	}
	s.touch(now)
	return s, true
}

func (o *Orchestrator) expired(s *PlaySession, now time.Time) bool {
	return now.Sub(s.LastAccess()) > o.cfg.SessionTTL
}

func (o *Orchestrator) createSession(ctx context.Context, key string, req Request) (*PlaySession, error) {
	opts := decision.Options{BurnInSubtitle: req.BurnInSubtitle}
	if req.Profile.Name != "" {
		p := req.Profile
		opts.Profile = &p
	}
	plan := o.planner.Plan(req.Media, req.Caps, opts)

	now := o.now()
	s := &PlaySession{
		ID:              o.newID(),
		ClientToken:     req.ClientToken,
		Media:           req.Media,
		Profile:         plan.Profile,
		Plan:            plan,
		SegmentDuration: o.segDur,
		CreatedAt:       now,
		key:             key,
	}
	s.ctx, s.cancel = context.WithCancel(o.baseCtx)
	s.touch(now)

	if !s.IsDirectPlay() {
		s.Durations = SegmentDurations(req.Media.Duration, o.segDur)
		s.segments = make([]*segment, len(s.Durations))
		for i := range s.segments {
			s.segments[i] = &segment{state: SegmentAbsent}
		}
		s.WorkDir = filepath.Join(o.cfg.WorkDir, s.ID)
		if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
			s.cancel()
			return nil, fmt.Errorf("session: create session dir: %w", err)
		}
	}

	o.byID.set(s.ID, s)
	o.byTuple.set(key, s)
	metrics.SessionCreated(string(plan.Mode))

	log := xglog.WithContext(ctx, o.logger)
	log.Info().
		Str(xglog.FieldEvent, "session.created").
		Str(xglog.FieldSessionID, s.ID).
		Str(xglog.FieldMediaID, req.Media.ID).
		Str(xglog.FieldToken, xglog.MaskToken(req.ClientToken)).
		Str(xglog.FieldProfile, plan.Profile).
		Str(xglog.FieldMode, string(plan.Mode)).
		Int("segments", len(s.Durations)).
		Strs("transcode_reasons", plan.TranscodeReasons).
		Strs("remux_reasons", plan.RemuxReasons).
		Msg("playback session created")
	return s, nil
}

// Session returns a live session by id and marks it accessed. A session
// past its TTL is reclaimed here rather than revived.
func (o *Orchestrator) Session(id string) (*PlaySession, error) {
	s, ok := o.byID.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := o.now()
	if o.expired(s, now) {
		o.destroy(s, "idle")
		return nil, ErrSessionNotFound
	}
	s.touch(now)
	return s, nil
}

// Stop destroys a session on explicit request.
func (o *Orchestrator) Stop(id string) error {
	s, ok := o.byID.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	o.destroy(s, "stopped")
	return nil
}

// destroy unlinks the session, cancels its encodes (killing their process
// groups), waits for them within StopTimeout and removes the working
// directory. Only the first call for a session has any effect.
func (o *Orchestrator) destroy(s *PlaySession, reason string) {
	if !o.byID.deleteIf(s.ID, s) {
		return
	}
	o.byTuple.deleteIf(s.key, s)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(o.cfg.StopTimeout):
		o.logger.Warn().
			Str(xglog.FieldEvent, "session.stop.timeout").
			Str(xglog.FieldSessionID, s.ID).
			Msg("encodes still running after stop timeout; removing directory anyway")
	}

	if s.WorkDir != "" {
		if err := os.RemoveAll(s.WorkDir); err != nil {
			o.logger.Error().Err(err).
				Str(xglog.FieldEvent, "session.cleanup.failed").
				Str(xglog.FieldSessionID, s.ID).
				Str(xglog.FieldWorkDir, s.WorkDir).
				Msg("failed to remove session directory")
		}
	}
	metrics.SessionEvicted(reason)
	o.logger.Info().
		Str(xglog.FieldEvent, "session.evicted").
		Str(xglog.FieldSessionID, s.ID).
		Str("reason", reason).
		Msg("playback session destroyed")
}

// Close destroys every session and rejects new ones. It waits for encodes
// until ctx ends.
func (o *Orchestrator) Close(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, s := range o.byID.values() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.destroy(s, "shutdown")
			}()
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
