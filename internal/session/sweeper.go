// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
)

// CleanupIdleSessions destroys every session not accessed within SessionTTL
// and returns how many were reclaimed.
func (o *Orchestrator) CleanupIdleSessions(now time.Time) int {
	n := 0
	for _, s := range o.byID.values() {
		if o.expired(s, now) {
			o.destroy(s, "idle")
			n++
		}
	}
	return n
}

// removeOrphanDirs deletes session directories under WorkDir that belong to
// no live session, e.g. left behind by a crashed process.
func (o *Orchestrator) removeOrphanDirs(now time.Time) int {
	entries, err := os.ReadDir(o.cfg.WorkDir)
	if err != nil {
		o.logger.Warn().Err(err).Str(xglog.FieldWorkDir, o.cfg.WorkDir).Msg("failed to list work dir")
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, live := o.byID.get(e.Name()); live {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < o.cfg.SessionTTL {
			continue
		}
		path := filepath.Join(o.cfg.WorkDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			o.logger.Warn().Err(err).Str(xglog.FieldPath, path).Msg("failed to remove orphan session dir")
			continue
		}
		n++
	}
	return n
}

// Sweeper periodically reclaims idle sessions and expired segment files.
type Sweeper struct {
	Orch     *Orchestrator
	Interval time.Duration
}

// Run sweeps on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Orch.logger.Info().Dur("interval", s.Interval).Msg("session sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs one pass: idle sessions, segment retention, orphan
// directories.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := s.Orch.now()
	idle := s.Orch.CleanupIdleSessions(now)
	evicted := s.Orch.EvictExpiredSegments(now)
	orphans := s.Orch.removeOrphanDirs(now)
	if idle+evicted+orphans > 0 {
		s.Orch.logger.Info().
			Str(xglog.FieldEvent, "session.sweep").
			Int("idle_sessions", idle).
			Int("segment_files", evicted).
			Int("orphan_dirs", orphans).
			Msg("sweep reclaimed resources")
	}
}
