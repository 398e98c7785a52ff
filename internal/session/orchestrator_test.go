// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/decision"
	"github.com/aleczinn/loki-sub000/internal/media"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixedPlanner struct{ mode decision.Mode }

func (p fixedPlanner) Plan(media.MediaDescriptor, capabilities.ClientCapabilities, decision.Options) decision.StreamPlan {
	return decision.StreamPlan{Mode: p.mode, Profile: decision.ProfileOriginal}
}

// fakeEncoder writes a stub segment file. With a gate it blocks until the
// gate closes or ctx ends; fail decides per (index, call) whether to error.
type fakeEncoder struct {
	mu    sync.Mutex
	calls map[int]int
	gate  chan struct{}
	fail  func(index, call int) error
}

func newFakeEncoder() *fakeEncoder { return &fakeEncoder{calls: map[int]int{}} }

func (f *fakeEncoder) EncodeSegment(ctx context.Context, req EncodeRequest) error {
	f.mu.Lock()
	f.calls[req.Index]++
	n := f.calls[req.Index]
	gate, fail := f.gate, f.fail
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(req.Index, n); err != nil {
			return err
		}
	}
	return os.WriteFile(req.OutputPath, []byte("seg"+strconv.Itoa(req.Index)), 0o644)
}

func (f *fakeEncoder) Calls(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type harness struct {
	orch  *Orchestrator
	enc   *fakeEncoder
	clock *fakeClock
	dir   string
}

func newHarness(t *testing.T, cfg Config, mode decision.Mode) *harness {
	t.Helper()
	h := &harness{enc: newFakeEncoder(), clock: newFakeClock(), dir: t.TempDir()}
	if cfg.SegmentDuration == 0 {
		cfg.SegmentDuration = 10 * time.Second
	}
	cfg.WorkDir = h.dir
	nop := zerolog.Nop()
	orch, err := NewOrchestrator(cfg, Deps{
		Planner: fixedPlanner{mode: mode},
		Encoder: h.enc,
		Logger:  &nop,
		Clock:   h.clock.Now,
	})
	require.NoError(t, err)
	h.orch = orch
	t.Cleanup(func() { _ = orch.Close(context.Background()) })
	return h
}

func testRequest() Request {
	return Request{
		ClientToken: "token-1",
		Media:       media.MediaDescriptor{ID: "m1", Path: "/media/m1.mkv", Duration: 25},
	}
}

func noPrefetch() Config { return Config{PrefetchSegments: 0} }

func TestSegmentDurations(t *testing.T) {
	assert.Equal(t, []float64{10, 10, 5}, SegmentDurations(25, 10))
	assert.Equal(t, []float64{10, 10}, SegmentDurations(20, 10))
	assert.Equal(t, []float64{3}, SegmentDurations(3, 10))
	assert.Nil(t, SegmentDurations(0, 10))
	assert.Nil(t, SegmentDurations(10, 0))
}

func TestNewOrchestrator_RequiresCollaborators(t *testing.T) {
	_, err := NewOrchestrator(Config{WorkDir: t.TempDir()}, Deps{})
	require.Error(t, err)

	_, err = NewOrchestrator(Config{}, Deps{Planner: fixedPlanner{}, Encoder: newFakeEncoder()})
	require.Error(t, err)
}

func TestGetOrCreateSession_Idempotent(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	ctx := context.Background()

	first, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)
	second, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 3, first.TotalSegments())
	assert.Equal(t, []float64{10, 10, 5}, first.Durations)
	assert.DirExists(t, first.WorkDir)
	assert.Equal(t, filepath.Join(h.dir, first.ID), first.WorkDir)

	other := testRequest()
	other.Profile = decision.QualityProfile{Name: "720p"}
	third, err := h.orch.GetOrCreateSession(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 2, h.orch.Len())
}

func TestGetOrCreateSession_ConcurrentCallersShareOneSession(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := h.orch.GetOrCreateSession(context.Background(), testRequest())
			if assert.NoError(t, err) {
				ids[i] = s.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, h.orch.Len())
}

func TestGetOrCreateSession_RejectsInvalidRequests(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)

	req := testRequest()
	req.Media.Duration = 0
	_, err := h.orch.GetOrCreateSession(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = testRequest()
	req.ClientToken = ""
	_, err = h.orch.GetOrCreateSession(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetOrCreateSession_ExpiredSessionIsReplaced(t *testing.T) {
	h := newHarness(t, Config{SessionTTL: time.Minute}, decision.ModeTranscode)
	ctx := context.Background()

	old, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)
	h.clock.Advance(2 * time.Minute)

	fresh, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.NoDirExists(t, old.WorkDir)
	assert.Equal(t, 1, h.orch.Len())
}

func TestDirectPlaySession_HasNoSegments(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeDirectPlay)
	ctx := context.Background()

	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)
	assert.True(t, s.IsDirectPlay())
	assert.Zero(t, s.TotalSegments())
	assert.Empty(t, s.WorkDir)

	_, err = h.orch.GetSegment(ctx, s.ID, 0)
	assert.ErrorIs(t, err, ErrDirectPlay)
	_, err = h.orch.Playlist(s.ID, strconv.Itoa)
	assert.ErrorIs(t, err, ErrDirectPlay)
	_, err = h.orch.Seek(ctx, s.ID, 3)
	assert.ErrorIs(t, err, ErrDirectPlay)
}

func TestGetSegment_OutOfRangeAndUnknownSession(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	_, err = h.orch.GetSegment(ctx, s.ID, 3)
	assert.ErrorIs(t, err, ErrSegmentOutOfRange)
	_, err = h.orch.GetSegment(ctx, s.ID, -1)
	assert.ErrorIs(t, err, ErrSegmentOutOfRange)
	_, err = h.orch.GetSegment(ctx, "nope", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAwaitSegment_EncodesOnceAndServesReady(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	res, err := h.orch.AwaitSegment(ctx, s.ID, 2)
	require.NoError(t, err)
	assert.True(t, res.Ready())
	assert.Equal(t, 5.0, res.Duration)
	assert.Equal(t, filepath.Join(s.WorkDir, "segment_00002.ts"), res.Path)
	assert.FileExists(t, res.Path)

	again, err := h.orch.GetSegment(ctx, s.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, res, again)
	assert.Equal(t, 1, h.enc.Calls(2))
}

func TestAwaitSegment_ConcurrentRequestsJoinOneEncode(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	h.enc.gate = make(chan struct{})
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	const callers = 8
	results := make(chan error, callers)
	for range callers {
		go func() {
			res, err := h.orch.AwaitSegment(ctx, s.ID, 1)
			if err == nil && !res.Ready() {
				err = errors.New("not ready after await")
			}
			results <- err
		}()
	}

	require.Eventually(t, func() bool { return h.enc.Calls(1) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, SegmentTranscoding, s.SegmentState(1))
	close(h.enc.gate)

	for range callers {
		assert.NoError(t, <-results)
	}
	assert.Equal(t, 1, h.enc.Calls(1))
	assert.Equal(t, SegmentReady, s.SegmentState(1))
}

func TestGetSegment_NonBlockingReportsTranscoding(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	h.enc.gate = make(chan struct{})
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	res, err := h.orch.GetSegment(ctx, s.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, SegmentTranscoding, res.State)
	assert.False(t, res.Ready())

	close(h.enc.gate)
	require.Eventually(t, func() bool { return s.SegmentState(0) == SegmentReady }, time.Second, 5*time.Millisecond)
}

func TestFailedSegment_RetriedExactlyOnce(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	boom := errors.New("encoder exploded")
	h.enc.fail = func(int, int) error { return boom }
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	_, err = h.orch.AwaitSegment(ctx, s.ID, 0)
	require.ErrorIs(t, err, ErrSegmentFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, SegmentFailed, s.SegmentState(0))

	_, err = h.orch.AwaitSegment(ctx, s.ID, 0)
	require.ErrorIs(t, err, ErrSegmentFailed)

	res, err := h.orch.GetSegment(ctx, s.ID, 0)
	require.ErrorIs(t, err, ErrSegmentFailed)
	assert.Equal(t, SegmentFailed, res.State)
	assert.Equal(t, 2, h.enc.Calls(0))
}

func TestFailedSegment_RecoversOnRetry(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	h.enc.fail = func(_ int, call int) error {
		if call == 1 {
			return errors.New("transient")
		}
		return nil
	}
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	_, err = h.orch.AwaitSegment(ctx, s.ID, 1)
	require.Error(t, err)

	res, err := h.orch.AwaitSegment(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Ready())
	assert.Equal(t, 2, h.enc.Calls(1))
}

func TestPrefetch_EncodesLookahead(t *testing.T) {
	h := newHarness(t, Config{PrefetchSegments: 1}, decision.ModeTranscode)
	ctx := context.Background()
	req := testRequest()
	req.Media.Duration = 40
	s, err := h.orch.GetOrCreateSession(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 4, s.TotalSegments())

	_, err = h.orch.AwaitSegment(ctx, s.ID, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.SegmentState(1) == SegmentReady }, time.Second, 5*time.Millisecond)
	assert.Equal(t, SegmentAbsent, s.SegmentState(2))
	assert.Equal(t, 0, h.enc.Calls(3))

	h.orch.SetPrefetchSegments(0)
	_, err = h.orch.AwaitSegment(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, SegmentAbsent, s.SegmentState(2))
}

func TestPrefetch_FailureKeepsRetryForClient(t *testing.T) {
	h := newHarness(t, Config{PrefetchSegments: 1}, decision.ModeTranscode)
	h.enc.fail = func(index, call int) error {
		if index == 1 && call == 1 {
			return errors.New("transient")
		}
		return nil
	}
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	_, err = h.orch.AwaitSegment(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.SegmentState(1) == SegmentFailed }, time.Second, 5*time.Millisecond)

	// Later look-ahead passes leave the failed segment alone.
	_, err = h.orch.AwaitSegment(ctx, s.ID, 0)
	require.NoError(t, err)
	_, err = h.orch.GetSegment(ctx, s.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.enc.Calls(1))

	res, err := h.orch.AwaitSegment(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Ready())
	assert.Equal(t, 2, h.enc.Calls(1))
}

func TestPrefetch_SkipsWhenNoEncodeSlot(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrentEncodes: 1}, decision.ModeTranscode)
	h.orch.SetPrefetchSegments(0)
	h.enc.gate = make(chan struct{})
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	_, err = h.orch.GetSegment(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.enc.Calls(0) == 1 }, time.Second, 5*time.Millisecond)

	// Segment 0 holds the only slot; the look-ahead stays absent.
	h.orch.SetPrefetchSegments(2)
	_, err = h.orch.GetSegment(ctx, s.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, SegmentAbsent, s.SegmentState(1))
	close(h.enc.gate)
}

func TestPlaylist_ListsEverySegment(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	s, err := h.orch.GetOrCreateSession(context.Background(), testRequest())
	require.NoError(t, err)

	got, err := h.orch.Playlist(s.ID, func(i int) string { return "segments/" + strconv.Itoa(i) + ".ts" })
	require.NoError(t, err)

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-PLAYLIST-TYPE:VOD\n" +
		"#EXT-X-TARGETDURATION:10\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXT-X-INDEPENDENT-SEGMENTS\n" +
		"#EXTINF:10.000000,\nsegments/0.ts\n" +
		"#EXTINF:10.000000,\nsegments/1.ts\n" +
		"#EXTINF:5.000000,\nsegments/2.ts\n" +
		"#EXT-X-ENDLIST\n"
	assert.Equal(t, want, got)
	assert.Zero(t, h.enc.Calls(0), "rendering the playlist must not encode")
}

func TestPlaylist_TargetDurationRoundsUp(t *testing.T) {
	got := renderPlaylist(SegmentDurations(13, 6.5), strconv.Itoa)
	assert.Contains(t, got, "#EXT-X-TARGETDURATION:7\n")
	assert.Contains(t, got, "#EXTINF:6.500000,\n1\n")
}

func TestSeek_MapsPositionToSegment(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	tests := []struct {
		pos    float64
		target int
	}{
		{0, 0},
		{9.99, 0},
		{10, 1},
		{24.9, 2},
		{25, 2},
		{1e20, 2},
		{600, 2},
	}
	for _, tt := range tests {
		res, err := h.orch.Seek(ctx, s.ID, tt.pos)
		require.NoError(t, err, "pos %v", tt.pos)
		assert.Equal(t, tt.target, res.TargetSegment, "pos %v", tt.pos)
		assert.Equal(t, float64(tt.target)*10, res.SegmentStart)
	}

	_, err = h.orch.Seek(ctx, s.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidPosition)

	require.Eventually(t, func() bool { return s.SegmentState(2) == SegmentReady }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 600.0, s.Position())
}

func TestReportProgress_HintsNextSegment(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	s, err := h.orch.GetOrCreateSession(context.Background(), testRequest())
	require.NoError(t, err)

	res, err := h.orch.ReportProgress(s.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, ProgressResult{CurrentSegment: 1, NextSegment: 2}, res)

	res, err = h.orch.ReportProgress(s.ID, 24)
	require.NoError(t, err)
	assert.Equal(t, ProgressResult{CurrentSegment: 2, NextSegment: -1}, res)

	_, err = h.orch.ReportProgress(s.ID, -3)
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestCleanupIdleSessions_RemovesDirectory(t *testing.T) {
	h := newHarness(t, Config{SessionTTL: time.Minute}, decision.ModeTranscode)
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)
	_, err = h.orch.AwaitSegment(ctx, s.ID, 0)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	assert.Zero(t, h.orch.CleanupIdleSessions(h.clock.Now()))

	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, h.orch.CleanupIdleSessions(h.clock.Now()))
	assert.NoDirExists(t, s.WorkDir)
	_, err = h.orch.Session(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, h.orch.Len())
}

func TestSession_ExpiredLookupReclaims(t *testing.T) {
	h := newHarness(t, Config{SessionTTL: time.Minute}, decision.ModeTranscode)
	s, err := h.orch.GetOrCreateSession(context.Background(), testRequest())
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	_, err = h.orch.Playlist(s.ID, strconv.Itoa)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.orch.ReportProgress(s.ID, 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Zero(t, h.orch.Len())
	assert.NoDirExists(t, s.WorkDir)
	assert.Zero(t, h.orch.CleanupIdleSessions(h.clock.Now()))
}

func TestStop_CancelsInFlightEncode(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	h.enc.gate = make(chan struct{}) // never released
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)

	awaited := make(chan error, 1)
	go func() {
		_, err := h.orch.AwaitSegment(ctx, s.ID, 0)
		awaited <- err
	}()
	require.Eventually(t, func() bool { return h.enc.Calls(0) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.orch.Stop(s.ID))
	assert.Error(t, <-awaited)
	assert.NoDirExists(t, s.WorkDir)
	assert.ErrorIs(t, h.orch.Stop(s.ID), ErrSessionNotFound)

	_, err = h.orch.GetSegment(ctx, s.ID, 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEvictExpiredSegments(t *testing.T) {
	h := newHarness(t, Config{SegmentRetention: time.Minute, SessionTTL: time.Hour}, decision.ModeTranscode)
	ctx := context.Background()
	s, err := h.orch.GetOrCreateSession(ctx, testRequest())
	require.NoError(t, err)
	res, err := h.orch.AwaitSegment(ctx, s.ID, 0)
	require.NoError(t, err)

	assert.Zero(t, h.orch.EvictExpiredSegments(h.clock.Now()))
	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, h.orch.EvictExpiredSegments(h.clock.Now()))
	assert.NoFileExists(t, res.Path)
	assert.Equal(t, SegmentAbsent, s.SegmentState(0))

	again, err := h.orch.AwaitSegment(ctx, s.ID, 0)
	require.NoError(t, err)
	assert.FileExists(t, again.Path)
	assert.Equal(t, 2, h.enc.Calls(0))
}

func TestSweeper_SweepOnce(t *testing.T) {
	h := newHarness(t, Config{SessionTTL: time.Minute}, decision.ModeTranscode)
	s, err := h.orch.GetOrCreateSession(context.Background(), testRequest())
	require.NoError(t, err)

	orphan := filepath.Join(h.dir, "stale-session")
	require.NoError(t, os.Mkdir(orphan, 0o755))
	old := h.clock.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	h.clock.Advance(time.Hour)
	sw := &Sweeper{Orch: h.orch, Interval: time.Minute}
	sw.SweepOnce(context.Background())

	assert.Zero(t, h.orch.Len())
	assert.NoDirExists(t, s.WorkDir)
	assert.NoDirExists(t, orphan)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&Sweeper{Orch: h.orch, Interval: 10 * time.Millisecond}).Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestClose_RejectsNewSessions(t *testing.T) {
	h := newHarness(t, noPrefetch(), decision.ModeTranscode)
	s, err := h.orch.GetOrCreateSession(context.Background(), testRequest())
	require.NoError(t, err)

	require.NoError(t, h.orch.Close(context.Background()))
	assert.NoDirExists(t, s.WorkDir)
	_, err = h.orch.GetOrCreateSession(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrClosed)
}
