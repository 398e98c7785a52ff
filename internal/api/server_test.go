// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/library"
	"github.com/aleczinn/loki-sub000/internal/media"
	"github.com/aleczinn/loki-sub000/internal/poll"
	"github.com/aleczinn/loki-sub000/internal/session"
)

type mediaMap map[string]media.MediaDescriptor

func (m mediaMap) Get(id string) (media.MediaDescriptor, error) {
	d, ok := m[id]
	if !ok {
		return media.MediaDescriptor{}, library.ErrNotFound
	}
	return d, nil
}

// fileEncoder writes a small marker file per segment. With a gate it blocks
// until the gate is closed; with fail set every encode errors.
type fileEncoder struct {
	gate chan struct{}
	fail bool

	mu    sync.Mutex
	calls int
}

func (e *fileEncoder) EncodeSegment(ctx context.Context, req session.EncodeRequest) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.fail {
		return errors.New("encoder exploded")
	}
	return os.WriteFile(req.OutputPath, []byte(fmt.Sprintf("segment-%d", req.Index)), 0o644)
}

func (e *fileEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type testEnv struct {
	handler http.Handler
	encoder *fileEncoder
	orch    *session.Orchestrator
	source  string
}

func newEnv(t *testing.T, enc *fileEncoder, pollOpts poll.Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(source, []byte("original-bytes"), 0o644))

	catalog := mediaMap{
		"mkv1": {
			ID:        "mkv1",
			Path:      filepath.Join(dir, "movie.mkv"),
			Container: media.ContainerMKV,
			Duration:  25,
			Video:     []media.VideoTrack{{Index: 0, Codec: media.CodecH264, Width: 1920, Height: 1080, BitDepth: 8}},
			Audio:     []media.AudioTrack{{Index: 1, Codec: media.CodecAAC, Channels: 2}},
		},
		"mp41": {
			ID:        "mp41",
			Path:      source,
			Container: media.ContainerMP4,
			Duration:  25,
			Video:     []media.VideoTrack{{Index: 0, Codec: media.CodecH264, Width: 1280, Height: 720, BitDepth: 8}},
			Audio:     []media.AudioTrack{{Index: 1, Codec: media.CodecAAC, Channels: 2}},
		},
	}

	nop := zerolog.Nop()
	planner := session.NewDecisionPlanner(nil, false)
	orch, err := session.NewOrchestrator(session.Config{
		WorkDir:         filepath.Join(dir, "sessions"),
		SegmentDuration: 10 * time.Second,
	}, session.Deps{Planner: planner, Encoder: enc, Logger: &nop})
	require.NoError(t, err)
	orch.SetPrefetchSegments(0)
	t.Cleanup(func() {
		if enc.gate != nil {
			select {
			case <-enc.gate:
			default:
				close(enc.gate)
			}
		}
		_ = orch.Close(context.Background())
	})

	srv, err := New(Config{Poll: pollOpts}, Deps{
		Media:        catalog,
		Capabilities: capabilities.NewRegistry(capabilities.WithLogger(nop)),
		Planner:      planner,
		Sessions:     orch,
	})
	require.NoError(t, err)
	return &testEnv{handler: srv.Handler(), encoder: enc, orch: orch, source: source}
}

func fastPoll() poll.Options {
	return poll.Options{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second, RetryAfter: 3 * time.Second}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set(HeaderClientToken, token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

const browserCaps = `{
	"containers": ["mp4"],
	"videoCodecs": {"h264": {"bitDepths": [8]}},
	"audioCodecs": {"aac": {"maxChannels": 2}},
	"supportsHls": true
}`

func (e *testEnv) register(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/capabilities", "", browserCaps)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp capabilitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestCapabilities_RegisterAndMerge(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())

	rec := env.do(t, http.MethodPost, "/api/v1/capabilities", "", browserCaps)
	require.Equal(t, http.StatusOK, rec.Code)
	var first capabilitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, first.Token, rec.Header().Get(HeaderClientToken))
	assert.Contains(t, first.Capabilities.VideoCodecs, media.CodecH264)

	rec = env.do(t, http.MethodPost, "/api/v1/capabilities", first.Token, `{"videoCodecs": {"hevc": {}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var second capabilitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.Token, second.Token)
	assert.Contains(t, second.Capabilities.VideoCodecs, media.CodecH264)
	assert.Contains(t, second.Capabilities.VideoCodecs, media.CodecHEVC)
	assert.Equal(t, []string{media.ContainerMP4}, second.Capabilities.Containers)
}

func TestCapabilities_InputErrors(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())

	tests := []struct {
		name  string
		token string
		body  string
		code  string
	}{
		{"invalid token", "not a token!", browserCaps, "invalid_client_token"},
		{"malformed json", "", `{"containers": [`, "invalid_request"},
		{"unknown field", "", `{"codecs": []}`, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/capabilities", tt.token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestMedia_GetAndNotFound(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())

	rec := env.do(t, http.MethodGet, "/api/v1/media/mkv1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m media.MediaDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "mkv1", m.ID)
	assert.Empty(t, m.Path, "source path must not leak")

	rec = env.do(t, http.MethodGet, "/api/v1/media/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "media_not_found", body.Error)
	assert.NotEmpty(t, body.RequestID)
}

func TestPlan(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())
	token := env.register(t)

	rec := env.do(t, http.MethodGet, "/api/v1/media/mkv1/plan", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp planResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "direct_remux", string(resp.Plan.Mode))
	assert.Equal(t, "direct_remux", resp.Summary.Mode)
	assert.NotEmpty(t, resp.Plan.RemuxReasons)
	assert.Equal(t, 1080, resp.Media.Height)
	assert.InDelta(t, 25.0, resp.Media.DurationSeconds, 1e-9)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   string
	}{
		{"missing token", "/api/v1/media/mkv1/plan", "", http.StatusBadRequest, "invalid_request"},
		{"unknown token", "/api/v1/media/mkv1/plan", "nobody", http.StatusNotFound, "unknown_client_token"},
		{"unknown media", "/api/v1/media/zzz/plan", token, http.StatusNotFound, "media_not_found"},
		{"unknown profile", "/api/v1/media/mkv1/plan?profile=8k", token, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())
	token := env.register(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]string{"mediaId": "mkv1", "profile": "original"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "direct_remux", sess.Mode)
	assert.Equal(t, 3, sess.SegmentCount)
	assert.Equal(t, "/api/v1/sessions/"+sess.SessionID+"/index.m3u8", sess.PlaylistURL)

	again := env.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]string{"mediaId": "mkv1"})
	var sess2 sessionResponse
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &sess2))
	assert.Equal(t, sess.SessionID, sess2.SessionID, "same tuple continues the session")

	base := "/api/v1/sessions/" + sess.SessionID
	rec = env.do(t, http.MethodGet, base+"/index.m3u8", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	text := rec.Body.String()
	assert.True(t, strings.HasPrefix(text, "#EXTM3U\n"))
	assert.Contains(t, text, "#EXTINF:5.000000,\nsegments/2.ts\n")
	assert.True(t, strings.HasSuffix(text, "#EXT-X-ENDLIST\n"))

	rec = env.do(t, http.MethodGet, base+"/segments/0.ts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))
	assert.Equal(t, "segment-0", rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/progress", "", `{"position": 12}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"currentSegment":1,"nextSegment":2}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/seek", "", `{"position": 21.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"targetSegment":2,"segmentStart":20}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, base+"/index.m3u8", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decodeError(t, rec).Error)
}

func TestSession_CreateInputErrors(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())
	token := env.register(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", token, `{"mediaId": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions", token, `{"mediaId": "mkv1", "profile": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.orch.Len(), "input errors never reach the orchestrator")
}

func createSession(t *testing.T, env *testEnv, mediaID string) sessionResponse {
	t.Helper()
	token := env.register(t)
	rec := env.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]string{"mediaId": mediaID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess
}

func TestSegment_NotReadyAnswers503WithRetryAfter(t *testing.T) {
	enc := &fileEncoder{gate: make(chan struct{})}
	env := newEnv(t, enc, poll.Options{Interval: 5 * time.Millisecond, Timeout: 60 * time.Millisecond, RetryAfter: 3 * time.Second})
	sess := createSession(t, env, "mkv1")

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/"+sess.SessionID+"/segments/1.ts", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Equal(t, "segment_not_ready", decodeError(t, rec).Error)
	assert.Eventually(t, func() bool { return enc.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, enc.Calls(), "polling joins the in-flight encode")
}

func TestSegment_TerminalFailureAnswers502(t *testing.T) {
	enc := &fileEncoder{fail: true}
	env := newEnv(t, enc, fastPoll())
	sess := createSession(t, env, "mkv1")

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/"+sess.SessionID+"/segments/0.ts", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "segment_failed", decodeError(t, rec).Error)
	assert.Equal(t, 2, enc.Calls(), "one automatic retry")
}

func TestSegment_BadIndex(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())
	sess := createSession(t, env, "mkv1")
	base := "/api/v1/sessions/" + sess.SessionID

	rec := env.do(t, http.MethodGet, base+"/segments/7.ts", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "segment_not_found", decodeError(t, rec).Error)

	rec = env.do(t, http.MethodGet, base+"/segments/abc.ts", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/nope/segments/0.ts", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectPlaySession(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())
	sess := createSession(t, env, "mp41")

	assert.Equal(t, "direct_play", sess.Mode)
	assert.Equal(t, 0, sess.SegmentCount)
	assert.Empty(t, sess.PlaylistURL)
	assert.Equal(t, "/api/v1/media/mp41/stream", sess.DirectPlayURL)

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/"+sess.SessionID+"/index.m3u8", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, sess.DirectPlayURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "original-bytes", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, sess.DirectPlayURL, nil)
	req.Header.Set("Range", "bytes=0-7")
	ranged := httptest.NewRecorder()
	env.handler.ServeHTTP(ranged, req)
	assert.Equal(t, http.StatusPartialContent, ranged.Code)
	assert.Equal(t, "original", ranged.Body.String())
}

func TestPositionValidation(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())
	sess := createSession(t, env, "mkv1")
	base := "/api/v1/sessions/" + sess.SessionID

	for _, body := range []string{`{}`, `{"position": -1}`, `not json`} {
		rec := env.do(t, http.MethodPost, base+"/seek", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHealthz(t *testing.T) {
	env := newEnv(t, &fileEncoder{}, fastPoll())
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Sessions)

	rec = env.do(t, http.MethodGet, "/api/v1/hardware", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&poll.NotReadyError{}, http.StatusServiceUnavailable},
		{session.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("wrap: %w", session.ErrSegmentFailed), http.StatusBadGateway},
		{session.ErrSessionNotFound, http.StatusNotFound},
		{session.ErrDirectPlay, http.StatusConflict},
		{session.ErrInvalidPosition, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
