// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/poll"
	"github.com/aleczinn/loki-sub000/internal/session"
)

type createSessionRequest struct {
	MediaID        string `json:"mediaId"`
	Profile        string `json:"profile"`
	BurnInSubtitle *int   `json:"burnInSubtitle,omitempty"`
}

type sessionResponse struct {
	SessionID       string   `json:"sessionId"`
	Mode            string   `json:"mode"`
	Profile         string   `json:"profile"`
	SegmentCount    int      `json:"segmentCount"`
	SegmentDuration float64  `json:"segmentDuration"`
	PlaylistURL     string   `json:"playlistUrl,omitempty"`
	DirectPlayURL   string   `json:"directPlayUrl,omitempty"`
	Reasons         []string `json:"reasons"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := decodeBody(w, r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	m, caps, err := s.resolvePlayback(r, strings.TrimSpace(body.MediaID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := parseProfile(body.Profile)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := s.deps.Sessions.GetOrCreateSession(r.Context(), session.Request{
		ClientToken:    strings.TrimSpace(r.Header.Get(HeaderClientToken)),
		Media:          m,
		Caps:           caps,
		Profile:        profile,
		BurnInSubtitle: body.BurnInSubtitle,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := sessionResponse{
		SessionID:       sess.ID,
		Mode:            string(sess.Plan.Mode),
		Profile:         sess.Profile,
		SegmentCount:    sess.TotalSegments(),
		SegmentDuration: sess.SegmentDuration,
		Reasons:         reasonsFor(sess),
	}
	if sess.IsDirectPlay() {
		resp.DirectPlayURL = "/api/v1/media/" + m.ID + "/stream"
	} else {
		resp.PlaylistURL = "/api/v1/sessions/" + sess.ID + "/index.m3u8"
	}
	writeJSON(w, http.StatusOK, resp)
}

func reasonsFor(s *session.PlaySession) []string {
	var out []string
	out = append(out, s.Plan.DirectPlayReasons...)
	out = append(out, s.Plan.RemuxReasons...)
	out = append(out, s.Plan.TranscodeReasons...)
	if out == nil {
		out = []string{}
	}
	return out
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Stop(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	text, err := s.deps.Sessions.Playlist(chi.URLParam(r, "id"), segmentURI)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = io.WriteString(w, text)
}

// segmentURI is relative to the playlist URL.
func segmentURI(index int) string { return "segments/" + strconv.Itoa(index) + ".ts" }

// handleSegment waits a bounded time for the segment. A segment still being
// encoded when the budget runs out answers 503 with Retry-After.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: segment index %q", errBadInput, chi.URLParam(r, "index")))
		return
	}

	fetch := func(ctx context.Context) (string, bool, error) {
		res, err := s.deps.Sessions.GetSegment(ctx, id, index)
		if err != nil {
			return "", false, err
		}
		return res.Path, res.Ready(), nil
	}
	path, err := poll.Segment(r.Context(), fetch, s.cfg.Poll)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			return
		}
		writeError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		// Evicted between readiness and open; the next request re-encodes it.
		writeError(w, r, &poll.NotReadyError{RetryAfter: poll.DefaultRetryAfter})
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Debug().
		Str(log.FieldSessionID, id).
		Int(log.FieldSegment, index).
		Int64("bytes", st.Size()).
		Msg("serving segment")

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, "", st.ModTime(), f)
}

type positionRequest struct {
	Position *float64 `json:"position"`
}

func decodePosition(w http.ResponseWriter, r *http.Request) (float64, error) {
	var body positionRequest
	if err := decodeBody(w, r, &body, false); err != nil {
		return 0, err
	}
	if body.Position == nil {
		return 0, fmt.Errorf("%w: position is required", errBadInput)
	}
	return *body.Position, nil
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	pos, err := decodePosition(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Sessions.ReportProgress(chi.URLParam(r, "id"), pos)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	pos, err := decodePosition(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Sessions.Seek(r.Context(), chi.URLParam(r, "id"), pos)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
