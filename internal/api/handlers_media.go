// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/decision"
	"github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/media"
)

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Media.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type mediaMetadata struct {
	ID              string  `json:"id"`
	Container       string  `json:"container"`
	DurationSeconds float64 `json:"durationSeconds"`
	SizeBytes       int64   `json:"sizeBytes"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	AudioTracks     int     `json:"audioTracks"`
	SubtitleTracks  int     `json:"subtitleTracks"`
}

type planResponse struct {
	Media   mediaMetadata        `json:"media"`
	Plan    decision.StreamPlan  `json:"plan"`
	Summary decision.PlanSummary `json:"summary"`
}

// handlePlan previews the decision a session would get, without creating one.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	m, caps, err := s.resolvePlayback(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := parseProfile(r.URL.Query().Get("profile"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	plan := s.deps.Planner.Plan(m, caps, decision.Options{Profile: &profile})
	meta := mediaMetadata{
		ID:              m.ID,
		Container:       m.Container,
		DurationSeconds: m.Duration,
		SizeBytes:       m.SizeBytes,
		AudioTracks:     len(m.Audio),
		SubtitleTracks:  len(m.Subtitles),
	}
	if v := m.PrimaryVideo(); v != nil {
		meta.Width, meta.Height = v.Width, v.Height
	}
	writeJSON(w, http.StatusOK, planResponse{Media: meta, Plan: plan, Summary: plan.Summary()})
}

// handleDirectStream serves the source file unmodified for direct-play
// sessions. Range requests are honored.
func (s *Server) handleDirectStream(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Media.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := os.Open(m.Path)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "media.open_failed").
			Str(log.FieldMediaID, m.ID).
			Msg("source file unavailable")
		writeProblem(w, r, http.StatusNotFound, "media_not_found", "source file unavailable")
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(m.Container))
	http.ServeContent(w, r, "", st.ModTime(), f)
}

func contentTypeFor(container string) string {
	switch container {
	case media.ContainerMP4:
		return "video/mp4"
	case media.ContainerWebM:
		return "video/webm"
	case media.ContainerMKV:
		return "video/x-matroska"
	case media.ContainerMOV:
		return "video/quicktime"
	case media.ContainerTS:
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}

// resolvePlayback loads the media descriptor and the caller's capabilities.
func (s *Server) resolvePlayback(r *http.Request, mediaID string) (media.MediaDescriptor, capabilities.ClientCapabilities, error) {
	token := strings.TrimSpace(r.Header.Get(HeaderClientToken))
	if token == "" {
		return media.MediaDescriptor{}, capabilities.ClientCapabilities{},
			fmt.Errorf("%w: %s header is required", errBadInput, HeaderClientToken)
	}
	if mediaID == "" {
		return media.MediaDescriptor{}, capabilities.ClientCapabilities{},
			fmt.Errorf("%w: media id is required", errBadInput)
	}
	m, err := s.deps.Media.Get(mediaID)
	if err != nil {
		return media.MediaDescriptor{}, capabilities.ClientCapabilities{}, err
	}
	caps, err := s.deps.Capabilities.Require(r.Context(), token)
	if err != nil {
		return media.MediaDescriptor{}, capabilities.ClientCapabilities{}, err
	}
	return m, caps, nil
}

func parseProfile(name string) (decision.QualityProfile, error) {
	p, ok := decision.LookupProfile(name)
	if !ok {
		return decision.QualityProfile{}, fmt.Errorf("%w: unknown quality profile %q", errBadInput, name)
	}
	return p, nil
}
