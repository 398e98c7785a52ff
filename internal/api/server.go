// SPDX-License-Identifier: MIT

// Package api exposes the playback operations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aleczinn/loki-sub000/internal/api/middleware"
	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/media"
	"github.com/aleczinn/loki-sub000/internal/poll"
	"github.com/aleczinn/loki-sub000/internal/session"
	"github.com/aleczinn/loki-sub000/internal/version"
)

// HeaderClientToken carries the opaque client token.
const HeaderClientToken = "X-Client-Token"

// MediaSource resolves media ids. *library.Catalog satisfies it.
type MediaSource interface {
	Get(id string) (media.MediaDescriptor, error)
}

// CapabilityStore is the subset of *capabilities.Registry the API uses.
type CapabilityStore interface {
	Register(ctx context.Context, token string, p capabilities.Patch) (string, capabilities.ClientCapabilities, error)
	Require(ctx context.Context, token string) (capabilities.ClientCapabilities, error)
}

// Sessions is the subset of *session.Orchestrator the API uses.
type Sessions interface {
	GetOrCreateSession(ctx context.Context, req session.Request) (*session.PlaySession, error)
	Playlist(sessionID string, uri func(index int) string) (string, error)
	GetSegment(ctx context.Context, sessionID string, index int) (session.SegmentResult, error)
	ReportProgress(sessionID string, position float64) (session.ProgressResult, error)
	Seek(ctx context.Context, sessionID string, seconds float64) (session.SeekResult, error)
	Stop(sessionID string) error
	Len() int
}

// Deps are the collaborators of a Server. Hardware is optional.
type Deps struct {
	Media        MediaSource
	Capabilities CapabilityStore
	Planner      session.Planner
	Sessions     Sessions
	Hardware     session.HardwareInfo
}

// Config tunes the HTTP surface.
type Config struct {
	RateLimitRPS   int
	TracingService string
	EnableMetrics  bool
	EnableLogging  bool
	Poll           poll.Options
}

// Server routes HTTP requests to the playback components.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
}

// New builds the router. It fails when a required collaborator is missing.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Media == nil || deps.Capabilities == nil || deps.Planner == nil || deps.Sessions == nil {
		return nil, errors.New("api: media, capabilities, planner and sessions are required")
	}
	s := &Server{cfg: cfg, deps: deps}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  s.cfg.EnableMetrics,
		TracingService: s.cfg.TracingService,
		EnableLogging:  s.cfg.EnableLogging,
		RateLimitRPS:   s.cfg.RateLimitRPS,
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/capabilities", s.handleRegisterCapabilities)
		r.Get("/hardware", s.handleHardware)

		r.Route("/media/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetMedia)
			r.Get("/plan", s.handlePlan)
			r.Get("/stream", s.handleDirectStream)
		})

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", s.handleStopSession)
			r.Get("/index.m3u8", s.handlePlaylist)
			r.Get("/segments/{index}.ts", s.handleSegment)
			r.Post("/progress", s.handleProgress)
			r.Post("/seek", s.handleSeek)
		})
	})
	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
	Backend  string `json:"backend,omitempty"`
	Time     string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Version:  version.Version,
		Sessions: s.deps.Sessions.Len(),
		Time:     time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Hardware != nil {
		resp.Backend = string(s.deps.Hardware.Info().Preferred)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hardware == nil {
		writeProblem(w, r, http.StatusNotFound, "hardware_unavailable", "hardware detection is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Hardware.Info())
}
