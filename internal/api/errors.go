// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/library"
	"github.com/aleczinn/loki-sub000/internal/log"
	"github.com/aleczinn/loki-sub000/internal/poll"
	"github.com/aleczinn/loki-sub000/internal/session"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem writes an error body with an explicit status and code.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeError maps a domain error to its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	switch status {
	case http.StatusServiceUnavailable:
		if errors.Is(err, poll.ErrNotReady) {
			w.Header().Set("Retry-After", strconv.Itoa(poll.RetryAfterSeconds(err)))
		}
	case http.StatusInternalServerError, http.StatusBadGateway:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "request.failed").
			Str(log.FieldPath, r.URL.Path).
			Int("status", status).
			Msg("request failed")
	}
	writeProblem(w, r, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, poll.ErrNotReady):
		return http.StatusServiceUnavailable, "segment_not_ready"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, session.ErrSegmentFailed):
		return http.StatusBadGateway, "segment_failed"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrSegmentOutOfRange):
		return http.StatusNotFound, "segment_not_found"
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound, "media_not_found"
	case errors.Is(err, capabilities.ErrUnknownToken):
		return http.StatusNotFound, "unknown_client_token"
	case errors.Is(err, session.ErrDirectPlay):
		return http.StatusConflict, "direct_play"
	case errors.Is(err, capabilities.ErrInvalidToken):
		return http.StatusBadRequest, "invalid_client_token"
	case errors.Is(err, session.ErrInvalidRequest), errors.Is(err, session.ErrInvalidPosition),
		errors.Is(err, errBadInput):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var errBadInput = errors.New("bad input")
