// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/log"
)

const maxBodyBytes = 1 << 20

type capabilitiesResponse struct {
	Token        string                          `json:"token"`
	Capabilities capabilities.ClientCapabilities `json:"capabilities"`
}

// handleRegisterCapabilities declares or updates the caller's capabilities.
// Without a token header a new token is issued.
func (s *Server) handleRegisterCapabilities(w http.ResponseWriter, r *http.Request) {
	var patch capabilities.Patch
	if err := decodeBody(w, r, &patch, true); err != nil {
		writeError(w, r, err)
		return
	}

	token := strings.TrimSpace(r.Header.Get(HeaderClientToken))
	token, caps, err := s.deps.Capabilities.Register(r.Context(), token, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Debug().
		Str(log.FieldEvent, "capabilities.registered").
		Str(log.FieldToken, log.MaskToken(token)).
		Str("device_type", caps.DeviceType).
		Msg("client capabilities stored")

	w.Header().Set(HeaderClientToken, token)
	writeJSON(w, http.StatusOK, capabilitiesResponse{Token: token, Capabilities: caps})
}

// decodeBody reads one JSON document from the request body. Unknown fields
// are rejected. An empty body is accepted only when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: decode body: %v", errBadInput, err)
	}
	return nil
}
