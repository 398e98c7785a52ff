// SPDX-License-Identifier: MIT

// Package hardware detects which encoding backends the host can use.
//
// Detection runs once per process: every GPU backend gets one bounded trial
// encode against a synthetic test pattern, the encoder list reported by
// ffmpeg is classified per backend, and the result is cached. The software
// backend is always available.
package hardware

import "strings"

// Backend is an encoding pathway.
type Backend string

const (
	BackendNVENC        Backend = "nvenc"
	BackendQSV          Backend = "qsv"
	BackendVideoToolbox Backend = "videotoolbox"
	BackendVAAPI        Backend = "vaapi"
	BackendAMF          Backend = "amf"
	BackendSoftware     Backend = "software"
)

// GPUPriority is the fixed preference order among GPU backends.
var GPUPriority = []Backend{BackendNVENC, BackendQSV, BackendVideoToolbox, BackendVAAPI, BackendAMF}

var backendAliases = map[string]Backend{
	"nvenc": BackendNVENC, "cuda": BackendNVENC, "nvidia": BackendNVENC,
	"qsv": BackendQSV, "intel": BackendQSV, "quicksync": BackendQSV,
	"videotoolbox": BackendVideoToolbox, "vt": BackendVideoToolbox, "apple": BackendVideoToolbox,
	"vaapi": BackendVAAPI,
	"amf": BackendAMF, "amd": BackendAMF,
	"software": BackendSoftware, "cpu": BackendSoftware, "sw": BackendSoftware, "none": BackendSoftware,
}

// ParseBackend resolves an operator-supplied backend name.
func ParseBackend(name string) (Backend, bool) {
	b, ok := backendAliases[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

// IsGPU reports whether b is a hardware backend.
func (b Backend) IsGPU() bool {
	return b != BackendSoftware && b != ""
}

// QualityTier selects an encoder speed/quality trade-off.
type QualityTier string

const (
	TierHigh     QualityTier = "high"
	TierBalanced QualityTier = "balanced"
	TierFast     QualityTier = "fast"
)

// ParseTier maps a profile tier name to a QualityTier, defaulting to balanced.
func ParseTier(s string) QualityTier {
	switch QualityTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierHigh:
		return TierHigh
	case TierFast:
		return TierFast
	default:
		return TierBalanced
	}
}
