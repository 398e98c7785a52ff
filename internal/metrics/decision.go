// SPDX-License-Identifier: MIT

// Package metrics holds the prometheus collectors of the playback backend.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_decision_total",
		Help: "Total number of stream plan decisions by mode and profile",
	}, []string{"mode", "profile"})

	decisionReasonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_decision_reasons_total",
		Help: "Total number of decision reasons recorded per category",
	}, []string{"category"})
)

// RecordDecision records one decision outcome and the number of reasons per category.
func RecordDecision(mode, profile string, directPlayReasons, remuxReasons, transcodeReasons int) {
	decisionTotal.WithLabelValues(normalizeModeLabel(mode), normalizeProfileLabel(profile)).Inc()
	decisionReasonsTotal.WithLabelValues("direct_play").Add(float64(directPlayReasons))
	decisionReasonsTotal.WithLabelValues("remux").Add(float64(remuxReasons))
	decisionReasonsTotal.WithLabelValues("transcode").Add(float64(transcodeReasons))
}

func normalizeModeLabel(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "direct_play", "direct_remux", "transcode":
		return m
	default:
		return "unknown"
	}
}

func normalizeProfileLabel(profile string) string {
	switch p := strings.ToLower(strings.TrimSpace(profile)); p {
	case "", "original":
		return "original"
	case "1080p", "720p", "480p", "audio-stereo":
		return p
	default:
		return "custom"
	}
}
