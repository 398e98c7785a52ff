// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loki_sessions_active",
		Help: "Number of live playback sessions",
	})

	sessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_sessions_created_total",
		Help: "Playback sessions created by plan mode",
	}, []string{"mode"})

	sessionsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_sessions_evicted_total",
		Help: "Playback sessions destroyed by reason",
	}, []string{"reason"}) // idle|stopped|shutdown

	segmentEncodeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_segment_encode_total",
		Help: "Segment encodes by result",
	}, []string{"result"}) // ok|failed|canceled

	segmentEncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loki_segment_encode_duration_seconds",
		Help:    "Wall-clock duration of one segment encode",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
	})

	segmentJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loki_segment_joins_total",
		Help: "Segment requests that joined an in-flight encode",
	})

	segmentPrefetch = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_segment_prefetch_total",
		Help: "Look-ahead segment encodes by result",
	}, []string{"result"})

	segmentStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loki_segment_stalls_total",
		Help: "Segment encodes killed by the stall watchdog",
	})

	segmentFilesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loki_segment_files_evicted_total",
		Help: "Ready segment files removed by age-based retention",
	})

	pollOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_poll_outcome_total",
		Help: "Outcome of bounded segment polling at the HTTP boundary",
	}, []string{"outcome"}) // ready|not_ready|error
)

// SessionCreated counts a new session and bumps the active gauge.
func SessionCreated(mode string) {
	sessionsCreated.WithLabelValues(normalizeModeLabel(mode)).Inc()
	sessionsActive.Inc()
}

// SessionEvicted counts a destroyed session and lowers the active gauge.
func SessionEvicted(reason string) {
	sessionsEvicted.WithLabelValues(reason).Inc()
	sessionsActive.Dec()
}

// ObserveSegmentEncode records the result and duration of one encode.
func ObserveSegmentEncode(result string, d time.Duration) {
	segmentEncodeTotal.WithLabelValues(result).Inc()
	segmentEncodeDuration.Observe(d.Seconds())
}

// IncSegmentJoin counts a caller that awaited an existing encode.
func IncSegmentJoin() { segmentJoins.Inc() }

// IncSegmentPrefetch counts a look-ahead encode by result.
func IncSegmentPrefetch(result string) { segmentPrefetch.WithLabelValues(result).Inc() }

// IncSegmentStall counts a watchdog kill.
func IncSegmentStall() { segmentStalls.Inc() }

// IncSegmentFileEvicted counts a segment file removed by retention.
func IncSegmentFileEvicted() { segmentFilesEvicted.Inc() }

// IncPollOutcome counts one bounded poll at the boundary.
func IncPollOutcome(outcome string) { pollOutcome.WithLabelValues(outcome).Inc() }
