// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hwProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_hwaccel_probe_total",
		Help: "Hardware acceleration trial encodes by backend and outcome",
	}, []string{"backend", "result"})

	hwProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loki_hwaccel_probe_duration_seconds",
		Help:    "Wall-clock duration of hardware acceleration trial encodes",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to 6.4s
	}, []string{"backend"})

	hwBackendAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loki_hwaccel_backend_available",
		Help: "1 if the encoding backend passed detection, 0 otherwise",
	}, []string{"backend"})

	hwBackendPreferred = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loki_hwaccel_backend_preferred",
		Help: "1 for the backend selected as preferred",
	}, []string{"backend"})
)

// ObserveHWProbe records one trial encode.
func ObserveHWProbe(backend, result string, d time.Duration) {
	hwProbeTotal.WithLabelValues(backend, result).Inc()
	hwProbeDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// SetHWBackend publishes availability and preference for a backend.
func SetHWBackend(backend string, available, preferred bool) {
	hwBackendAvailable.WithLabelValues(backend).Set(boolToFloat(available))
	hwBackendPreferred.WithLabelValues(backend).Set(boolToFloat(preferred))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
