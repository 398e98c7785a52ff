// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	libraryProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_library_probe_total",
		Help: "Media probes by result",
	}, []string{"result"})

	libraryInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loki_library_invalidations_total",
		Help: "Descriptors dropped because the underlying file changed",
	})

	capabilityRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_capability_registrations_total",
		Help: "Capability declarations by kind",
	}, []string{"kind"}) // new|merge
)

// IncLibraryProbe counts a media probe by result (ok|error).
func IncLibraryProbe(result string) { libraryProbes.WithLabelValues(result).Inc() }

// IncLibraryInvalidation counts a descriptor invalidated by a file event.
func IncLibraryInvalidation() { libraryInvalidations.Inc() }

// IncCapabilityRegistration counts a capability declaration.
func IncCapabilityRegistration(kind string) { capabilityRegistrations.WithLabelValues(kind).Inc() }
