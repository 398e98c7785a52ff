// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_proc_terminate_total",
		Help: "Signals sent to encoder process groups",
	}, []string{"signal", "result"})

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loki_proc_wait_total",
		Help: "Exit outcome of terminated encoder processes",
	}, []string{"outcome"})
)

// IncProcTerminate counts a termination signal by result (sent|esrch|error).
func IncProcTerminate(signal, result string) {
	procTerminate.WithLabelValues(signal, result).Inc()
}

// IncProcWait counts the exit outcome after termination.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}
