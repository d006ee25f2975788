// Package metrics holds the prometheus collectors for judge runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "judge"

var (
	// 100ms -> 10min
	runBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300, 600}

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "runs_total",
		Help:      "Number of finalized judge runs by verdict",
	}, []string{"verdict"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a judge run from claim to finalize",
		Buckets:   runBuckets,
	})

	runsInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "runs_inflight",
		Help:      "Number of judge runs currently holding a worker slot",
	})

	sandboxCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "sandbox_calls_total",
		Help:      "Number of sandbox run requests by reported status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, runsInflight, sandboxCalls)
}

// RunStarted marks a worker slot as busy and returns the func that frees it.
func RunStarted() func() {
	runsInflight.Inc()
	return runsInflight.Dec
}

// RunFinished records a finalized run.
func RunFinished(verdict string, elapsed time.Duration) {
	runsTotal.WithLabelValues(verdict).Inc()
	runDuration.Observe(elapsed.Seconds())
}

// SandboxCall records one sandbox response; status is "transport_error" when no response arrived.
func SandboxCall(status string) {
	sandboxCalls.WithLabelValues(status).Inc()
}
