package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Harness-level prometheus metrics, registered on the default registry so
// the CLI can expose them alongside the otel prometheus exporter output.
var (
	InjectedFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harness",
		Name:      "injected_faults_total",
		Help:      "Number of faults injected, by scenario.",
	}, []string{"scenario"})

	RecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harness",
		Name:      "recoveries_total",
		Help:      "Number of scenario recoveries, by scenario and verdict.",
	}, []string{"scenario", "verdict"})

	RecoverySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "harness",
		Name:      "recovery_seconds",
		Help:      "Wall-clock seconds from fault onset to verified recovery.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"scenario"})

	ActiveStressWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "harness",
		Name:      "active_stress_workers",
		Help:      "Live resource-limiter workers, by resource kind.",
	}, []string{"resource"})
)
