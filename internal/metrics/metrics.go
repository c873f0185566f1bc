// Package metrics exposes the engine's Prometheus instrumentation:
// container lifecycle counters and subprocess failure counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ContainersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocie_containers_total",
		Help: "Total number of container create attempts, by result.",
	}, []string{"result"})

	ContainersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocie_containers_active",
		Help: "Number of containers currently tracked by the registry.",
	})

	HandshakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocie_handshake_duration_seconds",
		Help:    "Duration of the supervisor handshake (spawn through console attach).",
		Buckets: prometheus.DefBuckets,
	})

	SubprocessFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocie_subprocess_failures_total",
		Help: "Total number of non-zero exits from external collaborator tools.",
	}, []string{"tool"})
)
