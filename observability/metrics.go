package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records state-transition activity for the solvency engine.
type EngineMetrics struct {
	operations     *prometheus.CounterVec
	liquidations   prometheus.Counter
	healthFailures *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablemint",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engine state transitions segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablemint",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Total completed liquidations.",
			}),
			healthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablemint",
				Subsystem: "engine",
				Name:      "health_check_failures_total",
				Help:      "Operations rejected by the solvency gate, segmented by operation.",
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.liquidations,
			engineRegistry.healthFailures,
		)
	})
	return engineRegistry
}

// RecordOperation counts one state transition attempt with its outcome.
func (m *EngineMetrics) RecordOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// RecordLiquidation counts one completed liquidation.
func (m *EngineMetrics) RecordLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// RecordHealthFailure counts one solvency-gate rejection for the operation.
func (m *EngineMetrics) RecordHealthFailure(op string) {
	if m == nil {
		return
	}
	m.healthFailures.WithLabelValues(op).Inc()
}
