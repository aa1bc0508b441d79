package telemetry

import "github.com/lcx/iast/metrics"

// NewGlobalCollector creates the process-wide collector. Operation-scoped metrics
// merged in at operation end keep one point per operation; global metrics are conflated.
func NewGlobalCollector() *metrics.Collector {
	return metrics.NewCollector(func(m *metrics.Metric) metrics.Handler {
		if m.HasOperationScope() {
			return m.Aggregated()
		}
		return m.Conflated()
	})
}

// NewOperationCollector creates a per-operation collector. Global metrics are
// written straight through to global.
func NewOperationCollector(global *metrics.Collector) *metrics.Collector {
	return metrics.NewCollector(func(m *metrics.Metric) metrics.Handler {
		if m.HasOperationScope() {
			return m.Conflated()
		}
		return m.Delegating(global)
	})
}
