package metrics

// MetricType is the only metric type reported for now.
const MetricType = "count"

// Metric describes a named counter. Metrics are declared once at startup and never mutated;
// identity is by Name.
type Metric struct {
	Name         string
	Scope        Scope
	TagDimension string // "" for untagged metrics
	Common       bool
	Type         string
}

// NewMetric declares a counter metric.
func NewMetric(name string, scope Scope, tagDimension string) *Metric {
	return &Metric{
		Name:         name,
		Scope:        scope,
		TagDimension: tagDimension,
		Common:       true,
		Type:         MetricType,
	}
}

// HasOperationScope reports whether the metric is buffered per operation.
func (m *Metric) HasOperationScope() bool {
	return m.Scope == ScopeOperation
}

// IsTagged reports whether the metric is split by a tag dimension.
func (m *Metric) IsTagged() bool {
	return m.TagDimension != ""
}

// Aggregated returns a handler keeping every point.
func (m *Metric) Aggregated() Handler {
	return m.newHandler(KindAggregated)
}

// Conflated returns a handler keeping a running sum.
func (m *Metric) Conflated() Handler {
	return m.newHandler(KindConflated)
}

// Delegating returns a handler writing through to target.
func (m *Metric) Delegating(target *Collector) Handler {
	return NewDelegatingHandler(m, target)
}

func (m *Metric) newHandler(k Kind) Handler {
	if m.IsTagged() {
		return NewTaggedHandler(m, func() Combiner { return NewCombiner(k) })
	}
	return NewDefaultHandler(m, NewCombiner(k))
}
