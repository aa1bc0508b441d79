package telemetry

import "github.com/lcx/iast/metrics"

// Tag dimensions.
const (
	TagVulnerabilityType = "vulnerability_type"
	TagSourceType        = "source_type"
	TagPropagationType   = "propagation_type"
)

// Propagation types reported under TagPropagationType.
const (
	PropagationString = "STRING"
	PropagationJSON   = "JSON"
	PropagationURL    = "URL"
)

var (
	InstrumentedPropagation = metrics.NewMetric("instrumented.propagation", metrics.ScopeGlobal, TagPropagationType)
	InstrumentedSource      = metrics.NewMetric("instrumented.source", metrics.ScopeGlobal, TagSourceType)
	InstrumentedSink        = metrics.NewMetric("instrumented.sink", metrics.ScopeGlobal, TagVulnerabilityType)

	ExecutedPropagation = metrics.NewMetric("executed.propagation", metrics.ScopeOperation, TagPropagationType)
	ExecutedSource      = metrics.NewMetric("executed.source", metrics.ScopeOperation, TagSourceType)
	ExecutedSink        = metrics.NewMetric("executed.sink", metrics.ScopeOperation, TagVulnerabilityType)
	ExecutedTainted     = metrics.NewMetric("executed.tainted", metrics.ScopeOperation, "")

	RequestTainted = metrics.NewMetric("request.tainted", metrics.ScopeOperation, "")

	InstrumentationTime = metrics.NewMetric("instrumentation.time", metrics.ScopeGlobal, "")
)

var catalog = []*metrics.Metric{
	InstrumentedPropagation,
	InstrumentedSource,
	InstrumentedSink,
	ExecutedPropagation,
	ExecutedSource,
	ExecutedSink,
	ExecutedTainted,
	RequestTainted,
	InstrumentationTime,
}

var byName = func() map[string]*metrics.Metric {
	m := make(map[string]*metrics.Metric, len(catalog))
	for _, metric := range catalog {
		m[metric.Name] = metric
	}
	return m
}()

// Lookup returns the catalog metric with the given name.
func Lookup(name string) (*metrics.Metric, bool) {
	m, ok := byName[name]
	return m, ok
}

// Metrics returns every catalog metric in declaration order.
func Metrics() []*metrics.Metric {
	out := make([]*metrics.Metric, len(catalog))
	copy(out, catalog)
	return out
}

// ExecutedMetric returns the executed metric of a subscription dimension.
// Anything but the vulnerability and propagation dimensions counts as a source.
func ExecutedMetric(tagDimension string) *metrics.Metric {
	switch tagDimension {
	case TagVulnerabilityType:
		return ExecutedSink
	case TagPropagationType:
		return ExecutedPropagation
	default:
		return ExecutedSource
	}
}

// InstrumentedMetric returns the instrumented metric of a subscription dimension.
func InstrumentedMetric(tagDimension string) *metrics.Metric {
	switch tagDimension {
	case TagVulnerabilityType:
		return InstrumentedSink
	case TagPropagationType:
		return InstrumentedPropagation
	default:
		return InstrumentedSource
	}
}
