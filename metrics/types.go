package metrics

import "time"

// Kind selects the accumulation strategy used by a Combiner.
// The set is closed: every switch over Kind must handle both values.
type Kind int

const (
	KindConflated  Kind = iota // Running sum, one point per drain
	KindAggregated             // One point per recorded value, insertion order kept
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConflated:
		return "conflated"
	case KindAggregated:
		return "aggregated"
	}
	return "unknown"
}

// Scope tells whether a metric lives for the whole process or for one monitored operation.
type Scope int

const (
	ScopeGlobal    Scope = iota // Process-wide, written straight to the global collector
	ScopeOperation              // Buffered per operation, merged into the global collector at operation end
)

// String returns the upper-case name of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "GLOBAL"
	case ScopeOperation:
		return "OPERATION"
	}
	return "UNKNOWN"
}

// Value represents a metric value as a float64.
type Value float64

// Point is one timestamped value. Timestamp is in unix milliseconds.
type Point struct {
	Timestamp int64
	Value     Value
}

// MetricData is the unit produced by Drain and consumed by Merge.
// Tag is empty for untagged metrics and for the absent-tag bucket of tagged ones.
type MetricData struct {
	Metric *Metric
	Points []Point
	Tag    string
}

// Sum returns the sum of the point values.
func (d MetricData) Sum() Value {
	var total Value
	for _, p := range d.Points {
		total += p.Value
	}
	return total
}

// nowMillis is the clock used to stamp new points. Tests replace it.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}
