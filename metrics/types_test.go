package metrics

import (
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindConflated, "conflated"},
		{KindAggregated, "aggregated"},
		{Kind(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Kind.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopeString(t *testing.T) {
	if ScopeGlobal.String() != "GLOBAL" {
		t.Errorf("Expected GLOBAL, got %s", ScopeGlobal.String())
	}
	if ScopeOperation.String() != "OPERATION" {
		t.Errorf("Expected OPERATION, got %s", ScopeOperation.String())
	}
	if Scope(7).String() != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN, got %s", Scope(7).String())
	}
}

func TestMetricDataSum(t *testing.T) {
	d := MetricData{Points: []Point{{Value: 1.5}, {Value: 2.5}, {Value: 6}}}
	if d.Sum() != 10 {
		t.Errorf("Expected 10, got %v", d.Sum())
	}

	var empty MetricData
	if empty.Sum() != 0 {
		t.Errorf("Expected 0 for empty data, got %v", empty.Sum())
	}
}

func TestNewMetricDefaults(t *testing.T) {
	m := NewMetric("executed.sink", ScopeOperation, "vulnerability_type")

	if !m.Common {
		t.Error("Expected metric to be common")
	}
	if m.Type != MetricType {
		t.Errorf("Expected type %q, got %q", MetricType, m.Type)
	}
	if !m.HasOperationScope() {
		t.Error("Expected operation scope")
	}
	if !m.IsTagged() {
		t.Error("Expected tagged metric")
	}

	g := NewMetric("instrumentation.time", ScopeGlobal, "")
	if g.HasOperationScope() || g.IsTagged() {
		t.Error("Expected untagged global metric")
	}
}

// pinClock fixes the point clock for the duration of a test.
func pinClock(t *testing.T, ts int64) {
	t.Helper()
	prev := nowMillis
	nowMillis = func() int64 { return ts }
	t.Cleanup(func() { nowMillis = prev })
}
