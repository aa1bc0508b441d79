package telemetry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/lcx/iast/metrics"
)

// Namespace is the reporting namespace of every IAST metric.
const Namespace = "iast"

// PayloadPoint is a drained point encoded as [timestampMillis, value].
type PayloadPoint struct {
	Timestamp int64
	Value     float64
}

// MarshalJSON encodes the point as a two element array.
func (p PayloadPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Timestamp, p.Value})
}

// UnmarshalJSON decodes a two element array.
func (p *PayloadPoint) UnmarshalJSON(b []byte) error {
	var raw []json.Number
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("payload point: want 2 elements, got %d", len(raw))
	}
	ts, err := raw[0].Int64()
	if err != nil {
		// protojson writes large doubles in exponent form
		f, ferr := raw[0].Float64()
		if ferr != nil || f != math.Trunc(f) {
			return fmt.Errorf("payload point timestamp: %w", err)
		}
		ts = int64(f)
	}
	v, err := raw[1].Float64()
	if err != nil {
		return fmt.Errorf("payload point value: %w", err)
	}
	p.Timestamp, p.Value = ts, v
	return nil
}

// MarshalYAML encodes the point as a two element sequence.
func (p PayloadPoint) MarshalYAML() (any, error) {
	return []any{p.Timestamp, p.Value}, nil
}

// PayloadMetric is one drained series in the shape the telemetry backend expects.
type PayloadMetric struct {
	Metric    string         `json:"metric" yaml:"metric"`
	Common    bool           `json:"common" yaml:"common"`
	Type      string         `json:"type" yaml:"type"`
	Points    []PayloadPoint `json:"points" yaml:"points"`
	Tag       string         `json:"tag,omitempty" yaml:"tag,omitempty"`
	Namespace string         `json:"namespace" yaml:"namespace"`
}

// Sum returns the sum of the point values.
func (p PayloadMetric) Sum() float64 {
	var total float64
	for _, pt := range p.Points {
		total += pt.Value
	}
	return total
}

// ToPayload converts drained metric data into payload records. Entries without
// a metric or points are skipped.
func ToPayload(data []metrics.MetricData) []PayloadMetric {
	out := make([]PayloadMetric, 0, len(data))
	for _, d := range data {
		if d.Metric == nil || len(d.Points) == 0 {
			continue
		}
		out = append(out, newPayloadMetric(d))
	}
	return out
}

func newPayloadMetric(d metrics.MetricData) PayloadMetric {
	points := make([]PayloadPoint, len(d.Points))
	for i, p := range d.Points {
		points[i] = PayloadPoint{Timestamp: p.Timestamp, Value: float64(p.Value)}
	}
	return PayloadMetric{
		Metric:    d.Metric.Name,
		Common:    d.Metric.Common,
		Type:      d.Metric.Type,
		Points:    points,
		Tag:       payloadTag(d.Metric, d.Tag),
		Namespace: Namespace,
	}
}

func payloadTag(m *metrics.Metric, tag string) string {
	if !m.IsTagged() || tag == "" {
		return ""
	}
	return m.TagDimension + ":" + tag
}
