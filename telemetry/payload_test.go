package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lcx/iast/metrics"
)

func TestToPayload_JSONShape(t *testing.T) {
	data := []metrics.MetricData{
		{Metric: ExecutedSink, Tag: "SQL_INJECTION", Points: []metrics.Point{{Timestamp: 1000, Value: 3}, {Timestamp: 2000, Value: 1}}},
		{Metric: RequestTainted, Points: []metrics.Point{{Timestamp: 1500, Value: 2}}},
		{Metric: InstrumentedSource, Tag: "", Points: []metrics.Point{{Timestamp: 1600, Value: 4}}},
		{Metric: ExecutedSource, Tag: "http.request.body"},
		{Metric: nil, Points: []metrics.Point{{Timestamp: 1, Value: 1}}},
	}

	payload := ToPayload(data)
	require.Len(t, payload, 3)

	b, err := json.Marshal(payload[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"metric": "executed.sink",
		"common": true,
		"type": "count",
		"points": [[1000, 3], [2000, 1]],
		"tag": "vulnerability_type:SQL_INJECTION",
		"namespace": "iast"
	}`, string(b))

	b, err = json.Marshal(payload[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"metric": "request.tainted",
		"common": true,
		"type": "count",
		"points": [[1500, 2]],
		"namespace": "iast"
	}`, string(b))

	assert.Empty(t, payload[2].Tag, "empty tag on a tagged metric is absent")
	assert.Equal(t, float64(4), payload[2].Sum())
}

func TestPayloadPoint_RoundTrip(t *testing.T) {
	in := []PayloadMetric{{
		Metric:    "executed.source",
		Common:    true,
		Type:      "count",
		Points:    []PayloadPoint{{Timestamp: 1700000000123, Value: 2.5}},
		Tag:       "source_type:http.request.parameter",
		Namespace: Namespace,
	}}

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out []PayloadMetric
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	var bad PayloadPoint
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`[1.5, 2]`), &bad))

	var exp PayloadPoint
	require.NoError(t, json.Unmarshal([]byte(`[1.7e+12, 2]`), &exp))
	assert.Equal(t, PayloadPoint{Timestamp: 1700000000000, Value: 2}, exp)
}

func TestPayloadPoint_YAML(t *testing.T) {
	b, err := yaml.Marshal(PayloadMetric{
		Metric: "executed.tainted",
		Type:   "count",
		Points: []PayloadPoint{{Timestamp: 10, Value: 1.5}},
	})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(b, &generic))
	assert.Equal(t, []any{[]any{10, 1.5}}, generic["points"])
	assert.NotContains(t, generic, "tag")
}
