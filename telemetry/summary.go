package telemetry

import (
	"github.com/lcx/iast/metrics"
)

// SummaryPrefix prefixes every per-operation summary tag.
const SummaryPrefix = "_dd.instrumentation_telemetry_data.iast"

// SpanTagger receives the per-operation summary. It is typically the operation's root span.
type SpanTagger interface {
	SetTag(key string, value any)
}

// SummaryTag returns the span tag key for a metric name.
func SummaryTag(metricName string) string {
	return SummaryPrefix + "." + metricName
}

// SummaryEntry is the total of one operation-scoped metric across all its tags.
type SummaryEntry struct {
	Key   string
	Value float64
}

// Summarize sums the points of every operation-scoped metric across tags.
// Entries are returned in first-seen metric order.
func Summarize(data []metrics.MetricData) []SummaryEntry {
	var entries []SummaryEntry
	index := make(map[string]int)
	for _, d := range data {
		if d.Metric == nil || !d.Metric.HasOperationScope() {
			continue
		}
		i, ok := index[d.Metric.Name]
		if !ok {
			i = len(entries)
			index[d.Metric.Name] = i
			entries = append(entries, SummaryEntry{Key: SummaryTag(d.Metric.Name)})
		}
		entries[i].Value += float64(d.Sum())
	}
	return entries
}

// TagSpan sets the summary of data on span. A nil span is ignored.
func TagSpan(span SpanTagger, data []metrics.MetricData) {
	if span == nil {
		return
	}
	for _, e := range Summarize(data) {
		span.SetTag(e.Key, e.Value)
	}
}
