package metrics

// Handler binds a metric to its combiner(s) inside one Collector.
// The implementations are DefaultHandler, TaggedHandler and DelegatingHandler.
type Handler interface {
	// Add records v under tag. Untagged handlers ignore tag.
	Add(v Value, tag string)
	// Drain returns the non-empty results and resets local state.
	Drain() []MetricData
	// Merge folds foreign points into local state.
	Merge(data MetricData)

	handler()
}

// DefaultHandler is an untagged pass-through to a single combiner.
type DefaultHandler struct {
	metric   *Metric
	combiner Combiner
}

// NewDefaultHandler creates an untagged handler over combiner.
func NewDefaultHandler(metric *Metric, combiner Combiner) *DefaultHandler {
	return &DefaultHandler{metric: metric, combiner: combiner}
}

func (h *DefaultHandler) Add(v Value, _ string) {
	h.combiner.Add(v)
}

func (h *DefaultHandler) Drain() []MetricData {
	points := h.combiner.Drain()
	if len(points) == 0 {
		return nil
	}
	return []MetricData{{Metric: h.metric, Points: points}}
}

func (h *DefaultHandler) Merge(data MetricData) {
	h.combiner.Merge(data)
}

func (h *DefaultHandler) handler() {}

// TaggedHandler fans a metric out to one combiner per tag value.
// Buckets are created on demand and drained in first-seen order.
type TaggedHandler struct {
	metric    *Metric
	supplier  func() Combiner
	combiners map[string]Combiner
	order     []string
}

// NewTaggedHandler creates a tagged handler building bucket combiners with supplier.
func NewTaggedHandler(metric *Metric, supplier func() Combiner) *TaggedHandler {
	return &TaggedHandler{
		metric:    metric,
		supplier:  supplier,
		combiners: make(map[string]Combiner),
	}
}

func (h *TaggedHandler) Add(v Value, tag string) {
	h.bucket(tag).Add(v)
}

func (h *TaggedHandler) Drain() []MetricData {
	var result []MetricData
	for _, tag := range h.order {
		points := h.combiners[tag].Drain()
		if len(points) == 0 {
			continue
		}
		result = append(result, MetricData{Metric: h.metric, Points: points, Tag: tag})
	}
	return result
}

func (h *TaggedHandler) Merge(data MetricData) {
	h.bucket(data.Tag).Merge(data)
}

// Tags returns the bucket keys in first-seen order.
func (h *TaggedHandler) Tags() []string {
	tags := make([]string, len(h.order))
	copy(tags, h.order)
	return tags
}

func (h *TaggedHandler) bucket(tag string) Combiner {
	c, ok := h.combiners[tag]
	if !ok {
		c = h.supplier()
		h.combiners[tag] = c
		h.order = append(h.order, tag)
	}
	return c
}

func (h *TaggedHandler) handler() {}

// DelegatingHandler writes straight through to another collector.
// It holds no state, so Drain and Merge do nothing.
type DelegatingHandler struct {
	metric *Metric
	target *Collector
}

// NewDelegatingHandler creates a handler forwarding every Add to target.
func NewDelegatingHandler(metric *Metric, target *Collector) *DelegatingHandler {
	return &DelegatingHandler{metric: metric, target: target}
}

func (h *DelegatingHandler) Add(v Value, tag string) {
	h.target.AddMetric(h.metric, v, tag)
}

func (h *DelegatingHandler) Drain() []MetricData { return nil }

func (h *DelegatingHandler) Merge(MetricData) {}

func (h *DelegatingHandler) handler() {}
