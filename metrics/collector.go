package metrics

import "sync"

// HandlerBuilder picks the handler a collector uses for a metric it sees for the first time.
type HandlerBuilder func(*Metric) Handler

// Collector owns one handler per metric and supports add, drain and merge.
//
// A per-operation collector has a single writer, so its lock is never contended.
// The process-wide collector receives merges from finishing operations and drains from
// the reporter; the lock serializes them so a merge always happens-before the next drain.
type Collector struct {
	mu       sync.Mutex
	handlers map[string]Handler
	order    []string
	builder  HandlerBuilder
}

// NewCollector creates an empty collector.
func NewCollector(builder HandlerBuilder) *Collector {
	return &Collector{
		handlers: make(map[string]Handler),
		builder:  builder,
	}
}

// AddMetric records value for metric under tag. Nil metric or nil collector is a no-op.
func (c *Collector) AddMetric(metric *Metric, value Value, tag string) {
	if c == nil || metric == nil {
		return
	}

	c.mu.Lock()
	h := c.getOrCreate(metric)
	// Delegating handlers call into another collector; keep our lock released while they do.
	if d, ok := h.(*DelegatingHandler); ok {
		c.mu.Unlock()
		d.Add(value, tag)
		return
	}
	h.Add(value, tag)
	c.mu.Unlock()
}

// DrainMetrics drains every handler, clears the handler map and returns the
// non-empty results in first-use order.
func (c *Collector) DrainMetrics() []MetricData {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var result []MetricData
	for _, name := range c.order {
		result = append(result, c.handlers[name].Drain()...)
	}
	c.handlers = make(map[string]Handler)
	c.order = nil
	return result
}

// Merge folds foreign metric data into this collector, creating handlers on demand.
func (c *Collector) Merge(data []MetricData) {
	if c == nil || len(data) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range data {
		if d.Metric == nil {
			continue
		}
		c.getOrCreate(d.Metric).Merge(d)
	}
}

// Reset drops every handler without draining it.
func (c *Collector) Reset() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[string]Handler)
	c.order = nil
}

// Len returns the number of live handlers.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// Handler returns the handler currently bound to the named metric.
func (c *Collector) Handler(name string) (Handler, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[name]
	return h, ok
}

func (c *Collector) getOrCreate(metric *Metric) Handler {
	h, ok := c.handlers[metric.Name]
	if !ok {
		h = c.builder(metric)
		c.handlers[metric.Name] = h
		c.order = append(c.order, metric.Name)
	}
	return h
}
