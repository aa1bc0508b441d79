package metrics

// Combiner turns a stream of raw values into reportable points.
// The implementations are AggregatedCombiner and ConflatedCombiner; the unexported
// method keeps the set closed.
type Combiner interface {
	Add(v Value)
	Drain() []Point
	Merge(data MetricData)

	kind() Kind
}

// NewCombiner builds the combiner for the given kind.
func NewCombiner(k Kind) Combiner {
	switch k {
	case KindAggregated:
		return &AggregatedCombiner{}
	case KindConflated:
		return &ConflatedCombiner{}
	}
	return &ConflatedCombiner{}
}

// AggregatedCombiner keeps one point per recorded value.
type AggregatedCombiner struct {
	points []Point
}

// Add appends a point stamped with the current time.
func (c *AggregatedCombiner) Add(v Value) {
	c.points = append(c.points, Point{Timestamp: nowMillis(), Value: v})
}

// Drain returns the recorded points in insertion order and empties the combiner.
func (c *AggregatedCombiner) Drain() []Point {
	points := c.points
	c.points = nil
	return points
}

// Merge appends foreign points after the local ones.
func (c *AggregatedCombiner) Merge(data MetricData) {
	c.points = append(c.points, data.Points...)
}

func (c *AggregatedCombiner) kind() Kind { return KindAggregated }

// ConflatedCombiner keeps a single running point.
type ConflatedCombiner struct {
	point *Point
}

// Add folds v into the running point, creating it on first use.
func (c *ConflatedCombiner) Add(v Value) {
	if c.point == nil {
		c.point = &Point{Timestamp: nowMillis()}
	}
	c.point.Value += v
}

// Drain returns the running point, or nil if nothing was added since the last drain.
func (c *ConflatedCombiner) Drain() []Point {
	if c.point == nil {
		return nil
	}
	p := *c.point
	c.point = nil
	return []Point{p}
}

// Merge folds the sum of the foreign points into the running point.
func (c *ConflatedCombiner) Merge(data MetricData) {
	if len(data.Points) == 0 {
		return
	}
	c.Add(data.Sum())
}

func (c *ConflatedCombiner) kind() Kind { return KindConflated }
