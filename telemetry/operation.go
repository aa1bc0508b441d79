package telemetry

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lcx/iast/metrics"
)

// Operation is one in-flight unit of monitored work, such as an HTTP request.
// A collecting operation owns a collector created on the first metric write and
// drained exactly once by Telemetry.EndOperation. Writes after the end are discarded.
type Operation struct {
	id         string
	collecting bool
	global     *metrics.Collector

	mu        sync.Mutex
	collector *metrics.Collector
	ended     bool
}

func newOperation(collecting bool, global *metrics.Collector) *Operation {
	return &Operation{
		id:         uuid.NewString(),
		collecting: collecting,
		global:     global,
	}
}

// ID returns the operation's unique identifier.
func (o *Operation) ID() string {
	if o == nil {
		return ""
	}
	return o.id
}

// IsCollecting reports whether the operation buffers operation-scoped metrics.
func (o *Operation) IsCollecting() bool {
	return o != nil && o.collecting
}

// HasCollector reports whether a metric has been written to the operation.
func (o *Operation) HasCollector() bool {
	if o == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.collector != nil
}

// Ended reports whether the operation has been ended.
func (o *Operation) Ended() bool {
	if o == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ended
}

// collectorForWrite returns the operation collector, creating it on first use.
// It returns nil for non-collecting or ended operations.
func (o *Operation) collectorForWrite() *metrics.Collector {
	if !o.IsCollecting() {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ended {
		return nil
	}
	if o.collector == nil {
		o.collector = NewOperationCollector(o.global)
	}
	return o.collector
}

// end marks the operation ended and drains its collector. Only the first call
// returns ok.
func (o *Operation) end() (data []metrics.MetricData, ok bool) {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return nil, false
	}
	o.ended = true
	c := o.collector
	o.collector = nil
	o.mu.Unlock()

	return c.DrainMetrics(), true
}

type operationKey struct{}

// WithOperation returns a copy of ctx carrying op.
func WithOperation(ctx context.Context, op *Operation) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFromContext returns the operation carried by ctx, or nil.
func OperationFromContext(ctx context.Context) *Operation {
	if ctx == nil {
		return nil
	}
	op, _ := ctx.Value(operationKey{}).(*Operation)
	return op
}
