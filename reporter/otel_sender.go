package reporter

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSender adds drained point values to one Float64Counter per metric.
type OTelSender struct {
	meter metric.Meter

	mu       sync.RWMutex
	counters map[string]metric.Float64Counter
}

// NewOTelSender creates a sender recording on meter.
func NewOTelSender(meter metric.Meter) *OTelSender {
	return &OTelSender{
		meter:    meter,
		counters: make(map[string]metric.Float64Counter),
	}
}

func (s *OTelSender) Name() string { return "otel" }

func (s *OTelSender) Send(ctx context.Context, req *Request) error {
	for _, series := range req.Payload.Series {
		counter, err := s.counter("iast." + series.Metric)
		if err != nil {
			return err
		}
		v := series.Sum()
		if v <= 0 {
			continue
		}
		counter.Add(ctx, v, metric.WithAttributes(
			attribute.String("tag", series.Tag),
			attribute.String("namespace", series.Namespace),
		))
	}
	return nil
}

func (s *OTelSender) counter(name string) (metric.Float64Counter, error) {
	s.mu.RLock()
	counter, exists := s.counters[name]
	s.mu.RUnlock()
	if exists {
		return counter, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if counter, exists = s.counters[name]; exists {
		return counter, nil
	}
	counter, err := s.meter.Float64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create float counter %s: %w", name, err)
	}
	s.counters[name] = counter
	return counter, nil
}
