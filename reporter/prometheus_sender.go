package reporter

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSender adds drained point values to a counter labelled by metric and tag.
type PrometheusSender struct {
	points *prometheus.CounterVec
}

// NewPrometheusSender registers the counter on reg, reusing an identical
// counter registered earlier.
func NewPrometheusSender(reg prometheus.Registerer) (*PrometheusSender, error) {
	points := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iast",
		Subsystem: "telemetry",
		Name:      "points_total",
		Help:      "Sum of drained IAST telemetry point values.",
	}, []string{"metric", "tag"})

	if err := reg.Register(points); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		points = existing
	}
	return &PrometheusSender{points: points}, nil
}

func (s *PrometheusSender) Name() string { return "prometheus" }

func (s *PrometheusSender) Send(_ context.Context, req *Request) error {
	for _, series := range req.Payload.Series {
		if v := series.Sum(); v > 0 {
			s.points.WithLabelValues(series.Metric, series.Tag).Add(v)
		}
	}
	return nil
}
