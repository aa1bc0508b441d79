package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
)

// Propagator is the W3C trace context plus baggage propagator.
var Propagator propagation.TextMapPropagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// InjectHeaders writes the span context of ctx into h.
func InjectHeaders(ctx context.Context, h http.Header) {
	Propagator.Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHeaders returns ctx carrying the remote span context found in h.
func ExtractHeaders(ctx context.Context, h http.Header) context.Context {
	return Propagator.Extract(ctx, propagation.HeaderCarrier(h))
}

// InjectMap writes the span context of ctx into m.
func InjectMap(ctx context.Context, m map[string]string) {
	Propagator.Inject(ctx, propagation.MapCarrier(m))
}

// ExtractMap returns ctx carrying the remote span context found in m.
func ExtractMap(ctx context.Context, m map[string]string) context.Context {
	return Propagator.Extract(ctx, propagation.MapCarrier(m))
}
