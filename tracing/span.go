// Package tracing ties IAST operations to OpenTelemetry request spans.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lcx/iast/telemetry"
)

// spanTagger adapts a trace.Span to telemetry.SpanTagger.
type spanTagger struct {
	span trace.Span
}

// SpanTagger returns a tagger writing span attributes. A nil or non-recording
// span yields nil.
func SpanTagger(span trace.Span) telemetry.SpanTagger {
	if span == nil || !span.IsRecording() {
		return nil
	}
	return spanTagger{span: span}
}

func (t spanTagger) SetTag(key string, value any) {
	t.span.SetAttributes(toAttribute(key, value))
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

// Request is one traced request with its IAST operation.
type Request struct {
	Span      trace.Span
	Operation *telemetry.Operation
	tel       *telemetry.Telemetry
}

// StartRequest starts a server span and an IAST operation bound to the returned context.
func StartRequest(ctx context.Context, tracer trace.Tracer, tel *telemetry.Telemetry, name string) (context.Context, *Request) {
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
	ctx, op := tel.StartOperation(ctx)
	return ctx, &Request{Span: span, Operation: op, tel: tel}
}

// End ends the IAST operation, tags the span with its summary and ends the span.
func (r *Request) End() {
	if r == nil {
		return
	}
	r.tel.EndOperation(r.Operation, SpanTagger(r.Span))
	r.Span.End()
}
