package observability

import (
	"bytes"
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracing_Disabled(t *testing.T) {
	var buf bytes.Buffer
	tp, err := InitTracing(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &buf))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if tp != nil {
		t.Error("Expected nil provider when tracing is disabled")
	}
}

func TestTracer_NotNil(t *testing.T) {
	if Tracer() == nil {
		t.Fatal("Expected a tracer from the global provider")
	}
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	if WithTraceContext(context.Background(), logger) != logger {
		t.Error("Expected the same logger without a recording span")
	}
}

func TestWithTraceContext_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "callback")
	defer span.End()

	var buf bytes.Buffer
	WithTraceContext(ctx, NewLogger(InfoLevel, &buf)).Info("traced")

	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace_id field, got %v", entry["trace_id"])
	}
	if entry["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("Expected span_id field, got %v", entry["span_id"])
	}
}
