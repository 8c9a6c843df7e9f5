package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestInjectAndExtractTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	meta := EventMeta{EventID: "evt-1", EventType: "availability.window.created.v1"}
	headers := InjectTraceHeaders(ctx, meta.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}

	msg := kafka.Message{Topic: "t", Headers: headers}
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), msg))
	if got.TraceID() != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, got.TraceID())
	}
	if m := ExtractEventMeta(msg); m != meta {
		t.Fatalf("expected %+v, got %+v", meta, m)
	}
}

func TestExtractEventMetaFallbacks(t *testing.T) {
	m := ExtractEventMeta(kafka.Message{Topic: "topic-a", Key: []byte("key-1")})
	if m.EventID != "key-1" || m.EventType != "topic-a" {
		t.Fatalf("unexpected meta %+v", m)
	}
	if got := SplitBrokers(" a:9092, ,b:9092"); len(got) != 2 {
		t.Fatalf("unexpected brokers %v", got)
	}
}
