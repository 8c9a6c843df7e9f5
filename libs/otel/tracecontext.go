package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C pair persisted next to work that is picked up later,
// such as outbox rows.
type TraceContext struct {
	Parent string
	State  string
}

// Capture serialises the span context carried by ctx.
func Capture(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier["traceparent"], State: carrier["tracestate"]}
}

// Into restores tc as the remote parent of ctx. An empty tc returns ctx unchanged.
func (tc TraceContext) Into(ctx context.Context) context.Context {
	if tc.Parent == "" {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": tc.Parent,
		"tracestate":  tc.State,
	})
}
