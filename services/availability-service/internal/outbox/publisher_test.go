package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/serenity-care/platform/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestToMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := Record{
		ID:          7,
		EventID:     "evt-7",
		AggregateID: "win-1",
		EventType:   TopicWindowCreated,
		Payload:     []byte(`{"provider_id":"p"}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		CreatedAt:   created,
	}

	msg := toMessage(context.Background(), rec)
	if msg.Topic != TopicWindowCreated || string(msg.Key) != "win-1" {
		t.Fatalf("unexpected routing topic=%s key=%s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-7" || meta.EventType != TopicWindowCreated {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != rec.Traceparent {
		t.Fatalf("expected traceparent to be carried, got %q", got)
	}
	if !msg.Time.Equal(created) {
		t.Fatalf("expected message time from record")
	}
}
