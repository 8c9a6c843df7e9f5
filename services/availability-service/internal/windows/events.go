package windows

import (
	"encoding/json"
	"time"

	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/outbox"
)

// ChangedEvent is the payload of every availability.window.*.v1 event.
type ChangedEvent struct {
	ProviderID string              `json:"provider_id"`
	WindowID   string              `json:"window_id"`
	Kind       availability.Kind   `json:"kind"`
	Active     bool                `json:"active"`
	OccurredAt time.Time           `json:"occurred_at"`
	Window     availability.Window `json:"window"`
}

func newEvent(topic string, w availability.Window, at time.Time) (outbox.Event, error) {
	payload, err := json.Marshal(ChangedEvent{
		ProviderID: w.ProviderID,
		WindowID:   w.ID,
		Kind:       w.Kind(),
		Active:     w.Active,
		OccurredAt: at.UTC(),
		Window:     w,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: outbox.AggregateWindow,
		AggregateID:   w.ID,
		EventType:     topic,
		Payload:       payload,
	}, nil
}
