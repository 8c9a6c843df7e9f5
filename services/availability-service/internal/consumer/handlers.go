package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Invalidator drops cached availability for a provider.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID string) error
}

type windowEvent struct {
	ProviderID string `json:"provider_id"`
	WindowID   string `json:"window_id"`
}

// InvalidateOnWindowEvent keeps the slot cache in step with window changes made
// by any instance. A lost invalidation is bounded by the cache TTL.
func InvalidateOnWindowEvent(inv Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt windowEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		if evt.ProviderID == "" {
			return fmt.Errorf("decode %s: missing provider_id", msg.Topic)
		}
		if err := inv.Invalidate(ctx, evt.ProviderID); err != nil {
			return err
		}
		logger.Debug("availability cache invalidated", "provider_id", evt.ProviderID, "window_id", evt.WindowID, "topic", msg.Topic)
		return nil
	}
}
