package availability

import (
	"context"

	"cloud.google.com/go/civil"
)

// WindowStore is the read side the engine depends on.
//
// FindForDate may return windows already narrowed to the date or the provider's
// full set; the resolver filters again either way.
type WindowStore interface {
	FindActiveByProvider(ctx context.Context, providerID string) ([]Window, error)
	FindForDate(ctx context.Context, providerID string, date civil.Date) ([]Window, error)
}
