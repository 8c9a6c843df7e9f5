package policy

import (
	"context"

	"github.com/serenity-care/platform/services/availability-service/internal/availability"
)

// Provider supplies the booking defaults that apply when no window governs a request.
type Provider interface {
	Defaults(ctx context.Context, providerID string) (availability.Defaults, error)
}

type staticProvider struct {
	defaults availability.Defaults
}

func NewStaticProvider(defaults availability.Defaults) Provider {
	return &staticProvider{defaults: defaults}
}

func (p *staticProvider) Defaults(_ context.Context, _ string) (availability.Defaults, error) {
	return p.defaults, nil
}
