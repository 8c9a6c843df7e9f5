package availability

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// Defaults are the provider-level values used when no window governs a request.
type Defaults struct {
	BufferMinutes       int
	MinAdvance          time.Duration
	MaxAdvance          time.Duration
	SlotDurationMinutes int
}

func DefaultPolicy() Defaults {
	return Defaults{
		BufferMinutes:       DefaultBufferMinutes,
		MinAdvance:          DefaultMinAdvanceHours * time.Hour,
		MaxAdvance:          DefaultMaxAdvanceDays * 24 * time.Hour,
		SlotDurationMinutes: DefaultSlotDurationMinutes,
	}
}

func (d Defaults) normalized() Defaults {
	base := DefaultPolicy()
	if d.BufferMinutes < 0 {
		d.BufferMinutes = base.BufferMinutes
	}
	if d.MinAdvance < 0 {
		d.MinAdvance = base.MinAdvance
	}
	if d.MaxAdvance <= 0 {
		d.MaxAdvance = base.MaxAdvance
	}
	if d.SlotDurationMinutes <= 0 {
		d.SlotDurationMinutes = base.SlotDurationMinutes
	}
	return d
}

// Engine bundles the resolver, slot generator, validator and conflict check
// over one store. It holds no mutable state.
type Engine struct {
	store     WindowStore
	defaults  Defaults
	resolver  *Resolver
	validator *Validator
}

func NewEngine(store WindowStore, defaults Defaults) *Engine {
	defaults = defaults.normalized()
	return &Engine{
		store:     store,
		defaults:  defaults,
		resolver:  NewResolver(store),
		validator: NewValidator(store, defaults),
	}
}

// WithStore returns an engine reading from store, e.g. a transaction-bound repository.
func (e *Engine) WithStore(store WindowStore) *Engine {
	return NewEngine(store, e.defaults)
}

func (e *Engine) WithDefaults(defaults Defaults) *Engine {
	return NewEngine(e.store, defaults)
}

func (e *Engine) Defaults() Defaults {
	return e.defaults
}

func (e *Engine) ResolveWindows(ctx context.Context, providerID string, date civil.Date, opts ResolveOptions) (Resolved, error) {
	return e.resolver.Resolve(ctx, providerID, date, opts)
}

// GenerateSlots uses the engine's default duration when slotDurationMinutes is not positive.
func (e *Engine) GenerateSlots(resolved Resolved, slotDurationMinutes int) []Slot {
	if slotDurationMinutes <= 0 {
		slotDurationMinutes = e.defaults.SlotDurationMinutes
	}
	return GenerateSlots(resolved, slotDurationMinutes)
}

func (e *Engine) ValidateBooking(ctx context.Context, req BookingRequest) (Verdict, error) {
	return e.validator.Validate(ctx, req)
}

func (e *Engine) CheckConflicts(candidate Window, existing []Window) []Window {
	return CheckConflicts(candidate, existing)
}

// CheckConflictsForProvider loads the provider's active windows and checks candidate against them.
func (e *Engine) CheckConflictsForProvider(ctx context.Context, candidate Window) ([]Window, error) {
	existing, err := e.store.FindActiveByProvider(ctx, candidate.ProviderID)
	if err != nil {
		return nil, err
	}
	return CheckConflicts(candidate, existing), nil
}
