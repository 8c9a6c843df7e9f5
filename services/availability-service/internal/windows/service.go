package windows

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	otelx "github.com/serenity-care/platform/libs/otel"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/outbox"
	"github.com/serenity-care/platform/services/availability-service/internal/policy"
	"github.com/serenity-care/platform/services/availability-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// bookedLookaround is how far either side of a request booked sessions are loaded
// for the buffer check.
const bookedLookaround = 24 * time.Hour

// Invalidator drops cached availability for a provider.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID string) error
}

// Service owns the window lifecycle and transaction-scoped booking checks.
type Service struct {
	store       storage.Transactor
	engine      *availability.Engine
	policies    policy.Provider
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.Transactor, engine *availability.Engine, policies policy.Provider, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Change is the outcome of a lifecycle call. Conflicts is only non-empty when
// conflicts were explicitly allowed.
type Change struct {
	Window    availability.Window   `json:"window"`
	Conflicts []availability.Window `json:"conflicts,omitempty"`
}

func (s *Service) Create(ctx context.Context, w availability.Window, allowConflicts bool) (Change, error) {
	ctx, span := startSpan(ctx, "windows.create", w.ProviderID)
	defer span.End()
	w.ID = ""
	w.Active = true
	if err := w.Validate(); err != nil {
		return Change{}, err
	}

	var change Change
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		conflicts, err := s.lockAndCheck(ctx, tx, w, allowConflicts)
		if err != nil {
			return err
		}
		created, err := tx.Insert(ctx, w)
		if err != nil {
			return err
		}
		change = Change{Window: created, Conflicts: conflicts}
		return s.publish(ctx, tx, outbox.TopicWindowCreated, created)
	})
	if err != nil {
		return Change{}, recordErr(span, err)
	}
	s.afterCommit(ctx, change, "window created")
	return change, nil
}

// Update replaces a window's definition; its active flag is kept.
func (s *Service) Update(ctx context.Context, w availability.Window, allowConflicts bool) (Change, error) {
	ctx, span := startSpan(ctx, "windows.update", w.ProviderID)
	defer span.End()
	if w.ID == "" {
		return Change{}, storage.ErrNotFound
	}

	var change Change
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		if err := tx.LockProvider(ctx, w.ProviderID); err != nil {
			return err
		}
		prev, err := tx.Get(ctx, w.ProviderID, w.ID)
		if err != nil {
			return err
		}
		w.Active = prev.Active
		if err := w.Validate(); err != nil {
			return err
		}
		conflicts, err := s.conflicts(ctx, tx, w, allowConflicts)
		if err != nil {
			return err
		}
		updated, err := tx.Update(ctx, w)
		if err != nil {
			return err
		}
		change = Change{Window: updated, Conflicts: conflicts}
		return s.publish(ctx, tx, outbox.TopicWindowUpdated, updated)
	})
	if err != nil {
		return Change{}, recordErr(span, err)
	}
	s.afterCommit(ctx, change, "window updated")
	return change, nil
}

// Deactivate hides a window without deleting it. Deactivating an inactive
// window succeeds and emits nothing.
func (s *Service) Deactivate(ctx context.Context, providerID, id string) (availability.Window, error) {
	ctx, span := startSpan(ctx, "windows.deactivate", providerID)
	defer span.End()
	var change Change
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		if err := tx.LockProvider(ctx, providerID); err != nil {
			return err
		}
		prev, err := tx.Get(ctx, providerID, id)
		if err != nil {
			return err
		}
		if !prev.Active {
			change.Window = prev
			return nil
		}
		w, err := tx.SetActive(ctx, providerID, id, false)
		if err != nil {
			return err
		}
		change.Window = w
		return s.publish(ctx, tx, outbox.TopicWindowDeactivated, w)
	})
	if err != nil {
		return availability.Window{}, recordErr(span, err)
	}
	s.afterCommit(ctx, change, "window deactivated")
	return change.Window, nil
}

// Reactivate brings a window back, checking it against the windows that are active now.
func (s *Service) Reactivate(ctx context.Context, providerID, id string, allowConflicts bool) (Change, error) {
	ctx, span := startSpan(ctx, "windows.reactivate", providerID)
	defer span.End()
	var change Change
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		if err := tx.LockProvider(ctx, providerID); err != nil {
			return err
		}
		prev, err := tx.Get(ctx, providerID, id)
		if err != nil {
			return err
		}
		if prev.Active {
			change.Window = prev
			return nil
		}
		prev.Active = true
		conflicts, err := s.conflicts(ctx, tx, prev, allowConflicts)
		if err != nil {
			return err
		}
		w, err := tx.SetActive(ctx, providerID, id, true)
		if err != nil {
			return err
		}
		change = Change{Window: w, Conflicts: conflicts}
		return s.publish(ctx, tx, outbox.TopicWindowReactivated, w)
	})
	if err != nil {
		return Change{}, recordErr(span, err)
	}
	s.afterCommit(ctx, change, "window reactivated")
	return change, nil
}

func (s *Service) Get(ctx context.Context, providerID, id string) (availability.Window, error) {
	var w availability.Window
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		var err error
		w, err = tx.Get(ctx, providerID, id)
		return err
	})
	return w, err
}

func (s *Service) List(ctx context.Context, providerID string, includeInactive bool) ([]availability.Window, error) {
	var out []availability.Window
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListByProvider(ctx, providerID, includeInactive)
		return err
	})
	return out, err
}

// DayView is a provider's resolved schedule for one date.
type DayView struct {
	Date       civil.Date              `json:"date"`
	Recurring  []availability.Window   `json:"recurring"`
	OneTime    []availability.Window   `json:"one_time"`
	Exceptions []availability.Window   `json:"exceptions"`
	Free       []availability.Interval `json:"free"`
}

// ResolveDay resolves every window for date, without session type narrowing,
// and computes the free wall-clock intervals left after exceptions.
func (s *Service) ResolveDay(ctx context.Context, providerID string, date civil.Date) (DayView, error) {
	resolved, err := s.engine.ResolveWindows(ctx, providerID, date, availability.ResolveOptions{})
	if err != nil {
		return DayView{}, err
	}
	var free, blocked []availability.Interval
	for _, w := range resolved.Available() {
		free = append(free, w.Interval())
	}
	for _, w := range resolved.Exceptions {
		blocked = append(blocked, w.Interval())
	}
	return DayView{
		Date:       resolved.Date,
		Recurring:  nonNil(resolved.Recurring),
		OneTime:    nonNil(resolved.OneTime),
		Exceptions: nonNil(resolved.Exceptions),
		Free:       availability.FreeIntervals(free, blocked),
	}, nil
}

// Check validates req against one consistent snapshot of windows and booked sessions.
func (s *Service) Check(ctx context.Context, req availability.BookingRequest) (availability.Verdict, error) {
	ctx, span := startSpan(ctx, "windows.check", req.ProviderID)
	defer span.End()
	var verdict availability.Verdict
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		var err error
		verdict, err = s.CheckTx(ctx, tx, req)
		return err
	})
	if err == nil {
		span.SetAttributes(attribute.Bool("available", verdict.Available), attribute.String("reason", string(verdict.Reason)))
	}
	return verdict, recordErr(span, err)
}

// CheckTx runs the check inside a caller-owned transaction, so a booking can be
// validated and written atomically.
func (s *Service) CheckTx(ctx context.Context, tx storage.Tx, req availability.BookingRequest) (availability.Verdict, error) {
	if req.Now.IsZero() {
		req.Now = s.now()
	}
	defaults, err := s.policies.Defaults(ctx, req.ProviderID)
	if err != nil {
		return availability.Verdict{}, err
	}
	if req.Booked == nil && req.End.After(req.Start) {
		booked, err := tx.ListBookedIntervals(ctx, req.ProviderID, req.Start.Add(-bookedLookaround), req.End.Add(bookedLookaround))
		if err != nil {
			return availability.Verdict{}, err
		}
		req.Booked = booked
		if req.Booked == nil {
			req.Booked = []availability.BookedSession{}
		}
	}
	return s.engine.WithDefaults(defaults).WithStore(tx).ValidateBooking(ctx, req)
}

func (s *Service) lockAndCheck(ctx context.Context, tx storage.Tx, w availability.Window, allowConflicts bool) ([]availability.Window, error) {
	if err := tx.LockProvider(ctx, w.ProviderID); err != nil {
		return nil, err
	}
	return s.conflicts(ctx, tx, w, allowConflicts)
}

func (s *Service) conflicts(ctx context.Context, tx storage.Tx, w availability.Window, allowConflicts bool) ([]availability.Window, error) {
	found, err := s.engine.WithStore(tx).CheckConflictsForProvider(ctx, w)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 && !allowConflicts {
		return nil, &availability.ConflictError{Conflicts: found}
	}
	return found, nil
}

func (s *Service) publish(ctx context.Context, tx storage.Tx, topic string, w availability.Window) error {
	evt, err := newEvent(topic, w, s.now())
	if err != nil {
		return err
	}
	return tx.Publish(ctx, evt)
}

func (s *Service) afterCommit(ctx context.Context, change Change, msg string) {
	w := change.Window
	if len(change.Conflicts) > 0 {
		ids := make([]string, 0, len(change.Conflicts))
		for _, c := range change.Conflicts {
			ids = append(ids, c.ID)
		}
		s.logger.Warn(msg+" with conflicts", "provider_id", w.ProviderID, "window_id", w.ID, "conflicts", ids)
	} else {
		s.logger.Info(msg, "provider_id", w.ProviderID, "window_id", w.ID, "kind", w.Kind())
	}
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, w.ProviderID); err != nil {
		s.logger.Warn("availability cache invalidation failed", "provider_id", w.ProviderID, "err", err)
	}
}

func nonNil(ws []availability.Window) []availability.Window {
	if ws == nil {
		return []availability.Window{}
	}
	return ws
}

// IsNotFound reports whether err means the window does not exist for the provider.
func IsNotFound(err error) bool {
	return storage.IsNotFound(err)
}

// IsConflict reports whether err is a window conflict.
func IsConflict(err error) bool {
	return errors.Is(err, availability.ErrConflict)
}

func startSpan(ctx context.Context, name, providerID string) (context.Context, trace.Span) {
	return otelx.Start(ctx, "availability-service/windows", name, attribute.String("provider_id", providerID))
}

// recordErr marks the span failed for infrastructure errors; rejected input
// and conflicts are outcomes, not failures.
func recordErr(span trace.Span, err error) error {
	if err == nil || errors.Is(err, availability.ErrInvalidWindow) || errors.Is(err, availability.ErrConflict) ||
		errors.Is(err, availability.ErrInvalidRequest) || IsNotFound(err) {
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
