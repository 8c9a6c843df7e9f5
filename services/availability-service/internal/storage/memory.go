package storage

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/outbox"
)

// Memory is an in-process Transactor used by tests and local runs without
// Postgres. Transactions work on a copy that replaces the live state on commit.
type Memory struct {
	mu       sync.RWMutex
	state    memState
	now      func() time.Time
	txLocked sync.Mutex
}

type memState struct {
	windows  map[string]availability.Window
	sessions map[string][]availability.BookedSession
	events   []outbox.Event
}

func NewMemory() *Memory {
	return &Memory{
		state: memState{
			windows:  map[string]availability.Window{},
			sessions: map[string][]availability.BookedSession{},
		},
		now: time.Now,
	}
}

// SetClock fixes the timestamps written on insert and update.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) AddSession(providerID string, s availability.BookedSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.sessions[providerID] = append(m.state.sessions[providerID], s)
}

// Events returns the outbox events committed so far.
func (m *Memory) Events() []outbox.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.state.events)
}

func (m *Memory) FindActiveByProvider(_ context.Context, providerID string) ([]availability.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.list(providerID, false), nil
}

func (m *Memory) FindForDate(_ context.Context, providerID string, date civil.Date) ([]availability.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.forDate(providerID, date), nil
}

func (m *Memory) ListBookedIntervals(_ context.Context, providerID string, from, to time.Time) ([]availability.BookedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.booked(providerID, from, to), nil
}

func (m *Memory) Transact(ctx context.Context, fn func(Tx) error) error {
	// One writer at a time, like the advisory lock in Postgres.
	m.txLocked.Lock()
	defer m.txLocked.Unlock()

	m.mu.RLock()
	tx := &memTx{state: m.state.clone(), now: m.now}
	m.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = tx.state
	m.mu.Unlock()
	return nil
}

func (s memState) clone() memState {
	out := memState{
		windows:  maps.Clone(s.windows),
		sessions: make(map[string][]availability.BookedSession, len(s.sessions)),
		events:   slices.Clone(s.events),
	}
	for k, v := range s.sessions {
		out.sessions[k] = slices.Clone(v)
	}
	return out
}

func (s memState) list(providerID string, includeInactive bool) []availability.Window {
	var out []availability.Window
	for _, w := range s.windows {
		if w.ProviderID != providerID || (!w.Active && !includeInactive) {
			continue
		}
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b availability.Window) int {
		if c := strings.Compare(string(a.Kind()), string(b.Kind())); c != 0 {
			return c
		}
		if a.Start != b.Start {
			return int(a.Start - b.Start)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s memState) forDate(providerID string, date civil.Date) []availability.Window {
	var out []availability.Window
	for _, w := range s.list(providerID, false) {
		if w.AppliesOn(date) {
			out = append(out, w)
		}
	}
	return out
}

func (s memState) booked(providerID string, from, to time.Time) []availability.BookedSession {
	out := []availability.BookedSession{}
	for _, b := range s.sessions[providerID] {
		if b.Start.Before(to) && b.End.After(from) {
			out = append(out, b)
		}
	}
	return out
}

type memTx struct {
	state memState
	now   func() time.Time
}

func (t *memTx) FindActiveByProvider(_ context.Context, providerID string) ([]availability.Window, error) {
	return t.state.list(providerID, false), nil
}

func (t *memTx) FindForDate(_ context.Context, providerID string, date civil.Date) ([]availability.Window, error) {
	return t.state.forDate(providerID, date), nil
}

func (t *memTx) LockProvider(context.Context, string) error {
	return nil
}

func (t *memTx) Get(_ context.Context, providerID, id string) (availability.Window, error) {
	w, ok := t.state.windows[id]
	if !ok || w.ProviderID != providerID {
		return availability.Window{}, ErrNotFound
	}
	return w, nil
}

func (t *memTx) ListByProvider(_ context.Context, providerID string, includeInactive bool) ([]availability.Window, error) {
	return t.state.list(providerID, includeInactive), nil
}

func (t *memTx) Insert(_ context.Context, w availability.Window) (availability.Window, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := t.now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	t.state.windows[w.ID] = w
	return w, nil
}

func (t *memTx) Update(_ context.Context, w availability.Window) (availability.Window, error) {
	prev, ok := t.state.windows[w.ID]
	if !ok || prev.ProviderID != w.ProviderID {
		return availability.Window{}, ErrNotFound
	}
	w.CreatedAt = prev.CreatedAt
	w.UpdatedAt = t.now().UTC()
	t.state.windows[w.ID] = w
	return w, nil
}

func (t *memTx) SetActive(_ context.Context, providerID, id string, active bool) (availability.Window, error) {
	w, ok := t.state.windows[id]
	if !ok || w.ProviderID != providerID {
		return availability.Window{}, ErrNotFound
	}
	w.Active = active
	w.UpdatedAt = t.now().UTC()
	t.state.windows[id] = w
	return w, nil
}

func (t *memTx) ListBookedIntervals(_ context.Context, providerID string, from, to time.Time) ([]availability.BookedSession, error) {
	return t.state.booked(providerID, from, to), nil
}

func (t *memTx) Publish(_ context.Context, evt outbox.Event) error {
	t.state.events = append(t.state.events, evt)
	return nil
}

var (
	_ Transactor               = (*Memory)(nil)
	_ availability.WindowStore = (*Memory)(nil)
)
