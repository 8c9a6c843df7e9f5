package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// Reason explains why a request was not available.
type Reason string

const (
	ReasonTooSoon             Reason = "too_soon"
	ReasonTooFarAhead         Reason = "too_far_ahead"
	ReasonBlocked             Reason = "blocked"
	ReasonOutsideAvailability Reason = "outside_availability"
	ReasonBufferViolation     Reason = "buffer_violation"
)

// Verdict is the outcome of a booking check. Unavailable is a normal result,
// not an error.
type Verdict struct {
	Available         bool
	Reason            Reason
	GoverningWindowID string
}

func available(windowID string) Verdict {
	return Verdict{Available: true, GoverningWindowID: windowID}
}

func unavailable(reason Reason) Verdict {
	return Verdict{Reason: reason}
}

// BookedSession is an already reserved interval for the provider.
type BookedSession struct {
	ID    string
	Start time.Time
	End   time.Time
}

func (b BookedSession) Range() TimeRange {
	return TimeRange{Start: b.Start, End: b.End}
}

type BookingRequest struct {
	ProviderID  string
	Start       time.Time
	End         time.Time
	SessionType string
	Now         time.Time
	// Booked enables the buffer check when non-nil.
	Booked []BookedSession
	// IgnoreSessionID skips the session being rescheduled.
	IgnoreSessionID string
}

func (r BookingRequest) Range() TimeRange {
	return TimeRange{Start: r.Start, End: r.End}
}

var ErrInvalidRequest = errors.New("invalid booking request")

type Validator struct {
	store    WindowStore
	defaults Defaults
}

func NewValidator(store WindowStore, defaults Defaults) *Validator {
	return &Validator{store: store, defaults: defaults.normalized()}
}

// Validate checks, in order: advance window, exceptions, containment, buffer.
// It stops at the first failure.
func (v *Validator) Validate(ctx context.Context, req BookingRequest) (Verdict, error) {
	if req.ProviderID == "" {
		return Verdict{}, fmt.Errorf("%w: provider is required", ErrInvalidRequest)
	}
	if req.Start.IsZero() || req.End.IsZero() || req.Now.IsZero() {
		return Verdict{}, fmt.Errorf("%w: start, end and now are required", ErrInvalidRequest)
	}
	if !req.End.After(req.Start) {
		return Verdict{}, fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	}

	windows, err := v.store.FindActiveByProvider(ctx, req.ProviderID)
	if err != nil {
		return Verdict{}, err
	}

	requested := req.Range()
	var candidates, exceptions []Window
	for _, w := range windows {
		if w.ProviderID != "" && w.ProviderID != req.ProviderID {
			continue
		}
		if w.IsException() {
			exceptions = append(exceptions, w)
			continue
		}
		candidates = append(candidates, w)
	}
	sortGoverning(candidates)

	governing, govRange, found := findGoverning(candidates, requested, req.SessionType)

	minAdvance, maxAdvance := v.defaults.MinAdvance, v.defaults.MaxAdvance
	if found {
		minAdvance = time.Duration(governing.MinAdvanceHours) * time.Hour
		maxAdvance = time.Duration(governing.MaxAdvanceDays) * 24 * time.Hour
	}
	lead := req.Start.Sub(req.Now)
	if lead < minAdvance {
		return unavailable(ReasonTooSoon), nil
	}
	if lead > maxAdvance {
		return unavailable(ReasonTooFarAhead), nil
	}

	if blockedBy(exceptions, requested) {
		return unavailable(ReasonBlocked), nil
	}

	if !found {
		return unavailable(ReasonOutsideAvailability), nil
	}

	if req.Booked != nil {
		buffer := time.Duration(governing.BufferMinutes) * time.Minute
		for _, b := range req.Booked {
			if req.IgnoreSessionID != "" && b.ID == req.IgnoreSessionID {
				continue
			}
			br := b.Range()
			if !br.Overlaps(govRange) {
				continue
			}
			if br.Expand(buffer).Overlaps(requested) {
				return unavailable(ReasonBufferViolation), nil
			}
		}
	}

	return available(governing.ID), nil
}

// findGoverning returns the first window, in governing order, that allows the
// session type and fully contains requested on the requested start's local date.
func findGoverning(candidates []Window, requested TimeRange, sessionType string) (Window, TimeRange, bool) {
	for _, w := range candidates {
		if !w.AllowsSessionType(sessionType) {
			continue
		}
		loc, err := w.Location()
		if err != nil {
			continue
		}
		date := civil.DateOf(requested.Start.In(loc))
		if !w.AppliesOn(date) {
			continue
		}
		local, ok := localMinutes(requested, date, loc)
		if !ok {
			continue
		}
		if w.Interval().Contains(local) {
			return w, TimeRange{Start: w.Start.On(date, loc), End: w.End.On(date, loc)}, true
		}
	}
	return Window{}, TimeRange{}, false
}

// blockedBy reports whether any exception in force on the request's local
// start or end date overlaps it. An exception whose timezone cannot be loaded
// blocks every request.
func blockedBy(exceptions []Window, requested TimeRange) bool {
	for _, x := range exceptions {
		loc, err := x.Location()
		if err != nil {
			return true
		}
		first := civil.DateOf(requested.Start.In(loc))
		last := civil.DateOf(requested.End.Add(-time.Nanosecond).In(loc))
		for d := first; !d.After(last); d = d.AddDays(1) {
			if !x.AppliesOn(d) {
				continue
			}
			r := TimeRange{Start: x.Start.On(d, loc), End: x.End.On(d, loc)}
			if r.Overlaps(requested) {
				return true
			}
		}
	}
	return false
}

func sortGoverning(ws []Window) {
	rank := func(k Kind) int {
		if k == KindOneTime {
			return 0
		}
		return 1
	}
	sort.SliceStable(ws, func(i, j int) bool {
		if ri, rj := rank(ws[i].Kind()), rank(ws[j].Kind()); ri != rj {
			return ri < rj
		}
		return ws[i].ID < ws[j].ID
	})
}
