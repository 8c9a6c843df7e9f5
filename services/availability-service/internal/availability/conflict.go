package availability

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

var ErrConflict = errors.New("conflicting availability window")

// ConflictError carries the existing windows a candidate collides with.
type ConflictError struct {
	Conflicts []Window
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, w := range e.Conflicts {
		ids = append(ids, w.ID)
	}
	return fmt.Sprintf("%s: %s", ErrConflict, strings.Join(ids, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// CheckConflicts returns the active windows in existing that collide with
// candidate. An inactive candidate never conflicts.
func CheckConflicts(candidate Window, existing []Window) []Window {
	if !candidate.Active || candidate.Schedule == nil {
		return nil
	}
	var out []Window
	for _, e := range existing {
		if candidate.ID != "" && e.ID == candidate.ID {
			continue
		}
		if !e.Active || e.Schedule == nil {
			continue
		}
		if candidate.ProviderID != "" && e.ProviderID != "" && e.ProviderID != candidate.ProviderID {
			continue
		}
		if Conflicts(candidate, e) {
			out = append(out, e)
		}
	}
	return out
}

// Conflicts applies the pairwise rule. Exceptions only collide with other
// exceptions; they exist to override the other kinds. Windows in different
// timezones are compared as instants whenever one of them is dated; two
// recurring windows in different zones are compared by wall clock, which can
// over-report around offset changes.
func Conflicts(a, b Window) bool {
	if a.IsException() != b.IsException() {
		return false
	}
	if !sameZone(a, b) {
		if d, ok := a.Date(); ok {
			return datedOverlaps(a, d, b)
		}
		if d, ok := b.Date(); ok {
			return datedOverlaps(b, d, a)
		}
	}
	if !a.Interval().Overlaps(b.Interval()) {
		return false
	}

	switch sa := a.Schedule.(type) {
	case Recurring:
		switch sb := b.Schedule.(type) {
		case Recurring:
			return sa.Weekday == sb.Weekday && sa.Period.Overlaps(sb.Period)
		case OneTime:
			return sa.AppliesOn(sb.Date)
		}
	case OneTime:
		switch sb := b.Schedule.(type) {
		case OneTime:
			return sa.Date == sb.Date
		case Recurring:
			return sb.AppliesOn(sa.Date)
		}
	case Exception:
		if sb, ok := b.Schedule.(Exception); ok {
			return sa.Date == sb.Date
		}
	}
	return false
}

func sameZone(a, b Window) bool {
	zone := func(w Window) string {
		if w.Timezone == "" {
			return "UTC"
		}
		return w.Timezone
	}
	return zone(a) == zone(b)
}

// datedOverlaps compares dated's absolute range on d with every occurrence of
// other on the neighbouring local dates. A zone that cannot be loaded counts
// as a conflict so the provider gets to review it.
func datedOverlaps(dated Window, d civil.Date, other Window) bool {
	r, err := dated.RangeOn(d)
	if err != nil {
		return true
	}
	for _, od := range []civil.Date{d.AddDays(-1), d, d.AddDays(1)} {
		if !other.Schedule.AppliesOn(od) {
			continue
		}
		or, err := other.RangeOn(od)
		if err != nil {
			return true
		}
		if or.Overlaps(r) {
			return true
		}
	}
	return false
}
