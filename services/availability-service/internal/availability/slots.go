package availability

import (
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const DefaultSlotDurationMinutes = 60

// Slot is a candidate bookable interval. It reserves nothing.
type Slot struct {
	Date     civil.Date
	Interval Interval
	StartsAt time.Time
	EndsAt   time.Time
	Timezone string

	SourceWindowID  string
	SourceWindowIDs []string
	// AllowedSessionTypes is nil when every type is allowed.
	AllowedSessionTypes []string

	BufferMinutes   int
	MinAdvanceHours int
	MaxAdvanceDays  int
}

func (s Slot) Range() TimeRange {
	return TimeRange{Start: s.StartsAt, End: s.EndsAt}
}

// GenerateSlots cuts each available window into slotDurationMinutes slots spaced
// by the window's buffer, drops any slot overlapping an exception, merges slots
// that coincide exactly and returns them ordered by start. Candidates whose
// wall-clock bounds fall in a daylight saving gap, or whose elapsed length is
// not the slot duration, are skipped. An exception whose timezone cannot be
// loaded blocks the whole date.
func GenerateSlots(resolved Resolved, slotDurationMinutes int) []Slot {
	if slotDurationMinutes <= 0 {
		slotDurationMinutes = DefaultSlotDurationMinutes
	}
	duration := time.Duration(slotDurationMinutes) * time.Minute

	blocks := make([]TimeRange, 0, len(resolved.Exceptions))
	for _, x := range resolved.Exceptions {
		r, err := x.RangeOn(resolved.Date)
		if err != nil {
			return nil
		}
		blocks = append(blocks, r)
	}

	type slotKey struct {
		start int64
		end   int64
	}
	index := map[slotKey]int{}
	var slots []Slot

	for _, w := range resolved.Available() {
		loc, err := w.Location()
		if err != nil {
			continue
		}
		step := slotDurationMinutes + w.BufferMinutes
		for t := int(w.Start); t+slotDurationMinutes <= int(w.End); t += step {
			iv := Interval{Start: t, End: t + slotDurationMinutes}
			start, startOK := Clock(iv.Start).At(resolved.Date, loc)
			end, endOK := Clock(iv.End).At(resolved.Date, loc)
			if !startOK || !endOK || end.Sub(start) != duration {
				continue
			}
			r := TimeRange{Start: start, End: end}
			if overlapsAny(r, blocks) {
				continue
			}

			key := slotKey{start: r.Start.UnixNano(), end: r.End.UnixNano()}
			if i, ok := index[key]; ok {
				slots[i] = mergeSlot(slots[i], w)
				continue
			}
			index[key] = len(slots)
			slots = append(slots, Slot{
				Date:                resolved.Date,
				Interval:            iv,
				StartsAt:            r.Start,
				EndsAt:              r.End,
				Timezone:            loc.String(),
				SourceWindowID:      w.ID,
				SourceWindowIDs:     []string{w.ID},
				AllowedSessionTypes: copyTypes(w.SessionTypes),
				BufferMinutes:       w.BufferMinutes,
				MinAdvanceHours:     w.MinAdvanceHours,
				MaxAdvanceDays:      w.MaxAdvanceDays,
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].StartsAt.Equal(slots[j].StartsAt) {
			return slots[i].StartsAt.Before(slots[j].StartsAt)
		}
		return slots[i].EndsAt.Before(slots[j].EndsAt)
	})
	return slots
}

func mergeSlot(s Slot, w Window) Slot {
	for _, id := range s.SourceWindowIDs {
		if id == w.ID {
			return s
		}
	}
	s.SourceWindowIDs = append(s.SourceWindowIDs, w.ID)

	if s.AllowedSessionTypes == nil || len(w.SessionTypes) == 0 {
		s.AllowedSessionTypes = nil
		return s
	}
	for _, st := range w.SessionTypes {
		if !containsFold(s.AllowedSessionTypes, st) {
			s.AllowedSessionTypes = append(s.AllowedSessionTypes, st)
		}
	}
	return s
}

func copyTypes(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// FilterBookable narrows display slots to those a client could book right now:
// inside the slot's advance window and clear of booked sessions plus buffer.
func FilterBookable(slots []Slot, now time.Time, booked []BookedSession) []Slot {
	busy := make([]TimeRange, 0, len(booked))
	for _, b := range booked {
		busy = append(busy, b.Range())
	}

	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		lead := s.StartsAt.Sub(now)
		if lead < time.Duration(s.MinAdvanceHours)*time.Hour {
			continue
		}
		if lead > time.Duration(s.MaxAdvanceDays)*24*time.Hour {
			continue
		}
		if overlapsAny(s.Range().Expand(time.Duration(s.BufferMinutes)*time.Minute), busy) {
			continue
		}
		out = append(out, s)
	}
	return out
}
