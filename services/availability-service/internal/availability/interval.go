package availability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const minutesPerDay = 24 * 60

// Interval is a half-open [Start, End) range of minutes after local midnight.
type Interval struct {
	Start int
	End   int
}

func (i Interval) Minutes() int {
	return i.End - i.Start
}

func (i Interval) IsEmpty() bool {
	return i.End <= i.Start
}

// Overlaps reports whether the two ranges share at least one minute.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

func (i Interval) Contains(inner Interval) bool {
	return inner.Start >= i.Start && inner.End <= i.End
}

// Subtract removes blocked from i and returns what is left: nothing when blocked
// covers i, one range when it clips an edge (or misses entirely), two when it
// splits the middle.
func (i Interval) Subtract(blocked Interval) []Interval {
	if !i.Overlaps(blocked) {
		return []Interval{i}
	}
	var out []Interval
	if blocked.Start > i.Start {
		out = append(out, Interval{Start: i.Start, End: blocked.Start})
	}
	if blocked.End < i.End {
		out = append(out, Interval{Start: blocked.End, End: i.End})
	}
	return out
}

func (i Interval) String() string {
	return Clock(i.Start).String() + "-" + Clock(i.End).String()
}

func (i Interval) MarshalJSON() ([]byte, error) {
	return []byte(`{"start":"` + Clock(i.Start).String() + `","end":"` + Clock(i.End).String() + `"}`), nil
}

// MergeIntervals returns the sorted union of in. Touching ranges are joined.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.IsEmpty() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start == sorted[b].Start {
			return sorted[a].End < sorted[b].End
		}
		return sorted[a].Start < sorted[b].Start
	})

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			if iv.End > out[n-1].End {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// FreeIntervals subtracts every blocked range from the union of free.
func FreeIntervals(free []Interval, blocked []Interval) []Interval {
	remaining := MergeIntervals(free)
	for _, b := range MergeIntervals(blocked) {
		var next []Interval
		for _, f := range remaining {
			next = append(next, f.Subtract(b)...)
		}
		remaining = next
	}
	return remaining
}

// TimeRange is an absolute half-open [Start, End) range.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

func (r TimeRange) Contains(inner TimeRange) bool {
	return !inner.Start.Before(r.Start) && !inner.End.After(r.End)
}

// Expand widens the range by d on both sides.
func (r TimeRange) Expand(d time.Duration) TimeRange {
	return TimeRange{Start: r.Start.Add(-d), End: r.End.Add(d)}
}

func overlapsAny(r TimeRange, busy []TimeRange) bool {
	for _, b := range busy {
		if r.Overlaps(b) {
			return true
		}
	}
	return false
}

// Clock is a wall-clock time expressed as minutes after midnight.
// 24:00 is accepted as an end-of-day marker.
type Clock int

func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h == 24 && m == 0 {
		return Clock(minutesPerDay), nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return Clock(h*60 + m), nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// On places the clock on date d in loc.
func (c Clock) On(d civil.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, int(c)/60, int(c)%60, 0, 0, loc)
}

// At is On that also reports whether the wall clock exists on d in loc. Times
// skipped by a daylight saving jump do not.
func (c Clock) At(d civil.Date, loc *time.Location) (time.Time, bool) {
	t := c.On(d, loc)
	want, m := d, int(c)
	if m == minutesPerDay {
		want, m = d.AddDays(1), 0
	}
	local := t.In(loc)
	return t, civil.DateOf(local) == want && local.Hour()*60+local.Minute() == m
}

// localMinutes maps r onto minute offsets of day d in loc. Start is floored and
// end ceiled to whole minutes. ok is false when r does not lie within that day
// or crosses a daylight saving transition, where local minutes and elapsed
// minutes disagree.
func localMinutes(r TimeRange, d civil.Date, loc *time.Location) (Interval, bool) {
	start := r.Start.In(loc)
	end := r.End.In(loc)
	if civil.DateOf(start) != d {
		return Interval{}, false
	}
	iv := Interval{Start: start.Hour()*60 + start.Minute()}

	switch endDate := civil.DateOf(end); {
	case endDate == d:
		iv.End = end.Hour()*60 + end.Minute()
		if end.Second() != 0 || end.Nanosecond() != 0 {
			iv.End++
		}
	case endDate == d.AddDays(1) && end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 && end.Nanosecond() == 0:
		iv.End = minutesPerDay
	default:
		return Interval{}, false
	}
	elapsed := int((r.End.Sub(r.Start.Truncate(time.Minute)) + time.Minute - 1) / time.Minute)
	if iv.End-iv.Start != elapsed {
		return Interval{}, false
	}
	return iv, true
}

func weekdayOf(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
