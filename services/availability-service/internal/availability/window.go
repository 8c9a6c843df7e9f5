package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Kind identifies which Schedule variant a window carries.
type Kind string

const (
	KindRecurring Kind = "recurring"
	KindOneTime   Kind = "one_time"
	KindException Kind = "exception"
)

const (
	DefaultBufferMinutes   = 15
	DefaultMinAdvanceHours = 24
	DefaultMaxAdvanceDays  = 30

	MinWindowMinutes = 15
	MaxWindowMinutes = 720
)

// Schedule says on which calendar days a window is in force.
// Implemented only by Recurring, OneTime and Exception.
type Schedule interface {
	Kind() Kind
	AppliesOn(d civil.Date) bool
	schedule()
}

// Period bounds a recurring window. A zero From or Until leaves that side open.
type Period struct {
	From  civil.Date
	Until civil.Date
}

func (p Period) Includes(d civil.Date) bool {
	if !isZeroDate(p.From) && d.Before(p.From) {
		return false
	}
	if !isZeroDate(p.Until) && d.After(p.Until) {
		return false
	}
	return true
}

func (p Period) Overlaps(other Period) bool {
	// [a.From, a.Until] and [b.From, b.Until] intersect unless one ends before the other starts.
	if !isZeroDate(p.Until) && !isZeroDate(other.From) && p.Until.Before(other.From) {
		return false
	}
	if !isZeroDate(other.Until) && !isZeroDate(p.From) && other.Until.Before(p.From) {
		return false
	}
	return true
}

type Recurring struct {
	Weekday time.Weekday
	Period  Period
}

func (Recurring) Kind() Kind { return KindRecurring }

func (r Recurring) AppliesOn(d civil.Date) bool {
	return weekdayOf(d) == r.Weekday && r.Period.Includes(d)
}

func (Recurring) schedule() {}

type OneTime struct {
	Date civil.Date
}

func (OneTime) Kind() Kind { return KindOneTime }

func (o OneTime) AppliesOn(d civil.Date) bool { return o.Date == d }

func (OneTime) schedule() {}

// Exception blocks time on a single date, whatever the session type.
type Exception struct {
	Date civil.Date
}

func (Exception) Kind() Kind { return KindException }

func (e Exception) AppliesOn(d civil.Date) bool { return e.Date == d }

func (Exception) schedule() {}

// Window is a provider-owned interval of wall-clock time.
type Window struct {
	ID              string
	ProviderID      string
	Schedule        Schedule
	Start           Clock
	End             Clock
	Active          bool
	SessionTypes    []string
	BufferMinutes   int
	MinAdvanceHours int
	MaxAdvanceDays  int
	Timezone        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (w Window) Kind() Kind {
	if w.Schedule == nil {
		return ""
	}
	return w.Schedule.Kind()
}

func (w Window) IsException() bool {
	return w.Kind() == KindException
}

func (w Window) Interval() Interval {
	return Interval{Start: int(w.Start), End: int(w.End)}
}

func (w Window) DurationMinutes() int {
	return int(w.End - w.Start)
}

// AppliesOn reports whether the window is active and in force on d.
func (w Window) AppliesOn(d civil.Date) bool {
	return w.Active && w.Schedule != nil && w.Schedule.AppliesOn(d)
}

// AllowsSessionType treats an empty set, or an empty sessionType, as "all types".
func (w Window) AllowsSessionType(sessionType string) bool {
	if len(w.SessionTypes) == 0 || sessionType == "" {
		return true
	}
	for _, st := range w.SessionTypes {
		if strings.EqualFold(st, sessionType) {
			return true
		}
	}
	return false
}

func (w Window) Location() (*time.Location, error) {
	if w.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(w.Timezone)
}

// RangeOn returns the absolute time the window covers on d.
func (w Window) RangeOn(d civil.Date) (TimeRange, error) {
	loc, err := w.Location()
	if err != nil {
		return TimeRange{}, err
	}
	return TimeRange{Start: w.Start.On(d, loc), End: w.End.On(d, loc)}, nil
}

// Date returns the calendar date of a one-time or exception window.
func (w Window) Date() (civil.Date, bool) {
	switch s := w.Schedule.(type) {
	case OneTime:
		return s.Date, true
	case Exception:
		return s.Date, true
	default:
		return civil.Date{}, false
	}
}

var ErrInvalidWindow = errors.New("invalid window")

// WindowError names the offending field.
type WindowError struct {
	Field  string
	Reason string
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("invalid window: %s %s", e.Field, e.Reason)
}

func (e *WindowError) Unwrap() error { return ErrInvalidWindow }

func invalid(field, reason string) error {
	return &WindowError{Field: field, Reason: reason}
}

func (w Window) Validate() error {
	if strings.TrimSpace(w.ProviderID) == "" {
		return invalid("provider_id", "is required")
	}
	switch s := w.Schedule.(type) {
	case nil:
		return invalid("kind", "is required")
	case Recurring:
		if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
			return invalid("day_of_week", "must be between 0 and 6")
		}
		if !isZeroDate(s.Period.From) && !s.Period.From.IsValid() {
			return invalid("period_start", "is not a valid date")
		}
		if !isZeroDate(s.Period.Until) && !s.Period.Until.IsValid() {
			return invalid("period_end", "is not a valid date")
		}
		if !isZeroDate(s.Period.From) && !isZeroDate(s.Period.Until) && s.Period.Until.Before(s.Period.From) {
			return invalid("period_end", "must not be before period_start")
		}
	case OneTime:
		if !s.Date.IsValid() {
			return invalid("date", "is required for one_time windows")
		}
	case Exception:
		if !s.Date.IsValid() {
			return invalid("date", "is required for exception windows")
		}
	}
	if w.Start < 0 || w.End > minutesPerDay {
		return invalid("start_time", "must be within the day")
	}
	if w.Start >= w.End {
		return invalid("end_time", "must be after start_time")
	}
	if d := w.DurationMinutes(); d < MinWindowMinutes || d > MaxWindowMinutes {
		return invalid("end_time", fmt.Sprintf("duration must be between %d and %d minutes", MinWindowMinutes, MaxWindowMinutes))
	}
	if w.BufferMinutes < 0 {
		return invalid("buffer_minutes", "must not be negative")
	}
	if w.MinAdvanceHours < 0 {
		return invalid("min_advance_hours", "must not be negative")
	}
	if w.MaxAdvanceDays < 1 {
		return invalid("max_advance_days", "must be at least 1")
	}
	if _, err := w.Location(); err != nil {
		return invalid("timezone", "is not a known IANA zone")
	}
	return nil
}

type windowJSON struct {
	ID              string      `json:"id,omitempty"`
	ProviderID      string      `json:"provider_id"`
	Kind            Kind        `json:"kind"`
	DayOfWeek       *int        `json:"day_of_week,omitempty"`
	Date            *civil.Date `json:"date,omitempty"`
	PeriodStart     *civil.Date `json:"period_start,omitempty"`
	PeriodEnd       *civil.Date `json:"period_end,omitempty"`
	StartTime       Clock       `json:"start_time"`
	EndTime         Clock       `json:"end_time"`
	DurationMinutes int         `json:"duration_minutes"`
	Active          bool        `json:"active"`
	SessionTypes    []string    `json:"session_types,omitempty"`
	BufferMinutes   int         `json:"buffer_minutes"`
	MinAdvanceHours int         `json:"min_advance_hours"`
	MaxAdvanceDays  int         `json:"max_advance_days"`
	Timezone        string      `json:"timezone"`
	CreatedAt       *time.Time  `json:"created_at,omitempty"`
	UpdatedAt       *time.Time  `json:"updated_at,omitempty"`
}

func (w Window) MarshalJSON() ([]byte, error) {
	rec := windowJSON{
		ID:              w.ID,
		ProviderID:      w.ProviderID,
		Kind:            w.Kind(),
		StartTime:       w.Start,
		EndTime:         w.End,
		DurationMinutes: w.DurationMinutes(),
		Active:          w.Active,
		SessionTypes:    w.SessionTypes,
		BufferMinutes:   w.BufferMinutes,
		MinAdvanceHours: w.MinAdvanceHours,
		MaxAdvanceDays:  w.MaxAdvanceDays,
		Timezone:        w.Timezone,
	}
	switch s := w.Schedule.(type) {
	case Recurring:
		dow := int(s.Weekday)
		rec.DayOfWeek = &dow
		if !isZeroDate(s.Period.From) {
			from := s.Period.From
			rec.PeriodStart = &from
		}
		if !isZeroDate(s.Period.Until) {
			until := s.Period.Until
			rec.PeriodEnd = &until
		}
	case OneTime:
		d := s.Date
		rec.Date = &d
	case Exception:
		d := s.Date
		rec.Date = &d
	}
	if !w.CreatedAt.IsZero() {
		rec.CreatedAt = &w.CreatedAt
	}
	if !w.UpdatedAt.IsZero() {
		rec.UpdatedAt = &w.UpdatedAt
	}
	return json.Marshal(rec)
}

func (w *Window) UnmarshalJSON(b []byte) error {
	var rec windowJSON
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	sched, err := BuildSchedule(rec.Kind, rec.DayOfWeek, rec.Date, rec.PeriodStart, rec.PeriodEnd)
	if err != nil {
		return err
	}
	*w = Window{
		ID:              rec.ID,
		ProviderID:      rec.ProviderID,
		Schedule:        sched,
		Start:           rec.StartTime,
		End:             rec.EndTime,
		Active:          rec.Active,
		SessionTypes:    rec.SessionTypes,
		BufferMinutes:   rec.BufferMinutes,
		MinAdvanceHours: rec.MinAdvanceHours,
		MaxAdvanceDays:  rec.MaxAdvanceDays,
		Timezone:        rec.Timezone,
	}
	if rec.CreatedAt != nil {
		w.CreatedAt = *rec.CreatedAt
	}
	if rec.UpdatedAt != nil {
		w.UpdatedAt = *rec.UpdatedAt
	}
	return nil
}

// BuildSchedule assembles a Schedule from the flat kind/day/date columns used
// on the wire and in storage. The field matching kind must be present and the
// other one absent.
func BuildSchedule(kind Kind, dayOfWeek *int, date, periodStart, periodEnd *civil.Date) (Schedule, error) {
	switch kind {
	case KindRecurring:
		if dayOfWeek == nil {
			return nil, invalid("day_of_week", "is required for recurring windows")
		}
		if *dayOfWeek < 0 || *dayOfWeek > 6 {
			return nil, invalid("day_of_week", "must be between 0 and 6")
		}
		if date != nil {
			return nil, invalid("date", "must be empty for recurring windows")
		}
		r := Recurring{Weekday: time.Weekday(*dayOfWeek)}
		if periodStart != nil {
			r.Period.From = *periodStart
		}
		if periodEnd != nil {
			r.Period.Until = *periodEnd
		}
		return r, nil
	case KindOneTime:
		if date == nil {
			return nil, invalid("date", "is required for one_time windows")
		}
		if dayOfWeek != nil {
			return nil, invalid("day_of_week", "must be empty for one_time windows")
		}
		return OneTime{Date: *date}, nil
	case KindException:
		if date == nil {
			return nil, invalid("date", "is required for exception windows")
		}
		if dayOfWeek != nil {
			return nil, invalid("day_of_week", "must be empty for exception windows")
		}
		return Exception{Date: *date}, nil
	default:
		return nil, invalid("kind", fmt.Sprintf("must be one of %s, %s, %s", KindRecurring, KindOneTime, KindException))
	}
}

func isZeroDate(d civil.Date) bool {
	return d == civil.Date{}
}
