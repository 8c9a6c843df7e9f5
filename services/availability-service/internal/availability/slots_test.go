package availability

import (
	"testing"
	"time"
)

func slotStarts(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, Clock(s.Interval.Start).String())
	}
	return out
}

func assertStarts(t *testing.T, slots []Slot, want ...string) {
	t.Helper()
	got := slotStarts(slots)
	if len(got) != len(want) {
		t.Fatalf("expected starts %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected starts %v, got %v", want, got)
		}
	}
}

func TestGenerateSlots_StepsByDurationPlusBuffer(t *testing.T) {
	resolved := Resolved{
		Date:      monday,
		Recurring: []Window{recurringWindow("rec", time.Monday, "09:00", "17:00")},
	}

	slots := GenerateSlots(resolved, 60)
	assertStarts(t, slots, "09:00", "10:15", "11:30", "12:45", "14:00", "15:15")

	last := slots[len(slots)-1]
	if !last.StartsAt.Equal(utc("2025-03-10T15:15:00Z")) || !last.EndsAt.Equal(utc("2025-03-10T16:15:00Z")) {
		t.Fatalf("unexpected last slot %s-%s", last.StartsAt, last.EndsAt)
	}
	if last.SourceWindowID != "rec" || last.AllowedSessionTypes != nil {
		t.Fatalf("unexpected slot metadata %+v", last)
	}
}

func TestGenerateSlots_ExceptionBlocksOverlappingSlots(t *testing.T) {
	resolved := Resolved{
		Date:       monday,
		Recurring:  []Window{recurringWindow("rec", time.Monday, "09:00", "17:00")},
		Exceptions: []Window{exceptionWindow("ex", monday, "11:00", "12:00")},
	}

	slots := GenerateSlots(resolved, 60)
	assertStarts(t, slots, "09:00", "12:45", "14:00", "15:15")

	block := TimeRange{Start: utc("2025-03-10T11:00:00Z"), End: utc("2025-03-10T12:00:00Z")}
	for _, s := range slots {
		if s.Range().Overlaps(block) {
			t.Fatalf("slot %s overlaps exception", s.Interval)
		}
	}
}

func TestGenerateSlots_DeduplicatesCoincidingSlots(t *testing.T) {
	rec := recurringWindow("rec", time.Monday, "09:00", "17:00")
	rec.SessionTypes = []string{"Individual"}
	ot := oneTimeWindow("ot", monday, "09:00", "11:00")
	ot.SessionTypes = []string{"Couples"}

	slots := GenerateSlots(Resolved{Date: monday, Recurring: []Window{rec}, OneTime: []Window{ot}}, 60)
	assertStarts(t, slots, "09:00", "10:15", "11:30", "12:45", "14:00", "15:15")

	first := slots[0]
	if len(first.SourceWindowIDs) != 2 || first.SourceWindowIDs[0] != "ot" || first.SourceWindowIDs[1] != "rec" {
		t.Fatalf("expected merged sources [ot rec], got %v", first.SourceWindowIDs)
	}
	if len(first.AllowedSessionTypes) != 2 {
		t.Fatalf("expected union of session types, got %v", first.AllowedSessionTypes)
	}
}

func TestGenerateSlots_MergeWithUnrestrictedWindowAllowsAll(t *testing.T) {
	rec := recurringWindow("rec", time.Monday, "09:00", "10:00")
	ot := oneTimeWindow("ot", monday, "09:00", "10:00")
	ot.SessionTypes = []string{"Couples"}

	slots := GenerateSlots(Resolved{Date: monday, Recurring: []Window{rec}, OneTime: []Window{ot}}, 60)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].AllowedSessionTypes != nil {
		t.Fatalf("expected all session types allowed, got %v", slots[0].AllowedSessionTypes)
	}
}

func TestGenerateSlots_EmptyCases(t *testing.T) {
	if slots := GenerateSlots(Resolved{Date: monday}, 60); len(slots) != 0 {
		t.Fatalf("expected no slots without windows, got %d", len(slots))
	}
	short := Resolved{Date: monday, Recurring: []Window{recurringWindow("rec", time.Monday, "09:00", "10:00")}}
	if slots := GenerateSlots(short, 90); len(slots) != 0 {
		t.Fatalf("expected no slots when duration exceeds window, got %d", len(slots))
	}
}

func TestGenerateSlots_DefaultsDuration(t *testing.T) {
	w := recurringWindow("rec", time.Monday, "09:00", "11:00")
	w.BufferMinutes = 0
	slots := GenerateSlots(Resolved{Date: monday, Recurring: []Window{w}}, 0)
	assertStarts(t, slots, "09:00", "10:00")
}

func TestGenerateSlots_UsesWindowTimezone(t *testing.T) {
	w := recurringWindow("rec", time.Monday, "09:00", "10:00")
	w.Timezone = "America/New_York"
	slots := GenerateSlots(Resolved{Date: monday, Recurring: []Window{w}}, 60)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	// Daylight saving time began on 2025-03-09.
	if !slots[0].StartsAt.Equal(utc("2025-03-10T13:00:00Z")) {
		t.Fatalf("expected 13:00Z, got %s", slots[0].StartsAt.UTC())
	}
	if slots[0].Timezone != "America/New_York" {
		t.Fatalf("unexpected timezone %s", slots[0].Timezone)
	}
}

func TestFilterBookable(t *testing.T) {
	resolved := Resolved{
		Date:      monday,
		Recurring: []Window{recurringWindow("rec", time.Monday, "09:00", "17:00")},
	}
	slots := GenerateSlots(resolved, 60)

	now := utc("2025-03-09T10:00:00Z")
	booked := []BookedSession{{ID: "s1", Start: utc("2025-03-10T14:00:00Z"), End: utc("2025-03-10T15:10:00Z")}}

	got := FilterBookable(slots, now, booked)
	// 09:00 is under 24h away; 14:00 is booked and 15:15 sits inside its buffer.
	assertStarts(t, got, "10:15", "11:30", "12:45")
}

func TestGenerateSlots_SkipsDaylightSavingGap(t *testing.T) {
	sunday := monday.AddDays(-1)
	w := recurringWindow("rec-ny", time.Sunday, "01:00", "05:00")
	w.Timezone = "America/New_York"
	w.BufferMinutes = 0

	// Clocks jumped from 02:00 to 03:00 on 2025-03-09.
	slots := GenerateSlots(Resolved{Date: sunday, Recurring: []Window{w}}, 60)
	assertStarts(t, slots, "03:00", "04:00")
	for i, s := range slots {
		if s.EndsAt.Sub(s.StartsAt) != time.Hour {
			t.Fatalf("slot %s lasts %s", s.Interval, s.EndsAt.Sub(s.StartsAt))
		}
		if i > 0 && !s.StartsAt.After(slots[i-1].StartsAt) {
			t.Fatalf("expected distinct ordered starts, got %s then %s", slots[i-1].StartsAt, s.StartsAt)
		}
	}
	if !slots[0].StartsAt.Equal(utc("2025-03-09T07:00:00Z")) {
		t.Fatalf("expected 03:00 EDT, got %s", slots[0].StartsAt.UTC())
	}
}

func TestGenerateSlots_UnloadableExceptionBlocksDate(t *testing.T) {
	block := exceptionWindow("ex", monday, "00:00", "24:00")
	block.Timezone = "Mars/Olympus_Mons"
	resolved := Resolved{
		Date:       monday,
		Recurring:  []Window{recurringWindow("rec", time.Monday, "09:00", "17:00")},
		Exceptions: []Window{block},
	}
	if slots := GenerateSlots(resolved, 60); len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}
