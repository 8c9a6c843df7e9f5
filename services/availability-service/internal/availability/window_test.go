package availability

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestWindowValidate(t *testing.T) {
	if err := recurringWindow("ok", time.Monday, "09:00", "17:00").Validate(); err != nil {
		t.Fatalf("expected valid window, got %v", err)
	}

	cases := map[string]struct {
		w     Window
		field string
	}{
		"start after end":  {recurringWindow("w", time.Monday, "10:00", "09:00"), "end_time"},
		"too short":        {recurringWindow("w", time.Monday, "09:00", "09:10"), "end_time"},
		"too long":         {recurringWindow("w", time.Monday, "06:00", "18:30"), "end_time"},
		"missing schedule": {newWindow("w", nil, "09:00", "10:00"), "kind"},
		"missing date":     {oneTimeWindow("w", civil.Date{}, "09:00", "10:00"), "date"},
		"bad weekday":      {recurringWindow("w", time.Weekday(7), "09:00", "10:00"), "day_of_week"},
	}
	for name, tc := range cases {
		err := tc.w.Validate()
		var we *WindowError
		if !errors.As(err, &we) || !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("%s: expected WindowError, got %v", name, err)
		}
		if we.Field != tc.field {
			t.Fatalf("%s: expected field %s, got %s", name, tc.field, we.Field)
		}
	}

	badTZ := recurringWindow("w", time.Monday, "09:00", "10:00")
	badTZ.Timezone = "Mars/Olympus"
	if err := badTZ.Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected unknown timezone to be rejected, got %v", err)
	}

	maxLen := recurringWindow("w", time.Monday, "06:00", "18:00")
	if err := maxLen.Validate(); err != nil {
		t.Fatalf("expected 720 minute window to be valid, got %v", err)
	}
}

func TestWindowJSON(t *testing.T) {
	w := recurringWindow("rec", time.Tuesday, "09:00", "12:30")
	w.SessionTypes = []string{"Individual"}
	w.Schedule = Recurring{Weekday: time.Tuesday, Period: Period{From: civil.Date{Year: 2025, Month: time.March, Day: 1}}}

	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"kind":"recurring"`, `"day_of_week":2`, `"start_time":"09:00"`, `"duration_minutes":210`, `"period_start":"2025-03-01"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("expected %s in %s", want, b)
		}
	}
	if strings.Contains(string(b), `"date"`) {
		t.Fatalf("recurring window must not carry a date: %s", b)
	}

	var back Window
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec, ok := back.Schedule.(Recurring)
	if !ok || rec.Weekday != time.Tuesday || rec.Period.From != w.Schedule.(Recurring).Period.From {
		t.Fatalf("unexpected schedule %+v", back.Schedule)
	}
	if back.End != MustClock("12:30") {
		t.Fatalf("unexpected end %s", back.End)
	}
}

func TestWindowJSON_RejectsMissingDate(t *testing.T) {
	var w Window
	err := json.Unmarshal([]byte(`{"provider_id":"p","kind":"exception","start_time":"09:00","end_time":"10:00"}`), &w)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestBuildSchedule_RejectsFieldOfOtherKind(t *testing.T) {
	dow := 1
	date := monday

	cases := []struct {
		name  string
		kind  Kind
		dow   *int
		date  *civil.Date
		field string
	}{
		{"recurring with date", KindRecurring, &dow, &date, "date"},
		{"one-time with weekday", KindOneTime, &dow, &date, "day_of_week"},
		{"exception with weekday", KindException, &dow, &date, "day_of_week"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildSchedule(tc.kind, tc.dow, tc.date, nil, nil)
			var we *WindowError
			if !errors.As(err, &we) {
				t.Fatalf("expected WindowError, got %v", err)
			}
			if we.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, we.Field)
			}
		})
	}

	if _, err := BuildSchedule(KindOneTime, nil, &date, nil, nil); err != nil {
		t.Fatalf("expected one-time with date only to build, got %v", err)
	}
}
