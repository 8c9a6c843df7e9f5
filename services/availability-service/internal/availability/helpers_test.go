package availability

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

const testProvider = "prov-1"

type fakeStore struct {
	windows []Window
	err     error
	calls   int
}

func (f *fakeStore) FindActiveByProvider(_ context.Context, providerID string) ([]Window, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []Window
	for _, w := range f.windows {
		if w.ProviderID == providerID && w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

// FindForDate returns the provider's raw window set so the resolver's own
// filtering is exercised.
func (f *fakeStore) FindForDate(_ context.Context, providerID string, _ civil.Date) ([]Window, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []Window
	for _, w := range f.windows {
		if w.ProviderID == providerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func newWindow(id string, sched Schedule, start, end string) Window {
	return Window{
		ID:              id,
		ProviderID:      testProvider,
		Schedule:        sched,
		Start:           MustClock(start),
		End:             MustClock(end),
		Active:          true,
		BufferMinutes:   DefaultBufferMinutes,
		MinAdvanceHours: DefaultMinAdvanceHours,
		MaxAdvanceDays:  DefaultMaxAdvanceDays,
		Timezone:        "UTC",
	}
}

func recurringWindow(id string, day time.Weekday, start, end string) Window {
	return newWindow(id, Recurring{Weekday: day}, start, end)
}

func oneTimeWindow(id string, date civil.Date, start, end string) Window {
	return newWindow(id, OneTime{Date: date}, start, end)
}

func exceptionWindow(id string, date civil.Date, start, end string) Window {
	return newWindow(id, Exception{Date: date}, start, end)
}

// 2025-03-10 is a Monday.
var monday = civil.Date{Year: 2025, Month: time.March, Day: 10}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
