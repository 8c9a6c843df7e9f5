package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

var ErrInvalidDate = errors.New("invalid date")

type ResolveOptions struct {
	// SessionType narrows recurring and one-time windows. Exceptions are never narrowed.
	SessionType string
	// FutureOnly rejects dates before today, as seen from Now in Location.
	FutureOnly bool
	Now        time.Time
	// Location is the provider's zone. When nil the first fetched window's zone is used, then UTC.
	Location *time.Location
}

// Resolved holds the windows in force on Date, grouped by kind.
type Resolved struct {
	Date       civil.Date
	Recurring  []Window
	OneTime    []Window
	Exceptions []Window
}

// Available returns the windows that offer time: one-time first, then recurring.
func (r Resolved) Available() []Window {
	out := make([]Window, 0, len(r.OneTime)+len(r.Recurring))
	out = append(out, r.OneTime...)
	out = append(out, r.Recurring...)
	return out
}

func (r Resolved) IsEmpty() bool {
	return len(r.Recurring) == 0 && len(r.OneTime) == 0 && len(r.Exceptions) == 0
}

type Resolver struct {
	store WindowStore
}

func NewResolver(store WindowStore) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, providerID string, date civil.Date, opts ResolveOptions) (Resolved, error) {
	if !date.IsValid() {
		return Resolved{}, fmt.Errorf("%w: %q", ErrInvalidDate, date.String())
	}
	if opts.FutureOnly && opts.Now.IsZero() {
		return Resolved{}, fmt.Errorf("%w: future-only resolution needs a reference time", ErrInvalidDate)
	}
	if opts.FutureOnly && opts.Location != nil {
		if err := notPast(date, opts.Now, opts.Location); err != nil {
			return Resolved{}, err
		}
	}

	windows, err := r.store.FindForDate(ctx, providerID, date)
	if err != nil {
		return Resolved{}, err
	}

	if opts.FutureOnly && opts.Location == nil {
		loc := time.UTC
		if len(windows) > 0 {
			if l, err := windows[0].Location(); err == nil {
				loc = l
			}
		}
		if err := notPast(date, opts.Now, loc); err != nil {
			return Resolved{}, err
		}
	}

	return classify(providerID, date, opts.SessionType, windows), nil
}

func notPast(date civil.Date, now time.Time, loc *time.Location) error {
	today := civil.DateOf(now.In(loc))
	if date.Before(today) {
		return fmt.Errorf("%w: %s is before %s in %s", ErrInvalidDate, date, today, loc)
	}
	return nil
}

func classify(providerID string, date civil.Date, sessionType string, windows []Window) Resolved {
	out := Resolved{Date: date}
	seen := make(map[string]struct{}, len(windows))
	for _, w := range windows {
		if w.ProviderID != "" && w.ProviderID != providerID {
			continue
		}
		if !w.AppliesOn(date) {
			continue
		}
		if w.ID != "" {
			if _, dup := seen[w.ID]; dup {
				continue
			}
			seen[w.ID] = struct{}{}
		}
		switch w.Kind() {
		case KindException:
			out.Exceptions = append(out.Exceptions, w)
		case KindRecurring:
			if w.AllowsSessionType(sessionType) {
				out.Recurring = append(out.Recurring, w)
			}
		case KindOneTime:
			if w.AllowsSessionType(sessionType) {
				out.OneTime = append(out.OneTime, w)
			}
		}
	}
	sortWindows(out.Recurring)
	sortWindows(out.OneTime)
	sortWindows(out.Exceptions)
	return out
}

func sortWindows(ws []Window) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Start != ws[j].Start {
			return ws[i].Start < ws[j].Start
		}
		if ws[i].End != ws[j].End {
			return ws[i].End < ws[j].End
		}
		return ws[i].ID < ws[j].ID
	})
}
