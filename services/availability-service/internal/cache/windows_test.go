package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
)

type countingStore struct {
	windows []availability.Window
	calls   int
}

func (c *countingStore) FindActiveByProvider(context.Context, string) ([]availability.Window, error) {
	c.calls++
	return c.windows, nil
}

func (c *countingStore) FindForDate(context.Context, string, civil.Date) ([]availability.Window, error) {
	c.calls++
	return c.windows, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKeys(t *testing.T) {
	s := NewWindowStore(&countingStore{}, nil, 0, "", discard())
	if got := s.versionKey("p1"); got != "avail:ver:p1" {
		t.Fatalf("unexpected version key %s", got)
	}
	if got := s.entryKey("p1", 3, "date:2025-03-10"); got != "avail:win:p1:3:date:2025-03-10" {
		t.Fatalf("unexpected entry key %s", got)
	}
}

func TestFailsOpenWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	next := &countingStore{windows: []availability.Window{{ID: "w1"}}}
	s := NewWindowStore(next, rdb, time.Minute, "test", discard())

	got, err := s.FindActiveByProvider(context.Background(), "p1")
	if err != nil || len(got) != 1 || next.calls != 1 {
		t.Fatalf("expected fall-through to the store, got %v (err=%v, calls=%d)", got, err, next.calls)
	}
}

func TestCachesUntilInvalidated(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()

	w := availability.Window{
		ID:         "w1",
		ProviderID: "p1",
		Schedule:   availability.Recurring{Weekday: time.Monday},
		Start:      availability.MustClock("09:00"),
		End:        availability.MustClock("17:00"),
		Active:     true,
	}
	next := &countingStore{windows: []availability.Window{w}}
	s := NewWindowStore(next, rdb, time.Minute, "test-"+uuid.NewString(), discard())
	date := civil.Date{Year: 2025, Month: time.March, Day: 10}

	for i := 0; i < 2; i++ {
		got, err := s.FindForDate(ctx, "p1", date)
		if err != nil || len(got) != 1 || got[0].End != w.End {
			t.Fatalf("unexpected result %v (err=%v)", got, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one store call, got %d", next.calls)
	}

	if err := s.Invalidate(ctx, "p1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := s.FindForDate(ctx, "p1", date); err != nil {
		t.Fatalf("find: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected reload after invalidation, got %d calls", next.calls)
	}
}
