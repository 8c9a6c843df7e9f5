package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"golang.org/x/sync/singleflight"
)

// WindowStore caches provider windows in Redis in front of another store.
// Entries are keyed by a per-provider version; Invalidate bumps the version so
// stale entries are never read again and expire on their own. Redis failures
// fall through to the underlying store.
type WindowStore struct {
	next   availability.WindowStore
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	group  singleflight.Group
}

func NewWindowStore(next availability.WindowStore, rdb redis.Cmdable, ttl time.Duration, prefix string, logger *slog.Logger) *WindowStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "avail"
	}
	return &WindowStore{next: next, rdb: rdb, ttl: ttl, prefix: prefix, logger: logger}
}

func (s *WindowStore) FindActiveByProvider(ctx context.Context, providerID string) ([]availability.Window, error) {
	return s.load(ctx, providerID, "active", func(ctx context.Context) ([]availability.Window, error) {
		return s.next.FindActiveByProvider(ctx, providerID)
	})
}

func (s *WindowStore) FindForDate(ctx context.Context, providerID string, date civil.Date) ([]availability.Window, error) {
	return s.load(ctx, providerID, "date:"+date.String(), func(ctx context.Context) ([]availability.Window, error) {
		return s.next.FindForDate(ctx, providerID, date)
	})
}

func (s *WindowStore) Invalidate(ctx context.Context, providerID string) error {
	return s.rdb.Incr(ctx, s.versionKey(providerID)).Err()
}

func (s *WindowStore) versionKey(providerID string) string {
	return fmt.Sprintf("%s:ver:%s", s.prefix, providerID)
}

func (s *WindowStore) entryKey(providerID string, version int64, suffix string) string {
	return fmt.Sprintf("%s:win:%s:%d:%s", s.prefix, providerID, version, suffix)
}

func (s *WindowStore) load(ctx context.Context, providerID, suffix string, fetch func(context.Context) ([]availability.Window, error)) ([]availability.Window, error) {
	version, err := s.rdb.Get(ctx, s.versionKey(providerID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("availability cache unavailable", "provider_id", providerID, "err", err)
		return fetch(ctx)
	}
	key := s.entryKey(providerID, version, suffix)

	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var windows []availability.Window
		if err := json.Unmarshal(raw, &windows); err == nil {
			return windows, nil
		}
		s.logger.Warn("availability cache entry unreadable", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("availability cache read failed", "key", key, "err", err)
		return fetch(ctx)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		windows, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(windows)
		if err != nil {
			return nil, err
		}
		if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			s.logger.Warn("availability cache write failed", "key", key, "err", err)
		}
		return windows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]availability.Window), nil
}

var _ availability.WindowStore = (*WindowStore)(nil)
