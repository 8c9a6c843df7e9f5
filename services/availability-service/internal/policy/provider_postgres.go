package policy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/serenity-care/platform/libs/db"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
)

type row interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresProvider struct {
	q        queryRower
	fallback availability.Defaults
	logger   *slog.Logger
}

// NewPostgresProvider reads provider_booking_policies. Providers without a row,
// and lookups that fail, get fallback.
func NewPostgresProvider(pool *db.Pool, fallback availability.Defaults, logger *slog.Logger) Provider {
	if pool == nil {
		return NewStaticProvider(fallback)
	}
	return &postgresProvider{q: pool, fallback: fallback, logger: logger}
}

func (p *postgresProvider) Defaults(ctx context.Context, providerID string) (availability.Defaults, error) {
	d, err := scanPolicy(p.q.QueryRow(ctx, `
		SELECT buffer_minutes, min_advance_hours, max_advance_days, slot_duration_minutes
		FROM provider_booking_policies
		WHERE provider_id = $1
	`, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return p.fallback, nil
	}
	if err != nil {
		p.logger.Warn("provider policy lookup failed, using defaults", "provider_id", providerID, "err", err)
		return p.fallback, nil
	}
	return d, nil
}

func scanPolicy(r row) (availability.Defaults, error) {
	var buffer, minHours, maxDays, slotMinutes int
	if err := r.Scan(&buffer, &minHours, &maxDays, &slotMinutes); err != nil {
		return availability.Defaults{}, err
	}
	return availability.Defaults{
		BufferMinutes:       buffer,
		MinAdvance:          time.Duration(minHours) * time.Hour,
		MaxAdvance:          time.Duration(maxDays) * 24 * time.Hour,
		SlotDurationMinutes: slotMinutes,
	}, nil
}
