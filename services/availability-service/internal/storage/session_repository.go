package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/serenity-care/platform/libs/db"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
)

// SessionRepository reads sessions booked elsewhere; this service never writes them.
type SessionRepository struct {
	q querier
}

func NewSessionRepository(pool *db.Pool) *SessionRepository {
	return &SessionRepository{q: pool}
}

func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	return &SessionRepository{q: tx}
}

// ListBookedIntervals returns live sessions overlapping [from, to).
func (r *SessionRepository) ListBookedIntervals(ctx context.Context, providerID string, from, to time.Time) ([]availability.BookedSession, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, start_time, end_time
		FROM therapy_sessions
		WHERE provider_id = $1
			AND status IN ('scheduled', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := []availability.BookedSession{}
	for rows.Next() {
		var s availability.BookedSession
		if err := rows.Scan(&s.ID, &s.Start, &s.End); err != nil {
			return nil, err
		}
		booked = append(booked, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return booked, nil
}
