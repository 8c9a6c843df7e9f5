package inbox

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/serenity-care/platform/libs/db"
)

var ErrMissingEventID = errors.New("inbox: event id is required")

// Entry is one consumed window event. AggregateID is the window the event
// was published for, taken from the message key.
type Entry struct {
	EventID     string
	EventType   string
	AggregateID string
	Topic       string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record stores e and reports false when its event id was already seen.
func (r *Repository) Record(ctx context.Context, e Entry) (bool, error) {
	if e.EventID == "" {
		return false, ErrMissingEventID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type, aggregate_id, topic)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, e.EventID, e.EventType, e.AggregateID, e.Topic)
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
