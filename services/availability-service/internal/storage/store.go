package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/serenity-care/platform/libs/db"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/outbox"
)

// Tx is the unit of work for window changes and transaction-scoped checks.
// Reads through a Tx see the transaction's own writes.
type Tx interface {
	availability.WindowStore
	LockProvider(ctx context.Context, providerID string) error
	Get(ctx context.Context, providerID, id string) (availability.Window, error)
	ListByProvider(ctx context.Context, providerID string, includeInactive bool) ([]availability.Window, error)
	Insert(ctx context.Context, w availability.Window) (availability.Window, error)
	Update(ctx context.Context, w availability.Window) (availability.Window, error)
	SetActive(ctx context.Context, providerID, id string, active bool) (availability.Window, error)
	ListBookedIntervals(ctx context.Context, providerID string, from, to time.Time) ([]availability.BookedSession, error)
	Publish(ctx context.Context, evt outbox.Event) error
}

// Transactor runs fn in one transaction, committing only when fn returns nil.
type Transactor interface {
	Transact(ctx context.Context, fn func(Tx) error) error
}

type Postgres struct {
	pool     *db.Pool
	windows  *WindowRepository
	sessions *SessionRepository
	outbox   *outbox.Repository
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{
		pool:     pool,
		windows:  NewWindowRepository(pool),
		sessions: NewSessionRepository(pool),
		outbox:   outbox.NewRepository(),
	}
}

func (p *Postgres) Windows() *WindowRepository {
	return p.windows
}

func (p *Postgres) Sessions() *SessionRepository {
	return p.sessions
}

func (p *Postgres) Transact(ctx context.Context, fn func(Tx) error) error {
	return p.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{
			WindowRepository: p.windows.WithTx(tx),
			sessions:         p.sessions.WithTx(tx),
			outbox:           p.outbox,
			tx:               tx,
		})
	})
}

type pgTx struct {
	*WindowRepository
	sessions *SessionRepository
	outbox   *outbox.Repository
	tx       pgx.Tx
}

func (t *pgTx) ListBookedIntervals(ctx context.Context, providerID string, from, to time.Time) ([]availability.BookedSession, error) {
	return t.sessions.ListBookedIntervals(ctx, providerID, from, to)
}

func (t *pgTx) Publish(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

var _ Transactor = (*Postgres)(nil)
