package storage

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/serenity-care/platform/libs/db"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
)

// querier is satisfied by both *db.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type WindowRepository struct {
	q querier
}

func NewWindowRepository(pool *db.Pool) *WindowRepository {
	return &WindowRepository{q: pool}
}

// WithTx returns a repository bound to tx.
func (r *WindowRepository) WithTx(tx pgx.Tx) *WindowRepository {
	return &WindowRepository{q: tx}
}

const windowColumns = `
	id::text, provider_id, kind, day_of_week, window_date, start_minute, end_minute, is_active,
	session_types, buffer_minutes, min_advance_hours, max_advance_days, period_start, period_end,
	timezone, created_at, updated_at`

// LockProvider serializes window changes for one provider until the transaction ends.
func (r *WindowRepository) LockProvider(ctx context.Context, providerID string) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, providerID)
	return err
}

func (r *WindowRepository) Insert(ctx context.Context, w availability.Window) (availability.Window, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	cols := toColumns(w)
	err := r.q.QueryRow(ctx, `
		INSERT INTO availability_windows
			(id, provider_id, kind, day_of_week, window_date, start_minute, end_minute, is_active,
			 session_types, buffer_minutes, min_advance_hours, max_advance_days, period_start, period_end, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, w.ID, w.ProviderID, string(w.Kind()), cols.dayOfWeek, cols.date, int(w.Start), int(w.End), w.Active,
		cols.sessionTypes, w.BufferMinutes, w.MinAdvanceHours, w.MaxAdvanceDays, cols.periodStart, cols.periodEnd,
		w.Timezone).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return availability.Window{}, err
	}
	return w, nil
}

// Update rewrites every mutable column of an existing window. Ownership is part of the match.
func (r *WindowRepository) Update(ctx context.Context, w availability.Window) (availability.Window, error) {
	cols := toColumns(w)
	row := r.q.QueryRow(ctx, `
		UPDATE availability_windows
		SET kind = $3,
			day_of_week = $4,
			window_date = $5,
			start_minute = $6,
			end_minute = $7,
			is_active = $8,
			session_types = $9,
			buffer_minutes = $10,
			min_advance_hours = $11,
			max_advance_days = $12,
			period_start = $13,
			period_end = $14,
			timezone = $15,
			updated_at = now()
		WHERE id = $1 AND provider_id = $2
		RETURNING `+windowColumns,
		w.ID, w.ProviderID, string(w.Kind()), cols.dayOfWeek, cols.date, int(w.Start), int(w.End), w.Active,
		cols.sessionTypes, w.BufferMinutes, w.MinAdvanceHours, w.MaxAdvanceDays, cols.periodStart, cols.periodEnd,
		w.Timezone)
	updated, err := scanWindow(row)
	return updated, notFound(err)
}

func (r *WindowRepository) SetActive(ctx context.Context, providerID, id string, active bool) (availability.Window, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE availability_windows
		SET is_active = $3, updated_at = now()
		WHERE id = $1 AND provider_id = $2
		RETURNING `+windowColumns, id, providerID, active)
	w, err := scanWindow(row)
	return w, notFound(err)
}

func (r *WindowRepository) Get(ctx context.Context, providerID, id string) (availability.Window, error) {
	if _, err := uuid.Parse(id); err != nil {
		return availability.Window{}, ErrNotFound
	}
	row := r.q.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE id = $1 AND provider_id = $2
	`, id, providerID)
	w, err := scanWindow(row)
	return w, notFound(err)
}

func (r *WindowRepository) ListByProvider(ctx context.Context, providerID string, includeInactive bool) ([]availability.Window, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1 AND (is_active OR $2)
		ORDER BY kind, day_of_week NULLS LAST, window_date NULLS LAST, start_minute, id
	`, providerID, includeInactive)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *WindowRepository) FindActiveByProvider(ctx context.Context, providerID string) ([]availability.Window, error) {
	return r.ListByProvider(ctx, providerID, false)
}

// FindForDate narrows by weekday and date in SQL; the resolver still applies
// the full rules to what comes back.
func (r *WindowRepository) FindForDate(ctx context.Context, providerID string, date civil.Date) ([]availability.Window, error) {
	day := date.In(time.UTC)
	rows, err := r.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1
			AND is_active
			AND (
				(kind = 'recurring'
					AND day_of_week = $3
					AND (period_start IS NULL OR period_start <= $2::date)
					AND (period_end IS NULL OR period_end >= $2::date))
				OR window_date = $2::date
			)
		ORDER BY start_minute, end_minute, id
	`, providerID, day, int(day.Weekday()))
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

type windowColumnsOut struct {
	dayOfWeek    *int
	date         *time.Time
	periodStart  *time.Time
	periodEnd    *time.Time
	sessionTypes []string
}

func toColumns(w availability.Window) windowColumnsOut {
	var out windowColumnsOut
	switch s := w.Schedule.(type) {
	case availability.Recurring:
		day := int(s.Weekday)
		out.dayOfWeek = &day
		out.periodStart = dateParam(s.Period.From)
		out.periodEnd = dateParam(s.Period.Until)
	case availability.OneTime:
		out.date = dateParam(s.Date)
	case availability.Exception:
		out.date = dateParam(s.Date)
	}
	out.sessionTypes = w.SessionTypes
	if out.sessionTypes == nil {
		out.sessionTypes = []string{}
	}
	return out
}

func dateParam(d civil.Date) *time.Time {
	if d == (civil.Date{}) {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func dateColumn(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

func scanWindow(row pgx.Row) (availability.Window, error) {
	var (
		w            availability.Window
		kind         string
		dayOfWeek    *int16
		date         *time.Time
		start, end   int
		periodStart  *time.Time
		periodEnd    *time.Time
		sessionTypes []string
	)
	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&kind,
		&dayOfWeek,
		&date,
		&start,
		&end,
		&w.Active,
		&sessionTypes,
		&w.BufferMinutes,
		&w.MinAdvanceHours,
		&w.MaxAdvanceDays,
		&periodStart,
		&periodEnd,
		&w.Timezone,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return availability.Window{}, err
	}
	var day *int
	if dayOfWeek != nil {
		v := int(*dayOfWeek)
		day = &v
	}
	sched, err := availability.BuildSchedule(availability.Kind(kind), day, dateColumn(date), dateColumn(periodStart), dateColumn(periodEnd))
	if err != nil {
		return availability.Window{}, err
	}
	w.Schedule = sched
	w.Start = availability.Clock(start)
	w.End = availability.Clock(end)
	if len(sessionTypes) > 0 {
		w.SessionTypes = sessionTypes
	}
	return w, nil
}

func collectWindows(rows pgx.Rows) ([]availability.Window, error) {
	defer rows.Close()

	var windows []availability.Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}
