package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classline/internal/domain"
)

// Repo is the parameterized-SQL data access layer. All date columns are
// stored as ISO dates (domain.DateLayout) and timestamps as RFC3339.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier lets the same query helpers run on the pool or inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func fmtDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(domain.DateLayout, s)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableDatePtr(v *time.Time) any {
	if v == nil {
		return nil
	}
	return fmtDate(*v)
}

// --- school calendar ---

func (r Repo) InsertCalendarEntry(ctx context.Context, q querier, e domain.CalendarEntry) error {
	_, err := q.ExecContext(ctx, `INSERT INTO school_calendar(id,date,event_name,event_type,description,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, fmtDate(e.Date), e.Name, e.Kind, nullable(e.Description), e.CreatedAt)
	return err
}

// LookupDay implements schedule.EntrySource.
func (r Repo) LookupDay(ctx context.Context, day time.Time) (string, bool, error) {
	var name string
	err := r.DB.QueryRowContext(ctx, `SELECT event_name FROM school_calendar WHERE date=?`, fmtDate(day)).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

func (r Repo) CalendarEntryByDate(ctx context.Context, q querier, day time.Time) (domain.CalendarEntry, error) {
	var e domain.CalendarEntry
	var date string
	var desc sql.NullString
	err := q.QueryRowContext(ctx, `SELECT id,date,event_name,event_type,description,created_at FROM school_calendar WHERE date=?`, fmtDate(day)).
		Scan(&e.ID, &date, &e.Name, &e.Kind, &desc, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if e.Date, err = parseDate(date); err != nil {
		return e, err
	}
	if desc.Valid {
		e.Description = desc.String
	}
	return e, nil
}

func (r Repo) ListCalendarEntries(ctx context.Context) ([]domain.CalendarEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,date,event_name,event_type,description,created_at FROM school_calendar ORDER BY date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CalendarEntry
	for rows.Next() {
		var e domain.CalendarEntry
		var date string
		var desc sql.NullString
		if err := rows.Scan(&e.ID, &date, &e.Name, &e.Kind, &desc, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if desc.Valid {
			e.Description = desc.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) DeleteCalendarEntry(ctx context.Context, q querier, day time.Time) error {
	res, err := q.ExecContext(ctx, `DELETE FROM school_calendar WHERE date=?`, fmtDate(day))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := "1=1"
	var args []any
	if evtType != "" {
		clauses += " AND type=?"
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses += " AND entity_kind=?"
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses += " AND entity_id=?"
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE `+clauses+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entity, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entity.Valid {
			e.EntityID = entity.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
