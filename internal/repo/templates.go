package repo

import (
	"context"
	"database/sql"
	"time"

	"classline/internal/domain"
)

func scanTemplate(scan func(...any) error) (domain.RecurringTemplate, error) {
	var t domain.RecurringTemplate
	var freq string
	var active int
	var studentID, lastGen sql.NullString
	if err := scan(&t.ID, &t.TaskName, &t.Category, &freq, &active, &t.StaffID, &studentID, &lastGen, &t.CreatedAt); err != nil {
		return t, err
	}
	t.Frequency = domain.ParseFrequency(freq)
	t.Active = active != 0
	if studentID.Valid {
		t.StudentID = &studentID.String
	}
	if lastGen.Valid {
		d, err := parseDate(lastGen.String)
		if err != nil {
			return t, err
		}
		t.LastGeneratedDate = &d
	}
	return t, nil
}

const templateCols = `id,task_name,category,frequency,is_active,staff_id,student_id,last_generated_date,created_at`

func (r Repo) InsertTemplate(ctx context.Context, q querier, t domain.RecurringTemplate) error {
	_, err := q.ExecContext(ctx, `INSERT INTO recurring_task_templates(`+templateCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TaskName, t.Category, string(t.Frequency), boolToInt(t.Active), t.StaffID, nullableStringPtr(t.StudentID), nullableDatePtr(t.LastGeneratedDate), t.CreatedAt)
	return err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.RecurringTemplate, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateCols+` FROM recurring_task_templates WHERE id=?`, id)
	t, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// TemplateBySeedKey finds a template by its idempotent-seed identity
// (task_name, staff_id). Not a uniqueness constraint, only a seed check.
func (r Repo) TemplateBySeedKey(ctx context.Context, q querier, taskName, staffID string) (domain.RecurringTemplate, error) {
	row := q.QueryRowContext(ctx, `SELECT `+templateCols+` FROM recurring_task_templates WHERE task_name=? AND staff_id=? LIMIT 1`, taskName, staffID)
	t, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTemplates(ctx context.Context, staffID string) ([]domain.RecurringTemplate, error) {
	query := `SELECT ` + templateCols + ` FROM recurring_task_templates`
	var args []any
	if staffID != "" {
		query += ` WHERE staff_id=?`
		args = append(args, staffID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return r.queryTemplates(ctx, query, args...)
}

func (r Repo) ListActiveTemplates(ctx context.Context) ([]domain.RecurringTemplate, error) {
	return r.queryTemplates(ctx, `SELECT `+templateCols+` FROM recurring_task_templates WHERE is_active=1 ORDER BY created_at ASC, id ASC`)
}

func (r Repo) queryTemplates(ctx context.Context, query string, args ...any) ([]domain.RecurringTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// SetTemplateActive soft-deletes (or restores) a template.
func (r Repo) SetTemplateActive(ctx context.Context, q querier, id string, active bool) error {
	res, err := q.ExecContext(ctx, `UPDATE recurring_task_templates SET is_active=? WHERE id=?`, boolToInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchTemplateGenerated advances the audit-only last_generated_date marker.
// It is never consulted to decide regeneration; idempotency is existence-based.
func (r Repo) TouchTemplateGenerated(ctx context.Context, tx *sql.Tx, id string, day time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE recurring_task_templates SET last_generated_date=? WHERE id=?`, fmtDate(day), id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
