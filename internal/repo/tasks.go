package repo

import (
	"context"
	"database/sql"
	"time"

	"classline/internal/domain"
)

const taskCols = `id,description,category,staff_id,student_id,deadline,frequency,completed,completed_at,completion_note,created_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var deadline, freq string
	var completed int
	var completedAt, note sql.NullString
	if err := scan(&t.ID, &t.Description, &t.Category, &t.StaffID, &t.StudentID, &deadline, &freq, &completed, &completedAt, &note, &t.CreatedAt); err != nil {
		return t, err
	}
	var err error
	if t.Deadline, err = parseDate(deadline); err != nil {
		return t, err
	}
	t.Frequency = domain.ParseFrequency(freq)
	t.Completed = completed != 0
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	if note.Valid {
		t.CompletionNote = &note.String
	}
	return t, nil
}

// InsertTaskIgnoring inserts a task record unless one with the same
// (description, staff, student, deadline) identity already exists; the
// unique index absorbs the race between overlapping generation passes.
// Returns false when the row already existed.
func (r Repo) InsertTaskIgnoring(ctx context.Context, tx *sql.Tx, t domain.Task) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Description, t.Category, t.StaffID, t.StudentID, fmtDate(t.Deadline), string(t.Frequency), boolToInt(t.Completed),
		nullableStringPtr(t.CompletedAt), nullableStringPtr(t.CompletionNote), t.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Description, t.Category, t.StaffID, t.StudentID, fmtDate(t.Deadline), string(t.Frequency), boolToInt(t.Completed),
		nullableStringPtr(t.CompletedAt), nullableStringPtr(t.CompletionNote), t.CreatedAt)
	return err
}

// TaskExists checks the generation identity tuple inside the caller's
// transaction so the idempotency decision and the insert see the same state.
func (r Repo) TaskExists(ctx context.Context, q querier, description, staffID string, studentID *string, deadline time.Time) (bool, error) {
	query := `SELECT 1 FROM tasks WHERE description=? AND staff_id=? AND deadline=?`
	args := []any{description, staffID, fmtDate(deadline)}
	if studentID != nil {
		query += ` AND student_id=?`
		args = append(args, *studentID)
	}
	var one int
	err := q.QueryRowContext(ctx, query+` LIMIT 1`, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// TaskFilters narrows ListTasks.
type TaskFilters struct {
	StaffID   string
	StudentID string
	Completed *bool
	DueOn     *time.Time
	Limit     int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE 1=1`
	var args []any
	if f.StaffID != "" {
		query += ` AND staff_id=?`
		args = append(args, f.StaffID)
	}
	if f.StudentID != "" {
		query += ` AND student_id=?`
		args = append(args, f.StudentID)
	}
	if f.Completed != nil {
		query += ` AND completed=?`
		args = append(args, boolToInt(*f.Completed))
	}
	if f.DueOn != nil {
		query += ` AND deadline=?`
		args = append(args, fmtDate(*f.DueOn))
	}
	query += ` ORDER BY deadline ASC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListOpenTasks returns every incomplete task, oldest deadline first.
func (r Repo) ListOpenTasks(ctx context.Context) ([]domain.Task, error) {
	f := false
	return r.ListTasks(ctx, TaskFilters{Completed: &f})
}

// UpdateTaskDeadline rewrites only the deadline column; completion state is
// out of the scheduling core's reach.
func (r Repo) UpdateTaskDeadline(ctx context.Context, tx *sql.Tx, id string, deadline time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET deadline=? WHERE id=?`, fmtDate(deadline), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTaskCompleted(ctx context.Context, q querier, id string, completedAt string, note *string) error {
	res, err := q.ExecContext(ctx, `UPDATE tasks SET completed=1, completed_at=?, completion_note=COALESCE(?, completion_note) WHERE id=?`,
		completedAt, nullableStringPtr(note), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTaskIncomplete(ctx context.Context, q querier, id string) error {
	res, err := q.ExecContext(ctx, `UPDATE tasks SET completed=0, completed_at=NULL WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTaskNote(ctx context.Context, q querier, id, note string, appendNote bool) error {
	query := `UPDATE tasks SET completion_note=? WHERE id=?`
	if appendNote {
		query = `UPDATE tasks SET completion_note=COALESCE(completion_note || char(10), '') || ? WHERE id=?`
	}
	res, err := q.ExecContext(ctx, query, note, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
