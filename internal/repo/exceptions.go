package repo

import (
	"context"
	"database/sql"
	"time"

	"classline/internal/domain"
)

const exceptionCols = `id,staff_id,student_id,task_template_name,exception_date,reason,created_at`

func (r Repo) InsertException(ctx context.Context, q querier, e domain.TaskException) error {
	_, err := q.ExecContext(ctx, `INSERT INTO task_exceptions(`+exceptionCols+`) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.StaffID, nullableStringPtr(e.StudentID), e.TaskName, fmtDate(e.ExceptionDate), e.Reason, e.CreatedAt)
	return err
}

// FindException matches the exact (staff, task_name, date, student-or-null)
// tuple. A template bound to a student only matches exceptions carrying that
// student; an unbound template only matches student-less exceptions.
func (r Repo) FindException(ctx context.Context, q querier, staffID, taskName string, day time.Time, studentID *string) (string, bool, error) {
	query := `SELECT reason FROM task_exceptions WHERE staff_id=? AND task_template_name=? AND exception_date=?`
	args := []any{staffID, taskName, fmtDate(day)}
	if studentID != nil {
		query += ` AND student_id=?`
		args = append(args, *studentID)
	} else {
		query += ` AND student_id IS NULL`
	}
	var reason string
	err := q.QueryRowContext(ctx, query+` LIMIT 1`, args...).Scan(&reason)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return reason, true, nil
}

func (r Repo) ListExceptions(ctx context.Context, staffID string, from, to *time.Time) ([]domain.TaskException, error) {
	query := `SELECT ` + exceptionCols + ` FROM task_exceptions WHERE 1=1`
	var args []any
	if staffID != "" {
		query += ` AND staff_id=?`
		args = append(args, staffID)
	}
	if from != nil {
		query += ` AND exception_date>=?`
		args = append(args, fmtDate(*from))
	}
	if to != nil {
		query += ` AND exception_date<=?`
		args = append(args, fmtDate(*to))
	}
	query += ` ORDER BY exception_date DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskException
	for rows.Next() {
		var e domain.TaskException
		var studentID sql.NullString
		var date string
		if err := rows.Scan(&e.ID, &e.StaffID, &studentID, &e.TaskName, &date, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		if studentID.Valid {
			e.StudentID = &studentID.String
		}
		if e.ExceptionDate, err = parseDate(date); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
