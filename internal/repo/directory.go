package repo

import (
	"context"
	"database/sql"

	"classline/internal/domain"
)

func (r Repo) InsertStaff(ctx context.Context, q querier, s domain.Staff) error {
	_, err := q.ExecContext(ctx, `INSERT INTO staff(id,name,expertise,created_at) VALUES (?,?,?,?)`,
		s.ID, s.Name, nullable(s.Expertise), s.CreatedAt)
	return err
}

func (r Repo) GetStaff(ctx context.Context, id string) (domain.Staff, error) {
	var s domain.Staff
	var expertise sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,expertise,created_at FROM staff WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &expertise, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if expertise.Valid {
		s.Expertise = expertise.String
	}
	return s, err
}

func (r Repo) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,expertise,created_at FROM staff ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Staff
	for rows.Next() {
		var s domain.Staff
		var expertise sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &expertise, &s.CreatedAt); err != nil {
			return nil, err
		}
		if expertise.Valid {
			s.Expertise = expertise.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertStudent(ctx context.Context, q querier, s domain.Student) error {
	_, err := q.ExecContext(ctx, `INSERT INTO students(id,name,goals,needs,ard_date,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.Name, nullable(s.Goals), nullable(s.Needs), nullableDatePtr(s.ARDDate), s.CreatedAt)
	return err
}

func (r Repo) GetStudent(ctx context.Context, id string) (domain.Student, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,goals,needs,ard_date,created_at FROM students WHERE id=?`, id)
	s, err := scanStudent(row.Scan)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListStudents(ctx context.Context) ([]domain.Student, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,goals,needs,ard_date,created_at FROM students ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Student
	for rows.Next() {
		s, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) SetStudentARDDate(ctx context.Context, id string, ard *string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE students SET ard_date=? WHERE id=?`, nullableStringPtr(ard), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanStudent(scan func(...any) error) (domain.Student, error) {
	var s domain.Student
	var goals, needs, ard sql.NullString
	if err := scan(&s.ID, &s.Name, &goals, &needs, &ard, &s.CreatedAt); err != nil {
		return s, err
	}
	if goals.Valid {
		s.Goals = goals.String
	}
	if needs.Valid {
		s.Needs = needs.String
	}
	if ard.Valid {
		d, err := parseDate(ard.String)
		if err != nil {
			return s, err
		}
		s.ARDDate = &d
	}
	return s, nil
}
