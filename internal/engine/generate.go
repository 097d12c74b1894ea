package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classline/internal/domain"
	"classline/internal/events"
	"classline/internal/repo"
	"classline/internal/schedule"
)

type GeneratedTask struct {
	TaskID    string `json:"task_id"`
	TaskName  string `json:"task_name"`
	StaffID   string `json:"staff_id"`
	StudentID string `json:"student_id"`
	Deadline  string `json:"deadline"`
}

type SkippedTask struct {
	TaskName  string  `json:"task_name"`
	StaffID   string  `json:"staff_id"`
	StudentID *string `json:"student_id,omitempty"`
	Reason    string  `json:"reason"`
}

// GenerationResult reports one generation pass. Skips and per-template
// errors are recorded here rather than failing the batch.
type GenerationResult struct {
	Date               string          `json:"date"`
	IsInstructionalDay bool            `json:"is_instructional_day"`
	Reason             string          `json:"reason,omitempty"`
	Created            []GeneratedTask `json:"created"`
	SkippedExisting    []SkippedTask   `json:"skipped_existing"`
	SkippedException   []SkippedTask   `json:"skipped_exception"`
	Errors             []string        `json:"errors"`
}

// Generate materializes concrete tasks from every active recurring template
// for the given date. Non-instructional days produce nothing. The pass is
// idempotent: tasks that already exist for the template's identity and
// deadline are skipped, so running it twice for the same date is safe.
// All writes happen in a single transaction.
func (e *Engine) Generate(ctx context.Context, targetDate time.Time, actorID string) (GenerationResult, error) {
	day := schedule.Day(targetDate)
	res := GenerationResult{
		Date:             day.Format(domain.DateLayout),
		Created:          []GeneratedTask{},
		SkippedExisting:  []SkippedTask{},
		SkippedException: []SkippedTask{},
		Errors:           []string{},
	}

	instructional, reason, err := e.IsInstructionalDay(ctx, day)
	if err != nil {
		return res, fmt.Errorf("resolve instructional day: %w", err)
	}
	res.IsInstructionalDay = instructional
	res.Reason = reason
	if !instructional {
		return res, nil
	}

	e.genMu.Lock()
	defer e.genMu.Unlock()

	templates, err := e.Repo.ListActiveTemplates(ctx)
	if err != nil {
		return res, err
	}
	starts := schedule.PeriodStarts(e.ScheduleConfig())

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, tpl := range templates {
		if !eligibleOn(tpl.Frequency, day, starts) {
			continue
		}
		if err := e.generateForTemplate(ctx, tx, tpl, day, &res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("template %q: %v", tpl.TaskName, err))
		}
	}

	if err := e.Events.Append(ctx, tx, "generation.completed", "generation", res.Date, actorID, events.Payload{
		"created":           len(res.Created),
		"skipped_existing":  len(res.SkippedExisting),
		"skipped_exception": len(res.SkippedException),
		"errors":            len(res.Errors),
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit generation batch: %w", err)
	}
	return res, nil
}

// eligibleOn decides whether a template fires on the given instructional day.
func eligibleOn(freq domain.Frequency, day time.Time, periodStarts []time.Time) bool {
	switch freq {
	case domain.FreqDaily:
		return true
	case domain.FreqWeekly:
		return day.Weekday() == time.Monday
	case domain.FreqMonthly:
		return day.Day() == 1
	case domain.FreqEveryNineWeeks:
		for _, start := range periodStarts {
			if day.Equal(start) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *Engine) generateForTemplate(ctx context.Context, tx *sql.Tx, tpl domain.RecurringTemplate, day time.Time, res *GenerationResult) error {
	exists, err := e.Repo.TaskExists(ctx, tx, tpl.TaskName, tpl.StaffID, tpl.StudentID, day)
	if err != nil {
		return err
	}
	if exists {
		res.SkippedExisting = append(res.SkippedExisting, SkippedTask{
			TaskName: tpl.TaskName, StaffID: tpl.StaffID, StudentID: tpl.StudentID, Reason: "already generated",
		})
		return nil
	}

	reason, found, err := e.Repo.FindException(ctx, tx, tpl.StaffID, tpl.TaskName, day, tpl.StudentID)
	if err != nil {
		return err
	}
	if found {
		res.SkippedException = append(res.SkippedException, SkippedTask{
			TaskName: tpl.TaskName, StaffID: tpl.StaffID, StudentID: tpl.StudentID, Reason: reason,
		})
		return nil
	}

	staff, err := e.Repo.GetStaff(ctx, tpl.StaffID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("staff %s not found", tpl.StaffID)
		}
		return err
	}

	if tpl.StudentID != nil {
		student, err := e.Repo.GetStudent(ctx, *tpl.StudentID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("student %s not found", *tpl.StudentID)
			}
			return err
		}
		return e.createTask(ctx, tx, tpl, staff.ID, student, day, res)
	}

	// Unbound templates fan out to every student on the roster.
	students, err := e.Repo.ListStudents(ctx)
	if err != nil {
		return err
	}
	for _, student := range students {
		if err := e.createTask(ctx, tx, tpl, staff.ID, student, day, res); err != nil {
			return err
		}
	}
	return nil
}

// createTask materializes one task with deadline = the generation day.
// Rebasing, not generation, is what applies the due-date policies.
func (e *Engine) createTask(ctx context.Context, tx *sql.Tx, tpl domain.RecurringTemplate, staffID string, student domain.Student, day time.Time, res *GenerationResult) error {
	t := domain.Task{
		ID:          uuid.New().String(),
		Description: tpl.TaskName,
		Category:    tpl.Category,
		Frequency:   tpl.Frequency,
		StaffID:     staffID,
		StudentID:   student.ID,
		Deadline:    day,
		CreatedAt:   e.timestamp(),
	}
	inserted, err := e.Repo.InsertTaskIgnoring(ctx, tx, t)
	if err != nil {
		return err
	}
	if !inserted {
		sid := student.ID
		res.SkippedExisting = append(res.SkippedExisting, SkippedTask{
			TaskName: tpl.TaskName, StaffID: staffID, StudentID: &sid, Reason: "already generated",
		})
		return nil
	}
	if err := e.Repo.TouchTemplateGenerated(ctx, tx, tpl.ID, day); err != nil {
		return err
	}
	res.Created = append(res.Created, GeneratedTask{
		TaskID:   t.ID,
		TaskName: t.Description,
		StaffID:  staffID, StudentID: student.ID,
		Deadline: t.Deadline.Format(domain.DateLayout),
	})
	return nil
}
