// Package engine orchestrates the scheduling core: recurring generation,
// deadline rebasing, seeding and the staff-facing feed. Every operation goes
// through explicit repositories and returns structured results; expected
// conditions (skips, proposals) are data, not errors.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"classline/internal/config"
	"classline/internal/domain"
	"classline/internal/events"
	"classline/internal/repo"
	"classline/internal/schedule"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	// Serializes generation passes within this process; the unique task
	// index covers races this mutex cannot see.
	genMu sync.Mutex
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	e := &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
	e.Events = events.Writer{DB: db, Now: e.now}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Today returns the current civil date under the engine's clock.
func (e *Engine) Today() time.Time {
	return schedule.Day(e.now())
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ScheduleConfig projects the workspace config into the policy core's view.
func (e *Engine) ScheduleConfig() schedule.Config {
	return schedule.Config{
		YearStart:         e.Config.YearStart(),
		YearEnd:           e.Config.YearEnd(),
		MonthlyDueDay:     e.Config.Scheduling.MonthlyDueDay,
		AnchorBufferWeeks: e.Config.Scheduling.AnchorBufferWeeks,
	}
}

// Calendar returns the instructional-day service backed by the repo.
func (e *Engine) Calendar() schedule.Calendar {
	return schedule.Calendar{Config: e.ScheduleConfig(), Entries: e.Repo}
}

// IsInstructionalDay answers the calendar gate for a single date.
func (e *Engine) IsInstructionalDay(ctx context.Context, day time.Time) (bool, string, error) {
	return e.Calendar().IsInstructionalDay(ctx, day)
}

// CalculateDueDate applies a frequency policy under the engine's config.
func (e *Engine) CalculateDueDate(freq domain.Frequency, reference time.Time, anchor *time.Time) schedule.DueDate {
	return schedule.CalculateDueDate(freq, reference, anchor, e.ScheduleConfig())
}

// DueDateForTask computes the due date a task should carry as of the
// engine's current date, resolving the student's anchor date first.
func (e *Engine) DueDateForTask(ctx context.Context, t domain.Task) (schedule.DueDate, error) {
	student, err := e.Repo.GetStudent(ctx, t.StudentID)
	if err != nil {
		return schedule.DueDate{}, fmt.Errorf("resolve student %s: %w", t.StudentID, err)
	}
	return schedule.CalculateDueDate(t.Frequency, e.Today(), student.ARDDate, e.ScheduleConfig()), nil
}

// --- templates ---

type TemplateCreateOptions struct {
	TaskName  string
	Category  string
	Frequency domain.Frequency
	StaffID   string
	StudentID *string
	ActorID   string
}

func (e *Engine) AddTemplate(ctx context.Context, opts TemplateCreateOptions) (domain.RecurringTemplate, error) {
	if opts.TaskName == "" {
		return domain.RecurringTemplate{}, errors.New("task name is required")
	}
	if opts.Category == "" {
		return domain.RecurringTemplate{}, errors.New("category is required")
	}
	if !domain.IsTemplateFrequency(opts.Frequency) {
		return domain.RecurringTemplate{}, fmt.Errorf("frequency %s is not a recurring frequency", opts.Frequency)
	}
	if _, err := e.Repo.GetStaff(ctx, opts.StaffID); err != nil {
		return domain.RecurringTemplate{}, fmt.Errorf("staff %s: %w", opts.StaffID, err)
	}
	if opts.StudentID != nil {
		if _, err := e.Repo.GetStudent(ctx, *opts.StudentID); err != nil {
			return domain.RecurringTemplate{}, fmt.Errorf("student %s: %w", *opts.StudentID, err)
		}
	}
	t := domain.RecurringTemplate{
		ID:        uuid.New().String(),
		TaskName:  opts.TaskName,
		Category:  opts.Category,
		Frequency: opts.Frequency,
		Active:    true,
		StaffID:   opts.StaffID,
		StudentID: opts.StudentID,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTemplate(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "template.added", "template", t.ID, opts.ActorID, events.Payload{
		"task_name": t.TaskName, "frequency": string(t.Frequency), "staff_id": t.StaffID,
	}); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

// DeactivateTemplate soft-deletes; templates are never destroyed.
func (e *Engine) DeactivateTemplate(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTemplateActive(ctx, tx, id, false); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "template.deactivated", "template", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) ListTemplates(ctx context.Context, staffID string) ([]domain.RecurringTemplate, error) {
	return e.Repo.ListTemplates(ctx, staffID)
}

// --- exceptions ---

type ExceptionCreateOptions struct {
	StaffID   string
	StudentID *string
	TaskName  string
	Date      time.Time
	Reason    string
	ActorID   string
}

func (e *Engine) AddException(ctx context.Context, opts ExceptionCreateOptions) (domain.TaskException, error) {
	if opts.TaskName == "" {
		return domain.TaskException{}, errors.New("task name is required")
	}
	if opts.Reason == "" {
		return domain.TaskException{}, errors.New("reason is required")
	}
	if _, err := e.Repo.GetStaff(ctx, opts.StaffID); err != nil {
		return domain.TaskException{}, fmt.Errorf("staff %s: %w", opts.StaffID, err)
	}
	if opts.StudentID != nil {
		if _, err := e.Repo.GetStudent(ctx, *opts.StudentID); err != nil {
			return domain.TaskException{}, fmt.Errorf("student %s: %w", *opts.StudentID, err)
		}
	}
	ex := domain.TaskException{
		ID:            uuid.New().String(),
		StaffID:       opts.StaffID,
		StudentID:     opts.StudentID,
		TaskName:      opts.TaskName,
		ExceptionDate: schedule.Day(opts.Date),
		Reason:        opts.Reason,
		CreatedAt:     e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ex, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertException(ctx, tx, ex); err != nil {
		return ex, err
	}
	if err := e.Events.Append(ctx, tx, "exception.added", "exception", ex.ID, opts.ActorID, events.Payload{
		"task_name": ex.TaskName, "date": ex.ExceptionDate.Format(domain.DateLayout), "reason": ex.Reason,
	}); err != nil {
		return ex, err
	}
	return ex, tx.Commit()
}

// --- calendar ---

func (e *Engine) AddCalendarEntry(ctx context.Context, day time.Time, name, kind, description, actorID string) (domain.CalendarEntry, error) {
	if name == "" {
		return domain.CalendarEntry{}, errors.New("event name is required")
	}
	if kind == "" {
		kind = "holiday"
	}
	entry := domain.CalendarEntry{
		ID:          uuid.New().String(),
		Date:        schedule.Day(day),
		Name:        name,
		Kind:        kind,
		Description: description,
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return entry, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCalendarEntry(ctx, tx, entry); err != nil {
		return entry, err
	}
	if err := e.Events.Append(ctx, tx, "calendar.added", "calendar", entry.ID, actorID, events.Payload{
		"date": entry.Date.Format(domain.DateLayout), "name": entry.Name,
	}); err != nil {
		return entry, err
	}
	return entry, tx.Commit()
}

func (e *Engine) RemoveCalendarEntry(ctx context.Context, day time.Time, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCalendarEntry(ctx, tx, schedule.Day(day)); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "calendar.removed", "calendar", day.Format(domain.DateLayout), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// --- directory ---

func (e *Engine) AddStaff(ctx context.Context, name, expertise, actorID string) (domain.Staff, error) {
	if name == "" {
		return domain.Staff{}, errors.New("name is required")
	}
	s := domain.Staff{ID: uuid.New().String(), Name: name, Expertise: expertise, CreatedAt: e.timestamp()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStaff(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "staff.added", "staff", s.ID, actorID, events.Payload{"name": s.Name}); err != nil {
		return s, err
	}
	return s, tx.Commit()
}

func (e *Engine) AddStudent(ctx context.Context, name, goals, needs string, ardDate *time.Time, actorID string) (domain.Student, error) {
	if name == "" {
		return domain.Student{}, errors.New("name is required")
	}
	s := domain.Student{ID: uuid.New().String(), Name: name, Goals: goals, Needs: needs, CreatedAt: e.timestamp()}
	if ardDate != nil {
		d := schedule.Day(*ardDate)
		s.ARDDate = &d
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStudent(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "student.added", "student", s.ID, actorID, events.Payload{"name": s.Name}); err != nil {
		return s, err
	}
	return s, tx.Commit()
}
