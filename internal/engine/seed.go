package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"classline/internal/domain"
	"classline/internal/events"
	"classline/internal/repo"
)

// District holidays and breaks for the 2024-2025 school year.
var defaultHolidays = []struct {
	Date string
	Name string
}{
	{"2024-09-02", "Labor Day"},
	{"2024-10-14", "Columbus Day"},
	{"2024-11-11", "Veterans Day"},
	{"2024-11-28", "Thanksgiving Day"},
	{"2024-11-29", "Day after Thanksgiving"},
	{"2024-12-23", "Winter Break Start"},
	{"2024-12-24", "Christmas Eve"},
	{"2024-12-25", "Christmas Day"},
	{"2024-12-26", "Winter Break"},
	{"2024-12-27", "Winter Break"},
	{"2024-12-30", "Winter Break"},
	{"2024-12-31", "New Year's Eve"},
	{"2025-01-01", "New Year's Day"},
	{"2025-01-02", "Winter Break"},
	{"2025-01-03", "Winter Break End"},
	{"2025-01-20", "Martin Luther King Jr. Day"},
	{"2025-02-17", "Presidents Day"},
	{"2025-03-31", "Spring Break Start"},
	{"2025-04-01", "Spring Break"},
	{"2025-04-02", "Spring Break"},
	{"2025-04-03", "Spring Break"},
	{"2025-04-04", "Spring Break End"},
	{"2025-05-26", "Memorial Day"},
}

// Every staff member starts with this template set.
var defaultTemplates = []struct {
	TaskName  string
	Category  string
	Frequency domain.Frequency
}{
	{"Take classroom attendance", "Administrative", domain.FreqDaily},
	{"Log therapy minutes", "Therapy", domain.FreqDaily},
	{"Update progress notes", "Documentation", domain.FreqDaily},
	{"Weekly progress review", "Assessment", domain.FreqWeekly},
	{"Monthly IEP review", "Administrative", domain.FreqMonthly},
	{"Quarterly data collection", "Assessment", domain.FreqEveryNineWeeks},
}

type SeedResult struct {
	CalendarAdded  int `json:"calendar_added"`
	TemplatesAdded int `json:"templates_added"`
}

// SeedDefaults installs the default holiday calendar and, for every staff
// member on file, the standard recurring template set. Safe to re-run;
// existing rows are left alone.
func (e *Engine) SeedDefaults(ctx context.Context, actorID string) (SeedResult, error) {
	var res SeedResult

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, h := range defaultHolidays {
		day, err := time.Parse(domain.DateLayout, h.Date)
		if err != nil {
			return res, err
		}
		_, err = e.Repo.CalendarEntryByDate(ctx, tx, day)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return res, err
		}
		entry := domain.CalendarEntry{
			ID:        uuid.New().String(),
			Date:      day,
			Name:      h.Name,
			Kind:      "holiday",
			CreatedAt: e.timestamp(),
		}
		if err := e.Repo.InsertCalendarEntry(ctx, tx, entry); err != nil {
			return res, err
		}
		res.CalendarAdded++
	}

	staffMembers, err := e.Repo.ListStaff(ctx)
	if err != nil {
		return res, err
	}
	for _, s := range staffMembers {
		added, err := e.ensureStaffTemplates(ctx, tx, s.ID)
		if err != nil {
			return res, err
		}
		res.TemplatesAdded += added
	}

	if res.CalendarAdded == 0 && res.TemplatesAdded == 0 {
		return res, nil
	}
	if err := e.Events.Append(ctx, tx, "seed.completed", "seed", "", actorID, events.Payload{
		"calendar_added":  res.CalendarAdded,
		"templates_added": res.TemplatesAdded,
	}); err != nil {
		return res, err
	}
	return res, tx.Commit()
}

// EnsureStaffTemplates installs any default templates the staff member is
// missing and reports how many were created.
func (e *Engine) EnsureStaffTemplates(ctx context.Context, staffID string) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	added, err := e.ensureStaffTemplates(ctx, tx, staffID)
	if err != nil {
		return added, err
	}
	return added, tx.Commit()
}

func (e *Engine) ensureStaffTemplates(ctx context.Context, tx *sql.Tx, staffID string) (int, error) {
	added := 0
	for _, d := range defaultTemplates {
		_, err := e.Repo.TemplateBySeedKey(ctx, tx, d.TaskName, staffID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return added, err
		}
		tpl := domain.RecurringTemplate{
			ID:        uuid.New().String(),
			TaskName:  d.TaskName,
			Category:  d.Category,
			Frequency: d.Frequency,
			Active:    true,
			StaffID:   staffID,
			CreatedAt: e.timestamp(),
		}
		if err := e.Repo.InsertTemplate(ctx, tx, tpl); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
