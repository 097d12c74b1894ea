package engine

import (
	"context"
	"errors"
	"time"

	"classline/internal/domain"
	"classline/internal/repo"
	"classline/internal/schedule"
)

type FeedItem struct {
	Task         domain.Task `json:"task"`
	StudentName  string      `json:"student_name"`
	DaysUntilARD *int        `json:"days_until_ard,omitempty"`
}

type DailyFeed struct {
	Date               string     `json:"date"`
	IsInstructionalDay bool       `json:"is_instructional_day"`
	Reason             string     `json:"reason,omitempty"`
	Due                []FeedItem `json:"due"`
	Overdue            []FeedItem `json:"overdue"`
}

// Upcoming ARD meetings are flagged on the feed inside this horizon.
const ardNoticeDays = 21

// Feed assembles a staff member's view of a day: tasks due that day,
// tasks already overdue, and an ARD countdown for any student whose
// meeting falls within the notice horizon.
func (e *Engine) Feed(ctx context.Context, staffID string, day time.Time) (DailyFeed, error) {
	day = schedule.Day(day)
	feed := DailyFeed{
		Date:    day.Format(domain.DateLayout),
		Due:     []FeedItem{},
		Overdue: []FeedItem{},
	}

	instructional, reason, err := e.IsInstructionalDay(ctx, day)
	if err != nil {
		return feed, err
	}
	feed.IsInstructionalDay = instructional
	feed.Reason = reason

	open := false
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{StaffID: staffID, Completed: &open})
	if err != nil {
		return feed, err
	}
	for _, t := range tasks {
		deadline := schedule.Day(t.Deadline)
		if deadline.After(day) {
			continue
		}
		item, err := e.feedItem(ctx, t, day)
		if err != nil {
			return feed, err
		}
		if deadline.Equal(day) {
			feed.Due = append(feed.Due, item)
		} else {
			feed.Overdue = append(feed.Overdue, item)
		}
	}
	return feed, nil
}

func (e *Engine) feedItem(ctx context.Context, t domain.Task, day time.Time) (FeedItem, error) {
	item := FeedItem{Task: t}
	student, err := e.Repo.GetStudent(ctx, t.StudentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			item.StudentName = "(unknown)"
			return item, nil
		}
		return item, err
	}
	item.StudentName = student.Name
	if student.ARDDate != nil {
		days := schedule.DaysBetween(day, *student.ARDDate)
		if days >= 0 && days <= ardNoticeDays {
			item.DaysUntilARD = &days
		}
	}
	return item, nil
}

type ReportLine struct {
	TaskID      string           `json:"task_id"`
	TaskName    string           `json:"task_name"`
	StudentName string           `json:"student_name"`
	Frequency   domain.Frequency `json:"frequency"`
	DueDate     string           `json:"due_date"`
	DaysUntil   int              `json:"days_until"`
	Urgency     string           `json:"urgency"`
	Reason      string           `json:"reason"`
}

// SchedulingReport lists every open task with its policy-derived due date
// and an urgency bucket, optionally restricted to one student.
func (e *Engine) SchedulingReport(ctx context.Context, studentID string, asOf time.Time) ([]ReportLine, error) {
	day := schedule.Day(asOf)
	cfg := e.ScheduleConfig()

	open := false
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{StudentID: studentID, Completed: &open})
	if err != nil {
		return nil, err
	}

	lines := make([]ReportLine, 0, len(tasks))
	for _, t := range tasks {
		student, err := e.Repo.GetStudent(ctx, t.StudentID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return nil, err
		}
		due := schedule.CalculateDueDate(t.Frequency, day, student.ARDDate, cfg)
		days := schedule.DaysBetween(day, due.DueDate)
		lines = append(lines, ReportLine{
			TaskID:      t.ID,
			TaskName:    t.Description,
			StudentName: student.Name,
			Frequency:   t.Frequency,
			DueDate:     due.DueDate.Format(domain.DateLayout),
			DaysUntil:   days,
			Urgency:     urgency(days),
			Reason:      due.Reason,
		})
	}
	return lines, nil
}

func urgency(daysUntil int) string {
	switch {
	case daysUntil < 0:
		return "overdue"
	case daysUntil <= 3:
		return "urgent"
	case daysUntil <= 7:
		return "soon"
	default:
		return "scheduled"
	}
}
