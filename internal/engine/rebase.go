package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classline/internal/domain"
	"classline/internal/events"
	"classline/internal/repo"
	"classline/internal/schedule"
)

type RebaseChange struct {
	TaskID    string `json:"task_id"`
	TaskName  string `json:"task_name"`
	StudentID string `json:"student_id"`
	Current   string `json:"current_deadline"`
	Suggested string `json:"suggested_deadline"`
	Reason    string `json:"reason"`
}

type RebaseResult struct {
	AsOf      string         `json:"as_of"`
	Applied   bool           `json:"applied"`
	Updated   []RebaseChange `json:"updated"`
	Proposals []RebaseChange `json:"proposals"`
	Errors    []string       `json:"errors"`
}

// RebaseDeadlines recomputes the due date of every open task from its
// frequency policy and the student's anchor date. With autoApply false it
// only reports proposals; with autoApply true it rewrites deadlines in a
// single transaction, all or nothing. Completed tasks are never touched.
// Re-running with no intervening changes is a no-op.
func (e *Engine) RebaseDeadlines(ctx context.Context, asOf time.Time, autoApply bool, actorID string) (RebaseResult, error) {
	day := schedule.Day(asOf)
	res := RebaseResult{
		AsOf:      day.Format(domain.DateLayout),
		Applied:   autoApply,
		Updated:   []RebaseChange{},
		Proposals: []RebaseChange{},
		Errors:    []string{},
	}

	tasks, err := e.Repo.ListOpenTasks(ctx)
	if err != nil {
		return res, err
	}
	cfg := e.ScheduleConfig()

	var changes []RebaseChange
	for _, t := range tasks {
		student, err := e.Repo.GetStudent(ctx, t.StudentID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				res.Errors = append(res.Errors, fmt.Sprintf("task %q: student %s not found", t.Description, t.StudentID))
				continue
			}
			return res, err
		}
		due := schedule.CalculateDueDate(t.Frequency, day, student.ARDDate, cfg)
		if due.DueDate.Equal(schedule.Day(t.Deadline)) {
			continue
		}
		changes = append(changes, RebaseChange{
			TaskID:    t.ID,
			TaskName:  t.Description,
			StudentID: t.StudentID,
			Current:   t.Deadline.Format(domain.DateLayout),
			Suggested: due.DueDate.Format(domain.DateLayout),
			Reason:    due.Reason,
		})
	}

	if !autoApply {
		res.Proposals = changes
		if res.Proposals == nil {
			res.Proposals = []RebaseChange{}
		}
		return res, nil
	}
	if len(changes) == 0 {
		return res, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	for _, c := range changes {
		deadline, err := time.Parse(domain.DateLayout, c.Suggested)
		if err != nil {
			return res, err
		}
		if err := e.Repo.UpdateTaskDeadline(ctx, tx, c.TaskID, deadline); err != nil {
			return res, fmt.Errorf("update task %s: %w", c.TaskID, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "deadlines.rebased", "rebase", res.AsOf, actorID, events.Payload{
		"updated": len(changes),
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit rebase batch: %w", err)
	}
	res.Updated = changes
	return res, nil
}
