package engine

import (
	"context"
	"errors"

	"classline/internal/domain"
	"classline/internal/events"
)

// CompleteTask marks a task done with an optional note and stamps the
// completion time from the engine's clock.
func (e *Engine) CompleteTask(ctx context.Context, id string, note *string, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Completed {
		return t, errors.New("task is already completed")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskCompleted(ctx, tx, id, e.timestamp(), note); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", "task", id, actorID, events.Payload{
		"description": t.Description,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return e.Repo.GetTask(ctx, id)
}

// ReopenTask clears the completion state of a task.
func (e *Engine) ReopenTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !t.Completed {
		return t, errors.New("task is not completed")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskIncomplete(ctx, tx, id); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.reopened", "task", id, actorID, nil); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return e.Repo.GetTask(ctx, id)
}

// AddTaskNote sets or appends to a task's completion note.
func (e *Engine) AddTaskNote(ctx context.Context, id, note string, appendNote bool, actorID string) (domain.Task, error) {
	if note == "" {
		return domain.Task{}, errors.New("note is required")
	}
	if _, err := e.Repo.GetTask(ctx, id); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskNote(ctx, tx, id, note, appendNote); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.noted", "task", id, actorID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}
