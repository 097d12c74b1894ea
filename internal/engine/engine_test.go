package engine_test

import (
	"context"
	"testing"
	"time"

	"classline/internal/config"
	"classline/internal/db"
	"classline/internal/domain"
	"classline/internal/engine"
	"classline/internal/migrate"
	"classline/internal/repo"
)

type testEnv struct {
	Engine  *engine.Engine
	Ctx     context.Context
	Staff   domain.Staff
	Student domain.Student
}

// 2024-09-03 is a Tuesday inside the school year with no calendar entry.
var testDay = time.Date(2024, 9, 3, 8, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return testDay }
	ctx := context.Background()

	staff, err := eng.AddStaff(ctx, "Ms. Rivera", "Special Education", "tester")
	if err != nil {
		t.Fatalf("add staff: %v", err)
	}
	student, err := eng.AddStudent(ctx, "Jordan Lee", "Reading fluency", "Speech therapy", nil, "tester")
	if err != nil {
		t.Fatalf("add student: %v", err)
	}
	return &testEnv{Engine: eng, Ctx: ctx, Staff: staff, Student: student}
}

func (env *testEnv) addTemplate(t *testing.T, name string, freq domain.Frequency, studentID *string) domain.RecurringTemplate {
	t.Helper()
	tpl, err := env.Engine.AddTemplate(env.Ctx, engine.TemplateCreateOptions{
		TaskName:  name,
		Category:  "Administrative",
		Frequency: freq,
		StaffID:   env.Staff.ID,
		StudentID: studentID,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("add template: %v", err)
	}
	return tpl
}

func TestGenerateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Take classroom attendance", domain.FreqDaily, nil)

	first, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if !first.IsInstructionalDay {
		t.Fatalf("expected instructional day, got reason %q", first.Reason)
	}
	if len(first.Created) != 1 || len(first.Errors) != 0 {
		t.Fatalf("first pass created=%d errors=%v", len(first.Created), first.Errors)
	}

	second, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if len(second.Created) != 0 {
		t.Fatalf("second pass created %d tasks, want 0", len(second.Created))
	}
	if len(second.SkippedExisting) != 1 {
		t.Fatalf("second pass skipped_existing=%d, want 1", len(second.SkippedExisting))
	}
}

func TestGenerateHolidaySuppression(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Take classroom attendance", domain.FreqDaily, nil)
	laborDay := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	if _, err := env.Engine.AddCalendarEntry(env.Ctx, laborDay, "Labor Day", "holiday", "", "tester"); err != nil {
		t.Fatalf("add calendar entry: %v", err)
	}

	res, err := env.Engine.Generate(env.Ctx, laborDay, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsInstructionalDay {
		t.Fatal("expected non-instructional day")
	}
	if res.Reason != "Labor Day" {
		t.Fatalf("reason = %q, want Labor Day", res.Reason)
	}
	if len(res.Created) != 0 {
		t.Fatalf("created %d tasks on a holiday", len(res.Created))
	}
}

func TestGenerateWeekendGate(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Take classroom attendance", domain.FreqDaily, nil)
	saturday := time.Date(2024, 9, 7, 0, 0, 0, 0, time.UTC)

	res, err := env.Engine.Generate(env.Ctx, saturday, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsInstructionalDay || res.Reason != "Weekend" {
		t.Fatalf("expected weekend gate, got %+v", res)
	}
}

func TestGenerateExceptionSuppression(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Take classroom attendance", domain.FreqDaily, nil)
	if _, err := env.Engine.AddException(env.Ctx, engine.ExceptionCreateOptions{
		StaffID:  env.Staff.ID,
		TaskName: "Take classroom attendance",
		Date:     testDay,
		Reason:   "Field trip",
		ActorID:  "tester",
	}); err != nil {
		t.Fatalf("add exception: %v", err)
	}

	res, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 0 {
		t.Fatalf("created %d tasks despite exception", len(res.Created))
	}
	if len(res.SkippedException) != 1 || res.SkippedException[0].Reason != "Field trip" {
		t.Fatalf("skipped_exception = %+v", res.SkippedException)
	}
}

func TestGenerateFansOutToAllStudents(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddStudent(env.Ctx, "Sam Ortiz", "", "", nil, "tester"); err != nil {
		t.Fatal(err)
	}
	env.addTemplate(t, "Log therapy minutes", domain.FreqDaily, nil)

	res, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("created %d tasks, want one per student", len(res.Created))
	}
}

func TestGenerateBoundTemplateCreatesOneTask(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddStudent(env.Ctx, "Sam Ortiz", "", "", nil, "tester"); err != nil {
		t.Fatal(err)
	}
	env.addTemplate(t, "Review IEP goals", domain.FreqDaily, &env.Student.ID)

	res, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("created %d tasks, want 1", len(res.Created))
	}
	if res.Created[0].StudentID != env.Student.ID {
		t.Fatalf("task bound to %s, want %s", res.Created[0].StudentID, env.Student.ID)
	}
}

func TestGenerateEligibilityByFrequency(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Weekly progress review", domain.FreqWeekly, nil)
	env.addTemplate(t, "Monthly IEP review", domain.FreqMonthly, nil)

	// Tuesday the 3rd: neither weekly (Monday) nor monthly (1st) fires.
	res, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 0 {
		t.Fatalf("created %d tasks on an ineligible day", len(res.Created))
	}

	// Monday 2024-09-09: the weekly template fires, monthly still waits.
	monday := time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC)
	res, err = env.Engine.Generate(env.Ctx, monday, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 || res.Created[0].TaskName != "Weekly progress review" {
		t.Fatalf("monday pass created %+v", res.Created)
	}
}

func TestRebaseProposesThenApplies(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Monthly IEP review", domain.FreqMonthly, &env.Student.ID)
	// 2024-10-01 is a Tuesday and the 1st, so the monthly template fires.
	firstOfMonth := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	gen, err := env.Engine.Generate(env.Ctx, firstOfMonth, "tester")
	if err != nil || len(gen.Created) != 1 {
		t.Fatalf("generate: %v created=%d", err, len(gen.Created))
	}

	// As of mid-October the monthly policy points at November 1st.
	asOf := time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC)
	dryRun, err := env.Engine.RebaseDeadlines(env.Ctx, asOf, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(dryRun.Proposals) != 1 || len(dryRun.Updated) != 0 {
		t.Fatalf("dry run proposals=%d updated=%d", len(dryRun.Proposals), len(dryRun.Updated))
	}
	if dryRun.Proposals[0].Suggested != "2024-11-01" {
		t.Fatalf("suggested = %s, want 2024-11-01", dryRun.Proposals[0].Suggested)
	}

	applied, err := env.Engine.RebaseDeadlines(env.Ctx, asOf, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(applied.Updated) != 1 {
		t.Fatalf("apply updated=%d, want 1", len(applied.Updated))
	}

	// Idempotence: nothing left to move on the second run.
	again, err := env.Engine.RebaseDeadlines(env.Ctx, asOf, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Updated) != 0 {
		t.Fatalf("second apply updated=%d, want 0", len(again.Updated))
	}
}

func TestRebaseSkipsCompletedTasks(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Monthly IEP review", domain.FreqMonthly, &env.Student.ID)
	firstOfMonth := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	gen, err := env.Engine.Generate(env.Ctx, firstOfMonth, "tester")
	if err != nil || len(gen.Created) != 1 {
		t.Fatalf("generate: %v", err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, gen.Created[0].TaskID, nil, "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err := env.Engine.RebaseDeadlines(env.Ctx, time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC), true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Updated) != 0 {
		t.Fatalf("rebase touched a completed task: %+v", res.Updated)
	}
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.SeedDefaults(env.Ctx, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if first.CalendarAdded == 0 || first.TemplatesAdded == 0 {
		t.Fatalf("first seed added nothing: %+v", first)
	}
	second, err := env.Engine.SeedDefaults(env.Ctx, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if second.CalendarAdded != 0 || second.TemplatesAdded != 0 {
		t.Fatalf("second seed not a no-op: %+v", second)
	}
}

func TestCompleteAndReopenTask(t *testing.T) {
	env := newTestEnv(t)
	env.addTemplate(t, "Update progress notes", domain.FreqDaily, &env.Student.ID)
	gen, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil || len(gen.Created) != 1 {
		t.Fatalf("generate: %v", err)
	}
	id := gen.Created[0].TaskID

	note := "done during planning period"
	task, err := env.Engine.CompleteTask(env.Ctx, id, &note, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !task.Completed || task.CompletedAt == nil {
		t.Fatalf("task not completed: %+v", task)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, id, nil, "tester"); err == nil {
		t.Fatal("expected error on double completion")
	}

	task, err = env.Engine.ReopenTask(env.Ctx, id, "tester")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if task.Completed || task.CompletedAt != nil {
		t.Fatalf("task still completed: %+v", task)
	}
}

func TestFeedFlagsUpcomingARD(t *testing.T) {
	env := newTestEnv(t)
	ard := time.Date(2024, 9, 15, 0, 0, 0, 0, time.UTC)
	withARD, err := env.Engine.AddStudent(env.Ctx, "Casey Nguyen", "", "", &ard, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.addTemplate(t, "Log therapy minutes", domain.FreqDaily, &withARD.ID)
	if _, err := env.Engine.Generate(env.Ctx, testDay, "tester"); err != nil {
		t.Fatal(err)
	}

	feed, err := env.Engine.Feed(env.Ctx, env.Staff.ID, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed.Due) != 1 {
		t.Fatalf("feed due=%d, want 1", len(feed.Due))
	}
	item := feed.Due[0]
	if item.DaysUntilARD == nil || *item.DaysUntilARD != 12 {
		t.Fatalf("days_until_ard = %v, want 12", item.DaysUntilARD)
	}
}

func TestTemplateRejectsNonRecurringFrequency(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddTemplate(env.Ctx, engine.TemplateCreateOptions{
		TaskName:  "One-off evaluation",
		Category:  "Assessment",
		Frequency: domain.FreqOnce,
		StaffID:   env.Staff.ID,
		ActorID:   "tester",
	})
	if err == nil {
		t.Fatal("expected frequency validation error")
	}
}

func TestDeactivatedTemplateDoesNotFire(t *testing.T) {
	env := newTestEnv(t)
	tpl := env.addTemplate(t, "Take classroom attendance", domain.FreqDaily, nil)
	if err := env.Engine.DeactivateTemplate(env.Ctx, tpl.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 0 {
		t.Fatalf("inactive template created %d tasks", len(res.Created))
	}
}

func TestMutationAndAuditEventCommitTogether(t *testing.T) {
	env := newTestEnv(t)

	ex, err := env.Engine.AddException(env.Ctx, engine.ExceptionCreateOptions{
		StaffID:  env.Staff.ID,
		TaskName: "Take classroom attendance",
		Date:     testDay,
		Reason:   "Field trip",
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("add exception: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, "exception.added", "", ex.ID)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("exception.added events = %d, want 1", len(evts))
	}

	// When the audit append cannot succeed, the write must not land either.
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `DROP TABLE events`); err != nil {
		t.Fatalf("drop events table: %v", err)
	}
	if _, err := env.Engine.AddException(env.Ctx, engine.ExceptionCreateOptions{
		StaffID:  env.Staff.ID,
		TaskName: "Log therapy minutes",
		Date:     testDay,
		Reason:   "Assembly",
		ActorID:  "tester",
	}); err == nil {
		t.Fatal("expected the failed audit append to surface as an error")
	}
	exceptions, err := env.Engine.Repo.ListExceptions(env.Ctx, env.Staff.ID, nil, nil)
	if err != nil {
		t.Fatalf("list exceptions: %v", err)
	}
	if len(exceptions) != 1 {
		t.Fatalf("exceptions on file = %d, want 1: a write whose event was lost must roll back", len(exceptions))
	}
}

func TestDuplicateTaskIdentityCollapses(t *testing.T) {
	env := newTestEnv(t)
	day := time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC)
	existing := domain.Task{
		ID:          "task-original",
		Description: "Take classroom attendance",
		Category:    "Administrative",
		Frequency:   domain.FreqDaily,
		StaffID:     env.Staff.ID,
		StudentID:   env.Student.ID,
		Deadline:    day,
		CreatedAt:   "2024-09-03T08:00:00Z",
	}
	if err := env.Engine.Repo.InsertTask(env.Ctx, existing); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	// A concurrent pass racing past the existence check still collapses on
	// the identity index instead of inserting a second row.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	dup := existing
	dup.ID = "task-duplicate"
	inserted, err := env.Engine.Repo.InsertTaskIgnoring(env.Ctx, tx, dup)
	if err != nil {
		t.Fatalf("insert ignoring: %v", err)
	}
	if inserted {
		t.Fatal("same-identity task inserted a second row")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{StaffID: env.Staff.ID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-original" {
		t.Fatalf("tasks = %+v, want only task-original", tasks)
	}

	// A generation pass over the same identity reports the survivor as a
	// skip, not a new task.
	env.addTemplate(t, "Take classroom attendance", domain.FreqDaily, &env.Student.ID)
	res, err := env.Engine.Generate(env.Ctx, testDay, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Created) != 0 || len(res.SkippedExisting) != 1 {
		t.Fatalf("created=%d skipped_existing=%d, want 0/1", len(res.Created), len(res.SkippedExisting))
	}
}
