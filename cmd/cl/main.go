package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"classline/internal/config"
	"classline/internal/db"
	"classline/internal/domain"
	"classline/internal/engine"
	"classline/internal/migrate"
	"classline/internal/repo"
	"classline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Classline CLI",
	Long: `Classline keeps classroom task scheduling honest.
Core concepts:
- Workspace: your .classline directory holding the database; classline.yml holds the school-year config.
- Calendar: the school year plus holidays and breaks; only instructional days generate work.
- Templates: recurring task definitions (daily, weekly, monthly, every 9 weeks) owned by a staff member,
  bound to one student or fanned out to the whole roster.
- Exceptions: dated overrides that suppress one template for one day (field trip, assembly).
- Generation: 'cl generate' materializes the day's tasks; safe to run twice.
- Rebasing: 'cl rebase' recomputes deadlines from the frequency policies and ARD anchor dates.
- Event log: diary of changes, view with 'cl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("CLASSLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(duedateCmd())
	rootCmd.AddCommand(rebaseCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(exceptionCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(studentCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var skipSeed bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace",
		Long:  "Creates .classline/, writes a default classline.yml, runs migrations and seeds the default holiday calendar.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path, err := config.WriteDefault(workspace)
			if err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if skipSeed {
					return nil
				}
				res, err := e.SeedDefaults(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("seeded %d calendar entries, %d templates\n", res.CalendarAdded, res.TemplatesAdded)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "do not seed default holidays and templates")
	return cmd
}

func generateCmd() *cobra.Command {
	var dateStr string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Materialize recurring tasks for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				day := e.Today()
				if dateStr != "" {
					var err error
					if day, err = time.Parse(domain.DateLayout, dateStr); err != nil {
						return fmt.Errorf("invalid --date: %w", err)
					}
				}
				res, err := e.Generate(ctx, day, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.IsInstructionalDay {
					fmt.Printf("%s is not an instructional day (%s); nothing generated\n", res.Date, res.Reason)
					return nil
				}
				fmt.Printf("%s: created %d, skipped %d existing, %d excepted\n",
					res.Date, len(res.Created), len(res.SkippedExisting), len(res.SkippedException))
				for _, errMsg := range res.Errors {
					fmt.Println("  error:", errMsg)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", "", "target date (YYYY-MM-DD), defaults to today")
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <date>",
		Short: "Check whether a date is an instructional day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(domain.DateLayout, args[0])
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ok, reason, err := e.IsInstructionalDay(ctx, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"date": args[0], "is_instructional_day": ok, "reason": reason})
				}
				if ok {
					fmt.Println(args[0], "is an instructional day")
				} else {
					fmt.Printf("%s is not an instructional day: %s\n", args[0], reason)
				}
				return nil
			})
		},
	}
	return cmd
}

func duedateCmd() *cobra.Command {
	var freqStr, refStr, studentID string
	cmd := &cobra.Command{
		Use:   "duedate",
		Short: "Calculate a due date from a frequency policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if freqStr == "" {
				return fmt.Errorf("--frequency required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ref := e.Today()
				if refStr != "" {
					var err error
					if ref, err = time.Parse(domain.DateLayout, refStr); err != nil {
						return fmt.Errorf("invalid --reference: %w", err)
					}
				}
				var anchor *time.Time
				if studentID != "" {
					student, err := e.Repo.GetStudent(ctx, studentID)
					if err != nil {
						return err
					}
					anchor = student.ARDDate
				}
				due := e.CalculateDueDate(domain.ParseFrequency(freqStr), ref, anchor)
				if viper.GetBool("json") {
					return printJSON(due)
				}
				fmt.Printf("%s  (%s)\n", due.DueDate.Format(domain.DateLayout), due.Reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&freqStr, "frequency", "", "frequency label (daily, weekly, monthly, every_9_weeks, annual, once)")
	cmd.Flags().StringVar(&refStr, "reference", "", "reference date, defaults to today")
	cmd.Flags().StringVar(&studentID, "student", "", "student whose ARD date anchors the calculation")
	return cmd
}

func rebaseCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Recompute deadlines for open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.RebaseDeadlines(ctx, e.Today(), apply, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				changes := res.Proposals
				verb := "would move"
				if apply {
					changes = res.Updated
					verb = "moved"
				}
				if len(changes) == 0 {
					fmt.Println("all deadlines already match their policies")
					return nil
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Task", "Current", "Suggested", "Reason"})
				for _, c := range changes {
					tw.AppendRow(table.Row{c.TaskName, c.Current, c.Suggested, c.Reason})
				}
				tw.Render()
				fmt.Printf("%s %d deadlines\n", verb, len(changes))
				for _, msg := range res.Errors {
					fmt.Println("  error:", msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "write changes instead of proposing them")
	return cmd
}

func calendarCmd() *cobra.Command {
	cal := &cobra.Command{Use: "calendar", Short: "Manage the school calendar"}
	cal.AddCommand(calendarListCmd())
	cal.AddCommand(calendarAddCmd())
	cal.AddCommand(calendarRemoveCmd())
	return cal
}

func calendarListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List calendar entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCalendarEntries(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Date", "Name", "Kind"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.Date.Format(domain.DateLayout), e.Name, e.Kind})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func calendarAddCmd() *cobra.Command {
	var name, kind, desc string
	cmd := &cobra.Command{
		Use:   "add <date>",
		Short: "Add a calendar entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(domain.DateLayout, args[0])
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entry, err := e.AddCalendarEntry(ctx, day, name, kind, desc, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(entry, "added %s (%s)\n", entry.Name, entry.Date.Format(domain.DateLayout))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "event name")
	cmd.Flags().StringVar(&kind, "kind", "holiday", "holiday, break, staff_development or other")
	cmd.Flags().StringVar(&desc, "description", "", "optional description")
	return cmd
}

func calendarRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <date>",
		Short: "Remove a calendar entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(domain.DateLayout, args[0])
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.RemoveCalendarEntry(ctx, day, viper.GetString("actor-id"))
			})
		},
	}
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Manage recurring task templates"}
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateAddCmd())
	tpl.AddCommand(templateDeactivateCmd())
	return tpl
}

func templateListCmd() *cobra.Command {
	var staffID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListTemplates(ctx, staffID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Task", "Frequency", "Staff", "Student", "Active"})
				for _, t := range items {
					student := "all"
					if t.StudentID != nil {
						student = *t.StudentID
					}
					tw.AppendRow(table.Row{t.ID, t.TaskName, t.Frequency.Label(), t.StaffID, student, t.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "filter by staff id")
	return cmd
}

func templateAddCmd() *cobra.Command {
	var name, category, freqStr, staffID, studentID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring task template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || staffID == "" || freqStr == "" {
				return fmt.Errorf("--name, --staff and --frequency required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tpl, err := e.AddTemplate(ctx, engine.TemplateCreateOptions{
					TaskName:  name,
					Category:  category,
					Frequency: domain.ParseFrequency(freqStr),
					StaffID:   staffID,
					StudentID: optionalString(studentID),
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrPlain(tpl, "added template %s (%s)\n", tpl.TaskName, tpl.ID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&category, "category", "Administrative", "task category")
	cmd.Flags().StringVar(&freqStr, "frequency", "", "daily, weekly, monthly or every_9_weeks")
	cmd.Flags().StringVar(&staffID, "staff", "", "owner staff id")
	cmd.Flags().StringVar(&studentID, "student", "", "bind to one student (default: all students)")
	return cmd
}

func templateDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeactivateTemplate(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func exceptionCmd() *cobra.Command {
	ex := &cobra.Command{Use: "exception", Short: "Manage generation exceptions"}
	ex.AddCommand(exceptionAddCmd())
	ex.AddCommand(exceptionListCmd())
	return ex
}

func exceptionAddCmd() *cobra.Command {
	var staffID, studentID, taskName, dateStr, reason string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Suppress a template for one date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if staffID == "" || taskName == "" || dateStr == "" || reason == "" {
				return fmt.Errorf("--staff, --task, --date and --reason required")
			}
			day, err := time.Parse(domain.DateLayout, dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ex, err := e.AddException(ctx, engine.ExceptionCreateOptions{
					StaffID:   staffID,
					StudentID: optionalString(studentID),
					TaskName:  taskName,
					Date:      day,
					Reason:    reason,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrPlain(ex, "added exception for %s on %s\n", ex.TaskName, dateStr)
			})
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "staff id")
	cmd.Flags().StringVar(&studentID, "student", "", "student id (matches unbound templates when omitted)")
	cmd.Flags().StringVar(&taskName, "task", "", "template task name")
	cmd.Flags().StringVar(&dateStr, "date", "", "date to suppress (YYYY-MM-DD)")
	cmd.Flags().StringVar(&reason, "reason", "", "why generation is suppressed")
	return cmd
}

func exceptionListCmd() *cobra.Command {
	var staffID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List exceptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListExceptions(ctx, staffID, nil, nil)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Date", "Task", "Staff", "Student", "Reason"})
				for _, e := range items {
					student := "all"
					if e.StudentID != nil {
						student = *e.StudentID
					}
					tw.AppendRow(table.Row{e.ExceptionDate.Format(domain.DateLayout), e.TaskName, e.StaffID, student, e.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "filter by staff id")
	return cmd
}

func staffCmd() *cobra.Command {
	st := &cobra.Command{Use: "staff", Short: "Manage staff"}
	st.AddCommand(staffAddCmd())
	st.AddCommand(staffListCmd())
	return st
}

func staffAddCmd() *cobra.Command {
	var name, expertise string
	var seedTemplates bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.AddStaff(ctx, name, expertise, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if seedTemplates {
					added, err := e.EnsureStaffTemplates(ctx, s.ID)
					if err != nil {
						return err
					}
					fmt.Printf("seeded %d templates\n", added)
				}
				return printJSONOrPlain(s, "added staff %s (%s)\n", s.Name, s.ID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "staff name")
	cmd.Flags().StringVar(&expertise, "expertise", "", "area of expertise")
	cmd.Flags().BoolVar(&seedTemplates, "seed-templates", true, "install the default template set for this staff member")
	return cmd
}

func staffListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStaff(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Expertise"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Expertise})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func studentCmd() *cobra.Command {
	st := &cobra.Command{Use: "student", Short: "Manage students"}
	st.AddCommand(studentAddCmd())
	st.AddCommand(studentListCmd())
	st.AddCommand(studentSetARDCmd())
	return st
}

func studentAddCmd() *cobra.Command {
	var name, goals, needs, ardStr string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			var ard *time.Time
			if ardStr != "" {
				d, err := time.Parse(domain.DateLayout, ardStr)
				if err != nil {
					return fmt.Errorf("invalid --ard-date: %w", err)
				}
				ard = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.AddStudent(ctx, name, goals, needs, ard, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(s, "added student %s (%s)\n", s.Name, s.ID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "student name")
	cmd.Flags().StringVar(&goals, "goals", "", "IEP goals")
	cmd.Flags().StringVar(&needs, "needs", "", "service needs")
	cmd.Flags().StringVar(&ardStr, "ard-date", "", "annual review (ARD) meeting date")
	return cmd
}

func studentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List students",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStudents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "ARD Date"})
				for _, s := range items {
					ard := "-"
					if s.ARDDate != nil {
						ard = s.ARDDate.Format(domain.DateLayout)
					}
					tw.AppendRow(table.Row{s.ID, s.Name, ard})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func studentSetARDCmd() *cobra.Command {
	var ardStr string
	var clear bool
	cmd := &cobra.Command{
		Use:   "set-ard <student-id>",
		Short: "Set or clear a student's ARD date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ardStr == "" && !clear {
				return fmt.Errorf("--date or --clear required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if clear {
					return r.SetStudentARDDate(ctx, args[0], nil)
				}
				if _, err := time.Parse(domain.DateLayout, ardStr); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				return r.SetStudentARDDate(ctx, args[0], &ardStr)
			})
		},
	}
	cmd.Flags().StringVar(&ardStr, "date", "", "ARD date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the ARD date")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Work with generated tasks"}
	t.AddCommand(taskListCmd())
	t.AddCommand(taskCompleteCmd())
	t.AddCommand(taskReopenCmd())
	t.AddCommand(taskNoteCmd())
	return t
}

func taskListCmd() *cobra.Command {
	var staffID, studentID, dueStr string
	var openOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filters := repo.TaskFilters{StaffID: staffID, StudentID: studentID}
				if dueStr != "" {
					day, err := time.Parse(domain.DateLayout, dueStr)
					if err != nil {
						return fmt.Errorf("invalid --due: %w", err)
					}
					filters.DueOn = &day
				}
				if openOnly {
					open := false
					filters.Completed = &open
				}
				items, err := r.ListTasks(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Task", "Student", "Deadline", "Frequency", "Done"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Description, t.StudentID, t.Deadline.Format(domain.DateLayout), t.Frequency.Label(), t.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "filter by staff id")
	cmd.Flags().StringVar(&studentID, "student", "", "filter by student id")
	cmd.Flags().StringVar(&dueStr, "due", "", "filter by deadline (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&openOnly, "open", false, "only incomplete tasks")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CompleteTask(ctx, args[0], optionalString(note), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(t, "completed %s\n", t.Description)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "completion note")
	return cmd
}

func taskReopenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.ReopenTask(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(t, "reopened %s\n", t.Description)
			})
		},
	}
}

func taskNoteCmd() *cobra.Command {
	var appendNote bool
	cmd := &cobra.Command{
		Use:   "note <id> <text>",
		Short: "Set or append a task note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.AddTaskNote(ctx, args[0], args[1], appendNote, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(t, "noted %s\n", t.Description)
			})
		},
	}
	cmd.Flags().BoolVar(&appendNote, "append", false, "append to the existing note")
	return cmd
}

func feedCmd() *cobra.Command {
	var staffID, dateStr string
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Daily feed for a staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if staffID == "" {
				return fmt.Errorf("--staff required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				day := e.Today()
				if dateStr != "" {
					var err error
					if day, err = time.Parse(domain.DateLayout, dateStr); err != nil {
						return fmt.Errorf("invalid --date: %w", err)
					}
				}
				feed, err := e.Feed(ctx, staffID, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(feed)
				}
				if !feed.IsInstructionalDay {
					fmt.Printf("%s: %s\n", feed.Date, feed.Reason)
				}
				printFeedSection("Due today", feed.Due)
				printFeedSection("Overdue", feed.Overdue)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "staff id")
	cmd.Flags().StringVar(&dateStr, "date", "", "feed date, defaults to today")
	return cmd
}

func printFeedSection(title string, items []engine.FeedItem) {
	if len(items) == 0 {
		return
	}
	fmt.Println(title + ":")
	tw := newTable()
	tw.AppendHeader(table.Row{"Task", "Student", "Deadline", "ARD"})
	for _, item := range items {
		ard := ""
		if item.DaysUntilARD != nil {
			ard = fmt.Sprintf("in %d days", *item.DaysUntilARD)
		}
		tw.AppendRow(table.Row{item.Task.Description, item.StudentName, item.Task.Deadline.Format(domain.DateLayout), ard})
	}
	tw.Render()
}

func reportCmd() *cobra.Command {
	var studentID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Due-date report for open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				lines, err := e.SchedulingReport(ctx, studentID, e.Today())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(lines)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Task", "Student", "Frequency", "Due", "Urgency"})
				for _, l := range lines {
					tw.AppendRow(table.Row{l.TaskName, l.StudentName, l.Frequency.Label(), l.DueDate, l.Urgency})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "restrict to one student")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func daemonCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled generation in the foreground",
		Long:  "Runs one generation pass immediately, then again every day at the configured time until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)

			if at == "" {
				at = cfg.Daemon.GenerateAt
			}
			spec, err := dailySpec(at)
			if err != nil {
				return err
			}
			actorID := viper.GetString("actor-id")

			runOnce := func() {
				res, err := e.Generate(cmd.Context(), e.Today(), actorID)
				if err != nil {
					log.Error().Err(err).Msg("generation failed")
					return
				}
				if !res.IsInstructionalDay {
					log.Info().Str("date", res.Date).Str("reason", res.Reason).Msg("not an instructional day")
					return
				}
				log.Info().
					Str("date", res.Date).
					Int("created", len(res.Created)).
					Int("skipped_existing", len(res.SkippedExisting)).
					Int("skipped_exception", len(res.SkippedException)).
					Int("errors", len(res.Errors)).
					Msg("generation pass done")
			}

			c := cron.New()
			if _, err := c.AddFunc(spec, runOnce); err != nil {
				return err
			}
			runOnce()
			c.Start()
			log.Info().Str("at", at).Msg("daemon started")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sig:
			case <-cmd.Context().Done():
			}
			stopCtx := c.Stop()
			<-stopCtx.Done()
			log.Info().Msg("daemon stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "daily run time HH:MM (defaults to config)")
	return cmd
}

// dailySpec turns "06:00" into the cron expression "0 6 * * *".
func dailySpec(at string) (string, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return "", fmt.Errorf("invalid time %q, want HH:MM: %w", at, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowStaffHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)

			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv("CLASSLINE_JWT_SECRET"),
				AllowStaffHeader: allowStaffHeader,
				Logger:           log,
			}
			if authCfg.JWTSecret == "" && !allowStaffHeader {
				return fmt.Errorf("CLASSLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving Classline API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowStaffHeader, "allow-staff-header", false, "accept unauthenticated X-Staff-Id (local use only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrPlain(v any, format string, args ...any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Printf(format, args...)
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
