// Package server exposes the scheduling engine over HTTP. Endpoints are
// registered with huma on a chi router and guarded by bearer auth.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"classline/internal/domain"
	"classline/internal/engine"
	"classline/internal/repo"
	"classline/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the scheduling API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Classline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerGeneration(group, cfg.Engine)
	registerCalendar(group, cfg.Engine)
	registerDueDates(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerExceptions(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerFeed(group, cfg.Engine)
	registerDirectory(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "is not"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnauthorized:
		return "unauthorized"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func parseDateParam(s string) (time.Time, huma.StatusError) {
	if s == "" {
		return time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", "date is required", nil)
	}
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD", nil)
	}
	return d, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerGeneration(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate",
		Method:        http.MethodPost,
		Path:          "/generate",
		Summary:       "Run recurring task generation for a date",
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Date string `json:"date,omitempty" format:"date" doc:"Target date; defaults to today"`
		} `json:"body"`
	}) (*struct {
		Body engine.GenerationResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		day := e.Today()
		if input.Body.Date != "" {
			var perr huma.StatusError
			if day, perr = parseDateParam(input.Body.Date); perr != nil {
				return nil, perr
			}
		}
		res, err := e.Generate(ctx, day, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.GenerationResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rebase-deadlines",
		Method:      http.MethodPost,
		Path:        "/deadlines/rebase",
		Summary:     "Recompute deadlines for open tasks",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Apply bool `json:"apply" doc:"Write changes instead of proposing them"`
		} `json:"body"`
	}) (*struct {
		Body engine.RebaseResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RebaseDeadlines(ctx, e.Today(), input.Body.Apply, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RebaseResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerCalendar(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-day",
		Method:      http.MethodGet,
		Path:        "/calendar/{date}",
		Summary:     "Check whether a date is an instructional day",
	}, func(ctx context.Context, input *struct {
		Date string `path:"date" format:"date"`
	}) (*struct {
		Body struct {
			Date               string `json:"date"`
			IsInstructionalDay bool   `json:"is_instructional_day"`
			Reason             string `json:"reason,omitempty"`
		} `json:"body"`
	}, error) {
		day, perr := parseDateParam(input.Date)
		if perr != nil {
			return nil, perr
		}
		ok, reason, err := e.IsInstructionalDay(ctx, day)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Date               string `json:"date"`
				IsInstructionalDay bool   `json:"is_instructional_day"`
				Reason             string `json:"reason,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Date = input.Date
		out.Body.IsInstructionalDay = ok
		out.Body.Reason = reason
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-calendar",
		Method:      http.MethodGet,
		Path:        "/calendar",
		Summary:     "List calendar entries",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.CalendarEntry `json:"body"`
	}, error) {
		items, err := e.Repo.ListCalendarEntries(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CalendarEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-calendar-entry",
		Method:        http.MethodPost,
		Path:          "/calendar",
		Summary:       "Add a calendar entry",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Date        string `json:"date" format:"date"`
			Name        string `json:"name"`
			Kind        string `json:"kind,omitempty" enum:"holiday,break,staff_development,other"`
			Description string `json:"description,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.CalendarEntry `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		day, perr := parseDateParam(input.Body.Date)
		if perr != nil {
			return nil, perr
		}
		entry, err := e.AddCalendarEntry(ctx, day, input.Body.Name, input.Body.Kind, input.Body.Description, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CalendarEntry `json:"body"`
		}{Body: entry}, nil
	})
}

func registerDueDates(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "calculate-due-date",
		Method:      http.MethodGet,
		Path:        "/duedate",
		Summary:     "Calculate a due date from a frequency policy",
	}, func(ctx context.Context, input *struct {
		Frequency string `query:"frequency" doc:"Frequency label, e.g. daily or every_9_weeks"`
		Reference string `query:"reference,omitempty" format:"date" doc:"Reference date; defaults to today"`
		StudentID string `query:"student_id,omitempty" doc:"Student whose anchor date is consulted"`
	}) (*struct {
		Body schedule.DueDate `json:"body"`
	}, error) {
		ref := e.Today()
		if input.Reference != "" {
			var perr huma.StatusError
			if ref, perr = parseDateParam(input.Reference); perr != nil {
				return nil, perr
			}
		}
		var anchor *time.Time
		if input.StudentID != "" {
			student, err := e.Repo.GetStudent(ctx, input.StudentID)
			if err != nil {
				return nil, handleError(err)
			}
			anchor = student.ARDDate
		}
		freq := domain.ParseFrequency(input.Frequency)
		due := schedule.CalculateDueDate(freq, ref, anchor, e.ScheduleConfig())
		return &struct {
			Body schedule.DueDate `json:"body"`
		}{Body: due}, nil
	})
}

func registerTemplates(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List recurring task templates",
	}, func(ctx context.Context, input *struct {
		StaffID string `query:"staff_id,omitempty"`
	}) (*struct {
		Body []domain.RecurringTemplate `json:"body"`
	}, error) {
		items, err := e.ListTemplates(ctx, input.StaffID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.RecurringTemplate `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Add a recurring task template",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			TaskName  string  `json:"task_name"`
			Category  string  `json:"category"`
			Frequency string  `json:"frequency"`
			StaffID   string  `json:"staff_id"`
			StudentID *string `json:"student_id,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.RecurringTemplate `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tpl, err := e.AddTemplate(ctx, engine.TemplateCreateOptions{
			TaskName:  input.Body.TaskName,
			Category:  input.Body.Category,
			Frequency: domain.ParseFrequency(input.Body.Frequency),
			StaffID:   input.Body.StaffID,
			StudentID: input.Body.StudentID,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RecurringTemplate `json:"body"`
		}{Body: tpl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-template",
		Method:      http.MethodDelete,
		Path:        "/templates/{id}",
		Summary:     "Deactivate a template",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeactivateTemplate(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deactivated"}}, nil
	})
}

func registerExceptions(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-exception",
		Method:        http.MethodPost,
		Path:          "/exceptions",
		Summary:       "Suppress a template for one date",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			StaffID   string  `json:"staff_id"`
			StudentID *string `json:"student_id,omitempty"`
			TaskName  string  `json:"task_name"`
			Date      string  `json:"date" format:"date"`
			Reason    string  `json:"reason"`
		} `json:"body"`
	}) (*struct {
		Body domain.TaskException `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		day, perr := parseDateParam(input.Body.Date)
		if perr != nil {
			return nil, perr
		}
		ex, err := e.AddException(ctx, engine.ExceptionCreateOptions{
			StaffID:   input.Body.StaffID,
			StudentID: input.Body.StudentID,
			TaskName:  input.Body.TaskName,
			Date:      day,
			Reason:    input.Body.Reason,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskException `json:"body"`
		}{Body: ex}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-exceptions",
		Method:      http.MethodGet,
		Path:        "/exceptions",
		Summary:     "List exceptions",
	}, func(ctx context.Context, input *struct {
		StaffID string `query:"staff_id,omitempty"`
	}) (*struct {
		Body []domain.TaskException `json:"body"`
	}, error) {
		items, err := e.Repo.ListExceptions(ctx, input.StaffID, nil, nil)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskException `json:"body"`
		}{Body: items}, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		StaffID   string `query:"staff_id,omitempty"`
		StudentID string `query:"student_id,omitempty"`
		DueOn     string `query:"due_on,omitempty" format:"date"`
		Open      bool   `query:"open,omitempty" doc:"Only incomplete tasks"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		filters := repo.TaskFilters{StaffID: input.StaffID, StudentID: input.StudentID}
		if input.DueOn != "" {
			day, perr := parseDateParam(input.DueOn)
			if perr != nil {
				return nil, perr
			}
			filters.DueOn = &day
		}
		if input.Open {
			open := false
			filters.Completed = &open
		}
		items, err := e.Repo.ListTasks(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Mark a task complete",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Note *string `json:"note,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.CompleteTask(ctx, input.ID, input.Body.Note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/reopen",
		Summary:     "Reopen a completed task",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.ReopenTask(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})
}

func registerFeed(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "staff-feed",
		Method:      http.MethodGet,
		Path:        "/feed/{staff_id}",
		Summary:     "Daily feed for a staff member",
	}, func(ctx context.Context, input *struct {
		StaffID string `path:"staff_id"`
		Date    string `query:"date,omitempty" format:"date"`
	}) (*struct {
		Body engine.DailyFeed `json:"body"`
	}, error) {
		day := e.Today()
		if input.Date != "" {
			var perr huma.StatusError
			if day, perr = parseDateParam(input.Date); perr != nil {
				return nil, perr
			}
		}
		feed, err := e.Feed(ctx, input.StaffID, day)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DailyFeed `json:"body"`
		}{Body: feed}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduling-report",
		Method:      http.MethodGet,
		Path:        "/report",
		Summary:     "Due-date report for open tasks",
	}, func(ctx context.Context, input *struct {
		StudentID string `query:"student_id,omitempty"`
	}) (*struct {
		Body []engine.ReportLine `json:"body"`
	}, error) {
		lines, err := e.SchedulingReport(ctx, input.StudentID, e.Today())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.ReportLine `json:"body"`
		}{Body: lines}, nil
	})
}

func registerDirectory(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-staff",
		Method:      http.MethodGet,
		Path:        "/staff",
		Summary:     "List staff",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Staff `json:"body"`
	}, error) {
		items, err := e.Repo.ListStaff(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Staff `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-students",
		Method:      http.MethodGet,
		Path:        "/students",
		Summary:     "List students",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Student `json:"body"`
	}, error) {
		items, err := e.Repo.ListStudents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Student `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the audit event log",
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit,omitempty" minimum:"1" maximum:"500"`
		Type  string `query:"type,omitempty"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
