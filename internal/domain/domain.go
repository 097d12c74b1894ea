package domain

import "time"

// DateLayout is the canonical storage format for calendar dates.
const DateLayout = "2006-01-02"

type Staff struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Expertise string `json:"expertise,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Student struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Goals     string     `json:"goals,omitempty"`
	Needs     string     `json:"needs,omitempty"`
	ARDDate   *time.Time `json:"ard_date,omitempty" format:"date"`
	CreatedAt string     `json:"created_at" format:"date-time"`
}

// CalendarEntry is a non-instructional day inside the school year.
type CalendarEntry struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date" format:"date"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind" enum:"holiday,break,staff_development,other"`
	Description string    `json:"description,omitempty"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
}

// RecurringTemplate describes what task to generate, for whom and how often.
// A nil StudentID fans the task out to every enrolled student.
type RecurringTemplate struct {
	ID                string     `json:"id"`
	TaskName          string     `json:"task_name"`
	Category          string     `json:"category"`
	Frequency         Frequency  `json:"frequency"`
	Active            bool       `json:"active"`
	StaffID           string     `json:"staff_id"`
	StudentID         *string    `json:"student_id,omitempty"`
	LastGeneratedDate *time.Time `json:"last_generated_date,omitempty" format:"date"`
	CreatedAt         string     `json:"created_at" format:"date-time"`
}

// TaskException suppresses generation of one template for one staff/date
// (and optionally one student). Immutable once created.
type TaskException struct {
	ID            string    `json:"id"`
	StaffID       string    `json:"staff_id"`
	StudentID     *string   `json:"student_id,omitempty"`
	TaskName      string    `json:"task_name"`
	ExceptionDate time.Time `json:"exception_date" format:"date"`
	Reason        string    `json:"reason"`
	CreatedAt     string    `json:"created_at" format:"date-time"`
}

// Task is a task catalog record. The scheduling core appends tasks during
// generation and rewrites Deadline during rebasing; completion fields are
// owned by the completion workflow.
type Task struct {
	ID             string    `json:"id"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	StaffID        string    `json:"staff_id"`
	StudentID      string    `json:"student_id"`
	Deadline       time.Time `json:"deadline" format:"date"`
	Frequency      Frequency `json:"frequency"`
	Completed      bool      `json:"completed"`
	CompletedAt    *string   `json:"completed_at,omitempty" format:"date-time"`
	CompletionNote *string   `json:"completion_note,omitempty"`
	CreatedAt      string    `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
