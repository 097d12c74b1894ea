package schedule

import (
	"fmt"
	"time"

	"classline/internal/domain"
)

// DueDate is the result of one due-date calculation.
type DueDate struct {
	DueDate time.Time      `json:"due_date" format:"date"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// CalculateDueDate resolves a due date from a frequency policy, a reference
// date, an optional student anchor date and the calendar config. It is a
// pure function: identical inputs always produce identical output.
func CalculateDueDate(freq domain.Frequency, reference time.Time, anchor *time.Time, cfg Config) DueDate {
	ref := Day(reference)
	switch freq {
	case domain.FreqDaily:
		return DueDate{DueDate: ref, Reason: "Daily task - due today"}
	case domain.FreqEveryNineWeeks:
		return nineWeekDueDate(ref, cfg)
	case domain.FreqMonthly:
		return monthlyDueDate(ref, cfg)
	case domain.FreqAnnual:
		return anchorDueDate(ref, anchor, cfg)
	default:
		// Once, Weekly and anything unrecognized fall back to a one-week
		// horizon; the loose parse is deliberate, not an error path.
		return DueDate{
			DueDate: ref.AddDate(0, 0, 7),
			Reason:  "One-time task - due in 1 week",
		}
	}
}

func nineWeekDueDate(ref time.Time, cfg Config) DueDate {
	periods := GradingPeriods(cfg)
	for _, p := range periods {
		if !ref.Before(p.Start) && !ref.After(p.End) {
			return DueDate{
				DueDate: p.End,
				Reason:  fmt.Sprintf("Every 9 weeks - due at end of grading period %d", p.Number),
				Details: map[string]any{
					"period":         p.Number,
					"period_start":   p.Start.Format(domain.DateLayout),
					"period_end":     p.End.Format(domain.DateLayout),
					"days_remaining": DaysBetween(ref, p.End),
				},
			}
		}
	}
	// Before the first window or in a gap: due at the end of the next window.
	for _, p := range periods {
		if p.Start.After(ref) {
			return DueDate{
				DueDate: p.End,
				Reason:  fmt.Sprintf("Every 9 weeks - due at end of grading period %d", p.Number),
				Details: map[string]any{
					"period":           p.Number,
					"period_start":     p.Start.Format(domain.DateLayout),
					"period_end":       p.End.Format(domain.DateLayout),
					"days_until_start": DaysBetween(ref, p.Start),
				},
			}
		}
	}
	return DueDate{
		DueDate: Day(cfg.YearEnd),
		Reason:  "Every 9 weeks - due at end of school year",
		Details: map[string]any{
			"period": "End of Year",
			"note":   "no more grading periods this year",
		},
	}
}

func monthlyDueDate(ref time.Time, cfg Config) DueDate {
	day := cfg.MonthlyDueDay
	var due time.Time
	if ref.Day() <= day {
		due = time.Date(ref.Year(), ref.Month(), day, 0, 0, 0, 0, time.UTC)
	} else {
		// time.Date normalizes month 13 to January of the next year, so the
		// December rollover needs no special case.
		due = time.Date(ref.Year(), ref.Month()+1, day, 0, 0, 0, 0, time.UTC)
	}
	ordinal := "th"
	if day == 1 {
		ordinal = "st"
	}
	return DueDate{
		DueDate: due,
		Reason:  fmt.Sprintf("Monthly task - due on %d%s of month", day, ordinal),
		Details: map[string]any{
			"target_day":     day,
			"due_month":      due.Format("January 2006"),
			"days_until_due": DaysBetween(ref, due),
		},
	}
}

func anchorDueDate(ref time.Time, anchor *time.Time, cfg Config) DueDate {
	if anchor == nil {
		return DueDate{
			DueDate: Day(cfg.YearEnd).AddDate(0, 0, -4*7),
			Reason:  "Once a year task - due 4 weeks before school year end (no ARD date set)",
		}
	}
	ard := Day(*anchor)
	due := ard.AddDate(0, 0, -cfg.AnchorBufferWeeks*7)
	rolled := false
	if due.Before(ref) {
		// Already past this year's window; aim at next year's anchor. The
		// details still report the student's recorded ARD date, not the
		// rolled one.
		due = ard.AddDate(1, 0, 0).AddDate(0, 0, -cfg.AnchorBufferWeeks*7)
		rolled = true
	}
	return DueDate{
		DueDate: due,
		Reason:  fmt.Sprintf("Once a year task - due %d weeks before ARD", cfg.AnchorBufferWeeks),
		Details: map[string]any{
			"ard_date":       ard.Format(domain.DateLayout),
			"buffer_weeks":   cfg.AnchorBufferWeeks,
			"days_until_ard": DaysBetween(ref, ard),
			"days_until_due": DaysBetween(ref, due),
			"rolled_forward": rolled,
		},
	}
}
