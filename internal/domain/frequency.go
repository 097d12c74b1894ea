package domain

import "strings"

// Frequency is the closed set of recurrence policies. Historic data carried
// free-text labels ("Once a Month", "Every 9 Weeks"); ParseFrequency accepts
// those spellings and anything unrecognized degrades to FreqOnce.
type Frequency string

const (
	FreqDaily          Frequency = "daily"
	FreqWeekly         Frequency = "weekly"
	FreqMonthly        Frequency = "monthly"
	FreqEveryNineWeeks Frequency = "every_9_weeks"
	FreqAnnual         Frequency = "annual"
	FreqOnce           Frequency = "once"
)

// TemplateFrequencies are the values a recurring template may carry.
// Annual and once-off tasks are scheduled directly, not templated.
var TemplateFrequencies = []Frequency{FreqDaily, FreqWeekly, FreqMonthly, FreqEveryNineWeeks}

// ParseFrequency normalizes a frequency label. Unrecognized input maps to
// FreqOnce rather than erroring; callers that require a recurring value
// validate against TemplateFrequencies separately.
func ParseFrequency(s string) Frequency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return FreqDaily
	case "weekly", "once a week":
		return FreqWeekly
	case "monthly", "once a month":
		return FreqMonthly
	case "every_9_weeks", "every 9 weeks", "quarterly":
		return FreqEveryNineWeeks
	case "annual", "yearly", "once a year":
		return FreqAnnual
	default:
		return FreqOnce
	}
}

// IsTemplateFrequency reports whether f may be used on a recurring template.
func IsTemplateFrequency(f Frequency) bool {
	for _, v := range TemplateFrequencies {
		if v == f {
			return true
		}
	}
	return false
}

// Label returns the human-readable form used in reports.
func (f Frequency) Label() string {
	switch f {
	case FreqDaily:
		return "Daily"
	case FreqWeekly:
		return "Weekly"
	case FreqMonthly:
		return "Monthly"
	case FreqEveryNineWeeks:
		return "Every 9 Weeks"
	case FreqAnnual:
		return "Once a Year"
	default:
		return "Once"
	}
}
