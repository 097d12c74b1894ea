// Package schedule holds the temporal policy core: the school-year calendar
// gate and the pure due-date calculator. Nothing in this package touches
// storage; persistence is reached only through the small interfaces injected
// by callers.
package schedule

import (
	"context"
	"time"
)

// Config is the calendar configuration the policies evaluate against.
type Config struct {
	YearStart         time.Time
	YearEnd           time.Time
	MonthlyDueDay     int // 1 or 15
	AnchorBufferWeeks int
}

// GradingPeriod is one of the four contiguous 9-week windows of the year.
type GradingPeriod struct {
	Number int
	Start  time.Time
	End    time.Time
}

// GradingPeriods partitions the school year into up to four 9-week windows.
// The last window is clipped to the school-year end. Boundaries are derived
// from cfg on every call; nothing is cached, so a config change takes effect
// on the next calculation.
func GradingPeriods(cfg Config) []GradingPeriod {
	var periods []GradingPeriod
	start := Day(cfg.YearStart)
	end := Day(cfg.YearEnd)
	for n := 1; n <= 4; n++ {
		pEnd := start.AddDate(0, 0, 9*7-1)
		if pEnd.After(end) {
			pEnd = end
		}
		periods = append(periods, GradingPeriod{Number: n, Start: start, End: pEnd})
		start = pEnd.AddDate(0, 0, 1)
		if start.After(end) {
			break
		}
	}
	return periods
}

// PeriodStarts returns the generation trigger dates for 9-week templates:
// the school-year start plus 0, 9, 18 and 27 weeks, bounded by year end.
func PeriodStarts(cfg Config) []time.Time {
	var starts []time.Time
	for i := 0; i < 4; i++ {
		s := Day(cfg.YearStart).AddDate(0, 0, i*9*7)
		if s.After(Day(cfg.YearEnd)) {
			break
		}
		starts = append(starts, s)
	}
	return starts
}

// EntrySource resolves a calendar override for a single date.
type EntrySource interface {
	// LookupDay returns the event name for the date and whether one exists.
	LookupDay(ctx context.Context, day time.Time) (string, bool, error)
}

// Calendar answers whether a date is an instructional day.
type Calendar struct {
	Config  Config
	Entries EntrySource
}

// IsInstructionalDay applies, in order: weekend, school-year bounds, then the
// calendar override table. The reason is empty for instructional days.
func (c Calendar) IsInstructionalDay(ctx context.Context, day time.Time) (bool, string, error) {
	d := Day(day)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, "Weekend", nil
	}
	if d.Before(Day(c.Config.YearStart)) || d.After(Day(c.Config.YearEnd)) {
		return false, "Outside school year", nil
	}
	name, found, err := c.Entries.LookupDay(ctx, d)
	if err != nil {
		return false, "", err
	}
	if found {
		return false, name, nil
	}
	return true, "", nil
}

// Day truncates a timestamp to a civil date at UTC midnight. All date math
// in this package runs on Day-normalized values.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns b minus a in whole days.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
