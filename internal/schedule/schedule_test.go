package schedule_test

import (
	"context"
	"testing"
	"time"

	"classline/internal/schedule"
)

type mapEntries map[string]string

func (m mapEntries) LookupDay(_ context.Context, day time.Time) (string, bool, error) {
	name, ok := m[day.Format("2006-01-02")]
	return name, ok, nil
}

func testCalendar(entries mapEntries) schedule.Calendar {
	return schedule.Calendar{Config: testConfig(), Entries: entries}
}

func TestGradingPeriodsPartitionTheYear(t *testing.T) {
	periods := schedule.GradingPeriods(testConfig())
	if len(periods) != 4 {
		t.Fatalf("expected 4 grading periods, got %d", len(periods))
	}
	if !periods[0].Start.Equal(date(2024, 8, 26)) || !periods[0].End.Equal(date(2024, 10, 27)) {
		t.Fatalf("period 1 = %v..%v", periods[0].Start, periods[0].End)
	}
	for i := 1; i < len(periods); i++ {
		if got, want := periods[i].Start, periods[i-1].End.AddDate(0, 0, 1); !got.Equal(want) {
			t.Fatalf("period %d starts %v, want contiguous %v", i+1, got, want)
		}
	}
	last := periods[len(periods)-1]
	if last.End.After(testConfig().YearEnd) {
		t.Fatalf("last period end %v exceeds year end", last.End)
	}
}

func TestIsInstructionalDayWeekend(t *testing.T) {
	cal := testCalendar(mapEntries{})
	// 2024-09-07 is a Saturday
	ok, reason, err := cal.IsInstructionalDay(context.Background(), date(2024, 9, 7))
	if err != nil {
		t.Fatal(err)
	}
	if ok || reason != "Weekend" {
		t.Fatalf("expected weekend, got ok=%v reason=%q", ok, reason)
	}
}

func TestIsInstructionalDayOutsideYear(t *testing.T) {
	cal := testCalendar(mapEntries{})
	ok, reason, err := cal.IsInstructionalDay(context.Background(), date(2025, 7, 1))
	if err != nil {
		t.Fatal(err)
	}
	if ok || reason != "Outside school year" {
		t.Fatalf("expected outside school year, got ok=%v reason=%q", ok, reason)
	}
}

func TestIsInstructionalDayHoliday(t *testing.T) {
	cal := testCalendar(mapEntries{"2024-09-02": "Labor Day"})
	ok, reason, err := cal.IsInstructionalDay(context.Background(), date(2024, 9, 2))
	if err != nil {
		t.Fatal(err)
	}
	if ok || reason != "Labor Day" {
		t.Fatalf("expected Labor Day, got ok=%v reason=%q", ok, reason)
	}
}

func TestIsInstructionalDayRegularWeekday(t *testing.T) {
	cal := testCalendar(mapEntries{"2024-09-02": "Labor Day"})
	ok, reason, err := cal.IsInstructionalDay(context.Background(), date(2024, 9, 3))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || reason != "" {
		t.Fatalf("expected instructional day, got ok=%v reason=%q", ok, reason)
	}
}

func TestDayNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	in := time.Date(2024, 9, 3, 23, 45, 0, 0, loc)
	got := schedule.Day(in)
	if got.Hour() != 0 || got.Location() != time.UTC {
		t.Fatalf("Day() = %v, want UTC midnight", got)
	}
}
