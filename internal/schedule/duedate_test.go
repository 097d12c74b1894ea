package schedule_test

import (
	"testing"
	"time"

	"classline/internal/domain"
	"classline/internal/schedule"
)

func testConfig() schedule.Config {
	return schedule.Config{
		YearStart:         date(2024, 8, 26),
		YearEnd:           date(2025, 6, 6),
		MonthlyDueDay:     1,
		AnchorBufferWeeks: 3,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestCalculateDueDateIsPure(t *testing.T) {
	cfg := testConfig()
	anchor := ptr(date(2025, 3, 1))
	first := schedule.CalculateDueDate(domain.FreqAnnual, date(2025, 1, 10), anchor, cfg)
	second := schedule.CalculateDueDate(domain.FreqAnnual, date(2025, 1, 10), anchor, cfg)
	if !first.DueDate.Equal(second.DueDate) || first.Reason != second.Reason {
		t.Fatalf("expected identical results, got %v / %v", first, second)
	}
}

func TestDailyDueToday(t *testing.T) {
	ref := date(2024, 9, 10)
	got := schedule.CalculateDueDate(domain.FreqDaily, ref, nil, testConfig())
	if !got.DueDate.Equal(ref) {
		t.Fatalf("daily due date = %v, want %v", got.DueDate, ref)
	}
}

func TestMonthlyRollsToNextMonth(t *testing.T) {
	got := schedule.CalculateDueDate(domain.FreqMonthly, date(2024, 9, 15), nil, testConfig())
	want := date(2024, 10, 1)
	if !got.DueDate.Equal(want) {
		t.Fatalf("monthly due date = %v, want %v", got.DueDate, want)
	}
}

func TestMonthlyOnOrBeforePreferredDay(t *testing.T) {
	cfg := testConfig()
	cfg.MonthlyDueDay = 15
	got := schedule.CalculateDueDate(domain.FreqMonthly, date(2024, 9, 10), nil, cfg)
	if want := date(2024, 9, 15); !got.DueDate.Equal(want) {
		t.Fatalf("monthly due date = %v, want %v", got.DueDate, want)
	}
	// past the preferred day: roll to next month's 15th
	got = schedule.CalculateDueDate(domain.FreqMonthly, date(2024, 9, 20), nil, cfg)
	if want := date(2024, 10, 15); !got.DueDate.Equal(want) {
		t.Fatalf("monthly due date = %v, want %v", got.DueDate, want)
	}
}

func TestMonthlyDecemberRollsToJanuary(t *testing.T) {
	got := schedule.CalculateDueDate(domain.FreqMonthly, date(2024, 12, 20), nil, testConfig())
	if want := date(2025, 1, 1); !got.DueDate.Equal(want) {
		t.Fatalf("monthly due date = %v, want %v", got.DueDate, want)
	}
}

func TestNineWeekWindowEnd(t *testing.T) {
	got := schedule.CalculateDueDate(domain.FreqEveryNineWeeks, date(2024, 9, 10), nil, testConfig())
	if want := date(2024, 10, 27); !got.DueDate.Equal(want) {
		t.Fatalf("nine-week due date = %v, want %v", got.DueDate, want)
	}
	if got.Details["period"] != 1 {
		t.Fatalf("expected period 1, got %v", got.Details["period"])
	}
}

func TestNineWeekAfterLastWindow(t *testing.T) {
	cfg := testConfig()
	got := schedule.CalculateDueDate(domain.FreqEveryNineWeeks, date(2025, 5, 20), nil, cfg)
	if !got.DueDate.Equal(cfg.YearEnd) {
		t.Fatalf("due date after last window = %v, want year end %v", got.DueDate, cfg.YearEnd)
	}
}

func TestAnchorMinusBuffer(t *testing.T) {
	got := schedule.CalculateDueDate(domain.FreqAnnual, date(2025, 1, 10), ptr(date(2025, 3, 1)), testConfig())
	if want := date(2025, 2, 8); !got.DueDate.Equal(want) {
		t.Fatalf("anchor due date = %v, want %v", got.DueDate, want)
	}
}

func TestAnchorRollsForwardOneYear(t *testing.T) {
	got := schedule.CalculateDueDate(domain.FreqAnnual, date(2024, 9, 5), ptr(date(2024, 9, 1)), testConfig())
	if want := date(2025, 8, 11); !got.DueDate.Equal(want) {
		t.Fatalf("rolled anchor due date = %v, want %v", got.DueDate, want)
	}
	if got.Details["rolled_forward"] != true {
		t.Fatalf("expected rolled_forward detail, got %v", got.Details)
	}
	// The details keep reporting the recorded ARD date even after the due
	// date rolls into next year.
	if got.Details["ard_date"] != "2024-09-01" {
		t.Fatalf("ard_date detail = %v, want 2024-09-01", got.Details["ard_date"])
	}
	if got.Details["days_until_ard"] != -4 {
		t.Fatalf("days_until_ard detail = %v, want -4", got.Details["days_until_ard"])
	}
}

func TestAnchorMissingFallsBackToYearEnd(t *testing.T) {
	got := schedule.CalculateDueDate(domain.FreqAnnual, date(2024, 9, 5), nil, testConfig())
	if want := date(2025, 5, 9); !got.DueDate.Equal(want) {
		t.Fatalf("fallback due date = %v, want %v", got.DueDate, want)
	}
}

func TestOnceAndUnrecognizedDueInAWeek(t *testing.T) {
	ref := date(2024, 9, 10)
	want := date(2024, 9, 17)
	for _, freq := range []domain.Frequency{domain.FreqOnce, domain.Frequency("sometimes")} {
		got := schedule.CalculateDueDate(freq, ref, nil, testConfig())
		if !got.DueDate.Equal(want) {
			t.Fatalf("%s due date = %v, want %v", freq, got.DueDate, want)
		}
	}
}
