package domain

import "testing"

func TestParseFrequency(t *testing.T) {
	cases := map[string]Frequency{
		"Daily":          FreqDaily,
		"daily":          FreqDaily,
		"Weekly":         FreqWeekly,
		"Monthly":        FreqMonthly,
		"once a month":   FreqMonthly,
		"Every 9 Weeks":  FreqEveryNineWeeks,
		"every_9_weeks":  FreqEveryNineWeeks,
		"Once a year":    FreqAnnual,
		"annual":         FreqAnnual,
		"once":           FreqOnce,
		"whenever it is": FreqOnce, // unrecognized text falls back to once
	}
	for in, want := range cases {
		if got := ParseFrequency(in); got != want {
			t.Errorf("ParseFrequency(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestIsTemplateFrequency(t *testing.T) {
	for _, f := range TemplateFrequencies {
		if !IsTemplateFrequency(f) {
			t.Errorf("%s should be a template frequency", f)
		}
	}
	for _, f := range []Frequency{FreqAnnual, FreqOnce} {
		if IsTemplateFrequency(f) {
			t.Errorf("%s should not be a template frequency", f)
		}
	}
}
