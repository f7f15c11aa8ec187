package retention

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRemoveOlderThanDate(t *testing.T) {
	t.Run("days", func(t *testing.T) {
		got := RemoveOlderThanDate(day(2025, 1, 10), 3, UnitDay)
		if !got.Equal(day(2025, 1, 7)) {
			t.Errorf("expected 2025-01-07, got %v", got)
		}
	})

	t.Run("weeks ignore the current week", func(t *testing.T) {
		for d := 25; d <= 31; d++ {
			got := RemoveOlderThanDate(day(2025, 8, d), 2, UnitWeek)
			if !got.Equal(day(2025, 8, 11)) {
				t.Errorf("today=2025-08-%d: expected 2025-08-11, got %v", d, got)
			}
		}
	})

	t.Run("weeks always land on a Monday", func(t *testing.T) {
		start := day(2025, 1, 1)
		for offset := range 366 {
			today := start.AddDate(0, 0, offset)
			for weeks := 1; weeks <= 53; weeks++ {
				got := RemoveOlderThanDate(today, weeks, UnitWeek)
				if got.Weekday() != time.Monday {
					t.Fatalf("today=%s weeks=%d: %v is not a Monday", today.Format(time.DateOnly), weeks, got)
				}
				if !got.Before(WeekStart(today)) {
					t.Fatalf("today=%s weeks=%d: cutoff %v reaches into the current week", today.Format(time.DateOnly), weeks, got)
				}
			}
		}
	})

	t.Run("years are twelve month blocks", func(t *testing.T) {
		got := RemoveOlderThanDate(day(2025, 7, 30), 2, UnitYear)
		if !got.Equal(day(2023, 7, 1)) {
			t.Errorf("expected 2023-07-01, got %v", got)
		}
	})

	t.Run("unknown unit keeps everything", func(t *testing.T) {
		got := RemoveOlderThanDate(day(2025, 7, 30), 2, Unit(99))
		if !got.Equal(Epoch) {
			t.Errorf("expected Epoch, got %v", got)
		}
		if got.Year() != 1 || got.Month() != time.January || got.Day() != 1 {
			t.Errorf("expected 0001-01-01, got %v", got)
		}
	})
}

func TestParseUnit(t *testing.T) {
	for _, s := range []string{"day", "week", "year"} {
		u, err := ParseUnit(s)
		if err != nil {
			t.Fatalf("ParseUnit(%q): %v", s, err)
		}
		if u.String() != s {
			t.Errorf("expected %q, got %q", s, u.String())
		}
	}
	if _, err := ParseUnit("month"); err == nil {
		t.Error("expected error for unsupported unit")
	}

	var u Unit
	if err := json.Unmarshal([]byte(`"week"`), &u); err != nil || u != UnitWeek {
		t.Errorf("expected UnitWeek, got %v (err=%v)", u, err)
	}
	if err := json.Unmarshal([]byte(`3`), &u); err == nil {
		t.Error("expected error for non-string unit")
	}
}
