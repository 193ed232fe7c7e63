package jobs

import (
	"testing"
	"time"

	"github.com/Noptus/btp4ai-wire/internal/config"
)

func parisLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("Failed to load Europe/Paris: %v", err)
	}
	return loc
}

func TestWeeklyNextRun(t *testing.T) {
	loc := parisLocation(t)
	policy := SchedulePolicy{
		Cadence:  config.CadenceWeekly,
		Weekday:  time.Monday,
		Hour:     8,
		Minute:   50,
		Location: loc,
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			// 2025-08-25 is a Monday
			name: "target already passed today rolls to next week",
			now:  time.Date(2025, 8, 25, 9, 0, 0, 0, loc),
			want: time.Date(2025, 9, 1, 8, 50, 0, 0, loc),
		},
		{
			name: "target still ahead today runs today",
			now:  time.Date(2025, 8, 25, 8, 0, 0, 0, loc),
			want: time.Date(2025, 8, 25, 8, 50, 0, 0, loc),
		},
		{
			name: "mid-week advances to next Monday",
			now:  time.Date(2025, 8, 27, 12, 0, 0, 0, loc),
			want: time.Date(2025, 9, 1, 8, 50, 0, 0, loc),
		},
		{
			name: "exactly at target rolls forward",
			now:  time.Date(2025, 8, 25, 8, 50, 0, 0, loc),
			want: time.Date(2025, 9, 1, 8, 50, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.NextRun(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestWeeklyNextRunDelay(t *testing.T) {
	loc := parisLocation(t)
	policy := SchedulePolicy{
		Cadence:  config.CadenceWeekly,
		Weekday:  time.Monday,
		Hour:     8,
		Minute:   50,
		Location: loc,
	}

	now := time.Date(2025, 8, 25, 8, 0, 0, 0, loc)
	got := policy.NextRun(now)
	if delay := got.Sub(now); delay != 50*time.Minute {
		t.Errorf("Expected 50m delay, got %v", delay)
	}
}

func TestDailyNextRunSkipsWeekend(t *testing.T) {
	loc := parisLocation(t)
	policy := SchedulePolicy{
		Cadence:  config.CadenceDaily,
		Hour:     8,
		Minute:   50,
		Location: loc,
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			// 2025-08-30 is a Saturday
			name: "saturday jumps to monday",
			now:  time.Date(2025, 8, 30, 6, 0, 0, 0, loc),
			want: time.Date(2025, 9, 1, 8, 50, 0, 0, loc),
		},
		{
			name: "sunday jumps to monday",
			now:  time.Date(2025, 8, 31, 23, 0, 0, 0, loc),
			want: time.Date(2025, 9, 1, 8, 50, 0, 0, loc),
		},
		{
			// 2025-08-29 is a Friday
			name: "friday after target jumps over the weekend",
			now:  time.Date(2025, 8, 29, 9, 0, 0, 0, loc),
			want: time.Date(2025, 9, 1, 8, 50, 0, 0, loc),
		},
		{
			name: "weekday before target runs same day",
			now:  time.Date(2025, 8, 28, 7, 0, 0, 0, loc),
			want: time.Date(2025, 8, 28, 8, 50, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.NextRun(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNextRunAcrossDSTBoundary(t *testing.T) {
	loc := parisLocation(t)
	policy := SchedulePolicy{
		Cadence:  config.CadenceWeekly,
		Weekday:  time.Monday,
		Hour:     8,
		Minute:   50,
		Location: loc,
	}

	// CET/CEST transition: Europe/Paris leaves DST on 2025-10-26. The run
	// following Friday the 24th must still land at 08:50 wall-clock time.
	now := time.Date(2025, 10, 24, 9, 0, 0, 0, loc)
	got := policy.NextRun(now)

	if got.Hour() != 8 || got.Minute() != 50 {
		t.Errorf("Expected 08:50 local after DST transition, got %02d:%02d", got.Hour(), got.Minute())
	}
	if got.Year() != 2025 || got.Month() != time.October || got.Day() != 27 {
		t.Errorf("Expected 2025-10-27, got %v", got)
	}
}

func TestNextRunCronOverride(t *testing.T) {
	loc := parisLocation(t)
	policy := SchedulePolicy{
		Cadence:  config.CadenceWeekly,
		Weekday:  time.Monday,
		Hour:     8,
		Minute:   50,
		Location: loc,
		CronExpr: "30 7 * * 2", // Tuesdays 07:30
	}

	now := time.Date(2025, 8, 25, 9, 0, 0, 0, loc) // Monday
	got := policy.NextRun(now)
	want := time.Date(2025, 8, 26, 7, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("NextRun with cron override = %v, want %v", got, want)
	}
}

func TestNextRunInvalidCronFallsBack(t *testing.T) {
	loc := parisLocation(t)
	policy := SchedulePolicy{
		Cadence:  config.CadenceWeekly,
		Weekday:  time.Monday,
		Hour:     8,
		Minute:   50,
		Location: loc,
		CronExpr: "not a cron line",
	}

	now := time.Date(2025, 8, 25, 8, 0, 0, 0, loc)
	want := time.Date(2025, 8, 25, 8, 50, 0, 0, loc)
	if got := policy.NextRun(now); !got.Equal(want) {
		t.Errorf("NextRun with bad cron = %v, want weekday fallback %v", got, want)
	}
}

func TestNextRunStrictlyInFuture(t *testing.T) {
	loc := parisLocation(t)
	for _, cadence := range []config.Cadence{config.CadenceWeekly, config.CadenceDaily} {
		policy := SchedulePolicy{
			Cadence:  cadence,
			Weekday:  time.Monday,
			Hour:     8,
			Minute:   50,
			Location: loc,
		}
		now := time.Date(2025, 8, 25, 8, 50, 0, 0, loc)
		if got := policy.NextRun(now); !got.After(now) {
			t.Errorf("cadence %s: NextRun(%v) = %v is not strictly in the future", cadence, now, got)
		}
	}
}
