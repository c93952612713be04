package scheduler

import (
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// ComputeNextRun derives the next timestamp at or after now matching the
// schedule's frequency, optional day rule, time of day, and timezone.
// The computation is deterministic: the same schedule and now always
// yield the same instant.
func ComputeNextRun(s *types.Schedule, now time.Time) (time.Time, error) {
	loc := time.UTC
	if s.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(s.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}

	hour, minute, err := parseTimeOfDay(s.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)

	switch s.Frequency {
	case types.FreqHourly:
		candidate := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 0, 0, loc)
		if candidate.Before(now) {
			candidate = candidate.Add(time.Hour)
		}
		return candidate, nil

	case types.FreqDaily:
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil

	case types.FreqWeekly:
		target := time.Sunday
		if s.DayOfWeek != nil {
			target = *s.DayOfWeek
		}
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		offset := (int(target) - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil

	case types.FreqMonthly:
		day := 1
		if s.DayOfMonth != nil {
			day = *s.DayOfMonth
		}
		candidate := monthlyCandidate(local.Year(), local.Month(), day, hour, minute, loc)
		if candidate.Before(now) {
			year, month := local.Year(), local.Month()+1
			candidate = monthlyCandidate(year, month, day, hour, minute, loc)
		}
		return candidate, nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule frequency %q", s.Frequency)
	}
}

// monthlyCandidate builds the run instant for a month, clamping the day
// to the month's length so "day 31" still fires in February.
func monthlyCandidate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	// Normalize month overflow first
	base := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lastDay := base.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}
	return time.Date(base.Year(), base.Month(), day, hour, minute, 0, 0, loc)
}

func parseTimeOfDay(value string) (hour, minute int, err error) {
	if value == "" {
		return 0, 0, fmt.Errorf("time_of_day is required")
	}
	t, parseErr := time.Parse("15:04", value)
	if parseErr != nil {
		return 0, 0, fmt.Errorf("invalid time_of_day %q: %w", value, parseErr)
	}
	return t.Hour(), t.Minute(), nil
}

// ValidateSchedule checks a schedule can produce run instants.
func ValidateSchedule(s *types.Schedule) error {
	if s == nil {
		return fmt.Errorf("schedule cannot be nil")
	}
	_, err := ComputeNextRun(s, time.Now())
	return err
}
