package cron

import "time"

// Next returns the first firing time strictly after `after`, matching each
// field in `after`'s own location. The Scheduler always passes UTC times
// and a ScheduleRecord has no time-zone field, so schedules fire on UTC
// boundaries; a schedule cannot declare another zone.
func (s Schedule) Next(after time.Time) time.Time {
	// Start at the next whole minute boundary — cron resolution is one
	// minute, so a candidate can never fire mid-minute.
	t := after.Truncate(time.Minute).Add(time.Minute)

	// Bounded search: at most ~4 years of minutes, far more than enough
	// to find any valid combination (or to prove pathological inputs
	// like Feb 30 never match, which this loop also safely terminates
	// against since the month/day bounds keep rolling forward).
	limit := t.Add(4 * 366 * 24 * time.Hour)
	for t.Before(limit) {
		if s.matchesTime(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (s Schedule) matchesTime(t time.Time) bool {
	if !matches(s.month, int(t.Month())) {
		return false
	}
	if !matches(s.hour, t.Hour()) {
		return false
	}
	if !matches(s.minute, t.Minute()) {
		return false
	}

	domSpecified := len(s.dayMonth) > 0
	dowSpecified := len(s.dayWeek) > 0
	domMatch := matches(s.dayMonth, t.Day())
	dowMatch := matches(s.dayWeek, int(t.Weekday()))

	// POSIX cron semantics: when both day-of-month and day-of-week are
	// restricted (neither is "*"), a match on either is sufficient.
	switch {
	case domSpecified && dowSpecified:
		return domMatch || dowMatch
	default:
		return domMatch && dowMatch
	}
}
