// Package cron parses POSIX five-field cron expressions and the
// comma-separated "HH:MM" shorthand into a common internal representation,
// and runs the scheduler loop that fires Schedules into new workflow
// executions. Implemented against the standard library only: no
// repository in the retrieved corpus imports a cron-expression library, so
// there is no pack-grounded third-party choice to adopt here.
package cron

import (
	"fmt"
	"strconv"
	"strings"
)

// Schedule is the parsed match-set representation of a cron expression —
// minute/hour/day-of-month/month/day-of-week fields, each a set of the
// values that fire. An empty set means "every value" (the field was `*`).
type Schedule struct {
	minute   map[int]struct{}
	hour     map[int]struct{}
	dayMonth map[int]struct{}
	month    map[int]struct{}
	dayWeek  map[int]struct{}
}

// Parse accepts either a POSIX five-field cron expression
// ("*/15 * * * *") or comma-separated "HH:MM" shorthand ("09:00,17:30")
// and returns the common internal Schedule.
func Parse(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron: empty expression")
	}
	if looksLikeClockList(expr) {
		return parseClockList(expr)
	}
	return parseFiveField(expr)
}

func looksLikeClockList(expr string) bool {
	for _, part := range strings.Split(expr, ",") {
		if !strings.Contains(part, ":") {
			return false
		}
	}
	return true
}

// parseClockList turns "09:00,17:30" into a Schedule firing at each
// listed minute of each listed hour, every day/month/weekday.
func parseClockList(expr string) (Schedule, error) {
	s := Schedule{
		minute:   map[int]struct{}{},
		hour:     map[int]struct{}{},
		dayMonth: map[int]struct{}{},
		month:    map[int]struct{}{},
		dayWeek:  map[int]struct{}{},
	}
	for _, part := range strings.Split(expr, ",") {
		hm := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(hm) != 2 {
			return Schedule{}, fmt.Errorf("cron: invalid HH:MM entry %q", part)
		}
		h, err := strconv.Atoi(hm[0])
		if err != nil || h < 0 || h > 23 {
			return Schedule{}, fmt.Errorf("cron: invalid hour in %q", part)
		}
		m, err := strconv.Atoi(hm[1])
		if err != nil || m < 0 || m > 59 {
			return Schedule{}, fmt.Errorf("cron: invalid minute in %q", part)
		}
		s.hour[h] = struct{}{}
		s.minute[m] = struct{}{}
	}
	return s, nil
}

var fieldBounds = [5][2]int{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week (0 = Sunday)
}

func parseFiveField(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expr)
	}

	sets := make([]map[int]struct{}, 5)
	for i, field := range fields {
		set, err := parseField(field, fieldBounds[i][0], fieldBounds[i][1])
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: field %d (%q): %w", i, field, err)
		}
		sets[i] = set
	}
	return Schedule{minute: sets[0], hour: sets[1], dayMonth: sets[2], month: sets[3], dayWeek: sets[4]}, nil
}

// parseField parses one cron field: "*", "*/n", "a-b", "a-b/n", or a
// comma-separated list of any of those. An empty returned map means
// "every value in [lo,hi]" (i.e. the field was a bare "*").
func parseField(field string, lo, hi int) (map[int]struct{}, error) {
	if field == "*" {
		return map[int]struct{}{}, nil
	}

	result := map[int]struct{}{}
	for _, part := range strings.Split(field, ",") {
		start, end, step, err := parsePart(part, lo, hi)
		if err != nil {
			return nil, err
		}
		for v := start; v <= end; v += step {
			result[v] = struct{}{}
		}
	}
	return result, nil
}

func parsePart(part string, lo, hi int) (start, end, step int, err error) {
	step = 1
	rangeAndStep := strings.SplitN(part, "/", 2)
	rangeExpr := rangeAndStep[0]
	if len(rangeAndStep) == 2 {
		step, err = strconv.Atoi(rangeAndStep[1])
		if err != nil || step <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid step %q", rangeAndStep[1])
		}
	}

	switch {
	case rangeExpr == "*":
		start, end = lo, hi
	case strings.Contains(rangeExpr, "-"):
		bounds := strings.SplitN(rangeExpr, "-", 2)
		start, err = strconv.Atoi(bounds[0])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range start %q", bounds[0])
		}
		end, err = strconv.Atoi(bounds[1])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range end %q", bounds[1])
		}
	default:
		v, convErr := strconv.Atoi(rangeExpr)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("invalid value %q", rangeExpr)
		}
		start, end = v, v
	}

	if start < lo || end > hi || start > end {
		return 0, 0, 0, fmt.Errorf("value out of range [%d,%d]", lo, hi)
	}
	return start, end, step, nil
}

func matches(set map[int]struct{}, v int) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[v]
	return ok
}
