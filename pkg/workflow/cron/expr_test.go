package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) Schedule {
	t.Helper()
	s, err := Parse(expr)
	require.NoError(t, err)
	return s
}

func TestParse_EveryMinute(t *testing.T) {
	s := mustParse(t, "* * * * *")
	after := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 31, 0, 0, time.UTC), next)
}

func TestParse_StepExpression(t *testing.T) {
	s := mustParse(t, "*/15 * * * *")
	after := time.Date(2026, 1, 1, 10, 1, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC), next)
}

func TestParse_SpecificHourAndMinute(t *testing.T) {
	s := mustParse(t, "30 9 * * *")
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC), next)
}

func TestParse_RollsOverToNextDayWhenHourPassed(t *testing.T) {
	s := mustParse(t, "0 9 * * *")
	after := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestParse_DayOfWeekRestriction(t *testing.T) {
	// Monday=1; fire at 09:00 every Monday.
	s := mustParse(t, "0 9 * * 1")
	// 2026-01-01 is a Thursday.
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.January, next.Month())
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
}

func TestParse_ClockListShorthand(t *testing.T) {
	s := mustParse(t, "09:00,17:30")
	after := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.Date(2026, 1, 1, 17, 30, 0, 0, time.UTC), next)

	afterSecond := next
	nextAfter := s.Next(afterSecond)
	assert.Equal(t, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), nextAfter)
}

func TestParse_RejectsWrongFieldCount(t *testing.T) {
	_, err := Parse("* * *")
	assert.Error(t, err)
}

func TestParse_RejectsOutOfRangeValue(t *testing.T) {
	_, err := Parse("99 * * * *")
	assert.Error(t, err)
}

func TestParse_RejectsEmptyExpression(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestParse_DayOfMonthOrDayOfWeekIsOR(t *testing.T) {
	// Fires on the 1st of the month OR on Mondays.
	s := mustParse(t, "0 0 1 * 1")
	// 2026-01-05 is a Monday, not the 1st.
	after := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), next)
}
