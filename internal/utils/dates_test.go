package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 3, 15, 18, 45, 0, 0, time.UTC)
	assert.Equal(t, date(2024, 3, 15), Day(in))
}

func TestDateUnixRoundTrip(t *testing.T) {
	d := date(2023, 12, 31)
	assert.Equal(t, d, UnixToDate(DateToUnix(d)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 29), d)

	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)
}

func TestMonthBoundaries(t *testing.T) {
	assert.Equal(t, date(2024, 2, 1), MonthStart(date(2024, 2, 17)))
	assert.Equal(t, date(2024, 2, 29), MonthEnd(date(2024, 2, 17)))
	assert.Equal(t, date(2023, 12, 31), MonthEnd(date(2023, 12, 1)))
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name     string
		from     time.Time
		months   int
		expected time.Time
	}{
		{"monthly", date(2024, 1, 15), 1, date(2024, 2, 15)},
		{"clamps to leap february", date(2024, 1, 31), 1, date(2024, 2, 29)},
		{"quarterly across year", date(2023, 11, 30), 3, date(2024, 2, 29)},
		{"yearly", date(2023, 5, 10), 12, date(2024, 5, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AddMonths(tt.from, tt.months))
		})
	}
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 0, MonthsBetween(date(2024, 1, 15), date(2024, 2, 14)))
	assert.Equal(t, 1, MonthsBetween(date(2024, 1, 15), date(2024, 2, 15)))
	assert.Equal(t, 12, MonthsBetween(date(2023, 3, 1), date(2024, 3, 1)))
	assert.Equal(t, 1, MonthsBetween(date(2024, 1, 31), date(2024, 2, 29)))
	assert.Equal(t, 0, MonthsBetween(date(2024, 5, 1), date(2024, 1, 1)))
}

func TestSameMonth(t *testing.T) {
	assert.True(t, SameMonth(date(2024, 6, 1), date(2024, 6, 30)))
	assert.False(t, SameMonth(date(2024, 6, 30), date(2024, 7, 1)))
}
