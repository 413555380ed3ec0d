package services

import (
	"testing"
	"time"

	"agriviewer-chat-api/pkg/models"

	"github.com/stretchr/testify/assert"
)

func TestParseDateRange(t *testing.T) {
	now := time.Date(2024, 6, 30, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		input string
		start string
		end   string
	}{
		{"last 30 days", "2024-06-01", "2024-06-30"},
		{"past 2 weeks", "2024-06-17", "2024-06-30"},
		{"last week", "2024-06-24", "2024-06-30"},
		{"previous 3 months", "2024-03-31", "2024-06-30"},
		{"last year", "2023-07-01", "2024-06-30"},
		{"2024-05-01 to 2024-05-31", "2024-05-01", "2024-05-31"},
		{"2024-05-31 - 2024-05-01", "2024-05-01", "2024-05-31"},
		{"2024-05-15", "2024-05-15", "2024-05-15"},
		{"since the spring", "2024-06-01", "2024-06-30"},
		{"", "2024-06-01", "2024-06-30"},
		{"2020-01-01 to 2024-06-30", "2023-07-01", "2024-06-30"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			start, end := ParseDateRange(tt.input, now)
			assert.Equal(t, tt.start, start.Format(models.DateLayout))
			assert.Equal(t, tt.end, end.Format(models.DateLayout))
		})
	}
}

func TestParseDateRangeHugeCounts(t *testing.T) {
	now := time.Date(2024, 6, 30, 15, 4, 5, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	for _, input := range []string{
		"last 9223372036854775807 days",
		"last 9223372036854775807 years",
		"last 1317624576693539402 weeks",
		"past 99999999999 months",
	} {
		t.Run(input, func(t *testing.T) {
			start, gotEnd := ParseDateRange(input, now)
			assert.False(t, start.After(gotEnd))
			assert.Equal(t, end, gotEnd)
			assert.Equal(t, maxRangeDays, DaysBetween(start, gotEnd))
		})
	}
}

func TestClampRangeOrdersBounds(t *testing.T) {
	a := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	start, end := clampRange(a, b)
	assert.Equal(t, b, start)
	assert.Equal(t, a, end)
}

func TestExtendDateRange(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-05-02 to 2024-06-30", ExtendDateRange("last 30 days", now))
	assert.Equal(t, "2024-03-31 to 2024-05-31", ExtendDateRange("2024-05-01 to 2024-05-31", now))
}

func TestDaysBetween(t *testing.T) {
	d := time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(d, d))
	assert.Equal(t, 4, DaysBetween(d, d.AddDate(0, 0, 3)))
}
