package utils

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the ISO date layout used by the command line tools and fixtures.
const DateLayout = "2006-01-02"

// ParseDate converts YYYY-MM-DD to a UTC midnight time.Time.
func ParseDate(strDate string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseDate: %w", err)
	}
	return t, nil
}

// Days returns the number of calendar days between two dates as a float.
//
// Dates are normalized to their calendar day first so intraday timestamps
// (feed ticks, user edits) do not leak fractional days into a window.
func Days(start, end time.Time) float64 {
	return math.Round(DateOnly(end).Sub(DateOnly(start)).Hours() / 24)
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
