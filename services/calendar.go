package services

import (
	"math"
	"time"
)

// Day normalizes t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC calendar date.
func Date(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

// AddYears shifts a date by whole years keeping month and day. A Feb 29 that
// lands in a non-leap year clamps to Feb 28 instead of rolling into March.
func AddYears(t time.Time, years int) time.Time {
	y, m, d := t.Date()
	target := y + years
	if last := daysIn(m, target); d > last {
		d = last
	}
	return time.Date(target, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween returns b - a in whole days.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Day(b).Sub(Day(a)).Hours() / 24))
}

// AbsDays returns |a - b| in whole days.
func AbsDays(a, b time.Time) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// WeekdayOrder lists weekdays Monday first, the order used in reports.
var WeekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}
