// Package timeutil provides calendar helpers shared across the project.
package timeutil

import "time"

// TrailingMonthsStart returns the start of a trailing window of whole
// calendar months ending at now.
func TrailingMonthsStart(now time.Time, months uint64) time.Time {
	return now.AddDate(0, -int(months), 0)
}

// WithinTrailingMonths reports whether date falls inside the trailing
// window. The boundary is inclusive: a date exactly months calendar months
// before now still counts.
func WithinTrailingMonths(date time.Time, months uint64, now time.Time) bool {
	return !date.Before(TrailingMonthsStart(now, months))
}
