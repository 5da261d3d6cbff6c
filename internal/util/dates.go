package util

import "time"

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC date
func Today() time.Time {
	return DateOnly(time.Now().UTC())
}

// DaysBetween returns the number of calendar days from `from` to `to`.
// Negative when to is before from.
func DaysBetween(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)).Hours() / 24)
}

// AddWeeks adds n blocks of 7 days
func AddWeeks(t time.Time, n int) time.Time {
	return DateOnly(t).AddDate(0, 0, 7*n)
}

// FormatDate formats t as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD string into a UTC date
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
