package util

import "time"

// CalculateActualDate returns the actual date for a target day in a given month,
// handling months with fewer days (e.g., day 31 in February returns Feb 28/29)
func CalculateActualDate(year int, month time.Month, targetDay int) time.Time {
	// time.Date normalizes month overflow, so month 13 is January of the next year
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	actualDay := targetDay
	if actualDay > lastDay {
		actualDay = lastDay
	}

	return time.Date(year, month, actualDay, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped adds n calendar months to t, keeping the original day of month
// where possible and clamping to the last day otherwise. Jan 31 + 1 is Feb 28 (or 29),
// Jan 31 + 2 is Mar 31. The result is a UTC date.
func AddMonthsClamped(t time.Time, n int) time.Time {
	t = DateOnly(t)
	totalMonths := int(t.Month()) - 1 + n
	year := t.Year() + totalMonths/12
	month := totalMonths % 12
	if month < 0 {
		month += 12
		year--
	}
	return CalculateActualDate(year, time.Month(month+1), t.Day())
}

// FullMonthsBetween returns how many whole calendar months fit between from and to,
// using the same clamping rules as AddMonthsClamped. Returns 0 when to is not after from.
func FullMonthsBetween(from, to time.Time) int {
	from, to = DateOnly(from), DateOnly(to)
	if !to.After(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	for months > 0 && AddMonthsClamped(from, months).After(to) {
		months--
	}
	return months
}
