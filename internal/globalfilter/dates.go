package globalfilter

import "time"

// Clock provides the current time
type Clock func() time.Time

// SystemClock returns time.Now in UTC
func SystemClock() time.Time { return time.Now().UTC() }

// StartOfDay returns 00:00:00.000 UTC of t's day
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999 UTC of t's day
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Millisecond)
}

// DaysBefore returns the start of the day n days before t
func DaysBefore(t time.Time, n int) time.Time {
	return StartOfDay(t).AddDate(0, 0, -n)
}
