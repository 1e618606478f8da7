package application

import (
	"time"

	presence "netpresence/internal/presence/domain"
)

// DayRange is an inclusive range of calendar days in a location.
type DayRange struct {
	Start time.Time
	End   time.Time
}

// NewDayRange builds a range from two dates, truncated to midnight in loc.
func NewDayRange(start, end time.Time, loc *time.Location) (DayRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	if start.IsZero() || end.IsZero() {
		return DayRange{}, presence.ErrInvalidRange
	}
	r := DayRange{Start: startOfDay(start, loc), End: startOfDay(end, loc)}
	if r.End.Before(r.Start) {
		return DayRange{}, presence.ErrInvalidRange
	}
	return r, nil
}

// LastNDays returns the n calendar days ending with the day of now.
func LastNDays(now time.Time, n int, loc *time.Location) (DayRange, error) {
	if n <= 0 {
		return DayRange{}, presence.ErrInvalidRange
	}
	if loc == nil {
		loc = time.UTC
	}
	end := startOfDay(now, loc)
	return DayRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}, nil
}

// Days lists each day start in the range.
func (r DayRange) Days() []time.Time {
	var days []time.Time
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

// Len returns the number of days in the range.
func (r DayRange) Len() int {
	return len(r.Days())
}

// Since is the first instant of the range.
func (r DayRange) Since() time.Time { return r.Start }

// Until is the first instant after the range.
func (r DayRange) Until() time.Time { return r.End.AddDate(0, 0, 1) }

// DayKey formats a day as YYYY-MM-DD.
func DayKey(day time.Time) string {
	return day.Format("2006-01-02")
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
