package utils

import (
	"fmt"
	"time"
)

// MinutesPerDay is the length of the circular minute-of-day axis.
const MinutesPerDay = 24 * 60

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// MinuteOfDay returns minutes after local midnight for t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// CircularMinuteDistance returns the shortest distance between two minute-of-day
// values, wrapping at midnight.
func CircularMinuteDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	d %= MinutesPerDay
	if d > MinutesPerDay/2 {
		d = MinutesPerDay - d
	}
	return d
}

// MinutesAfter returns how many minutes past from the clock reaches to, wrapping
// at midnight.
func MinutesAfter(from, to int) int {
	d := (to - from) % MinutesPerDay
	if d < 0 {
		d += MinutesPerDay
	}
	return d
}

// FormatMinuteOfDay renders a minute-of-day value as HH:MM.
func FormatMinuteOfDay(m int) string {
	m = ((m % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// DayKey returns a YYYY-MM-DD key for t in its own location.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
