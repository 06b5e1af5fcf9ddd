package util

import (
	"fmt"
	"time"
)

// YMD is the brokerage's compact date layout.
const YMD = "20060102"

// ParseYMD parses a yyyymmdd string as midnight in loc.
func ParseYMD(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(YMD, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func FormatYMD(t time.Time) string {
	return t.Format(YMD)
}

// DateOf truncates t to midnight in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SameDay compares calendar dates in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween counts calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a = DateOf(a, time.UTC)
	b = DateOf(b, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
