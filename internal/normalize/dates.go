package normalize

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp formats seen across the CSV extracts and FHIR bundle periods.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a staging timestamp string. Unlike ParseDate it
// returns an error: the pipeline treats an unparseable encounter timestamp
// as fatal.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// ParseDate attempts to parse a date string in common formats.
// Returns nil if the input is empty or unparseable.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// BirthYear reduces a FHIR birthDate (full date, year-month, or bare year)
// to its year component. Returns nil when absent or unparseable.
func BirthYear(s *string) *int {
	if s == nil {
		return nil
	}
	t := ParseDate(*s)
	if t == nil {
		return nil
	}
	y := t.Year()
	return &y
}

// DateKey truncates a timestamp to its UTC calendar date, so the same
// instant maps to the same dim_time row regardless of source offset.
func DateKey(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ISOWeekday returns the day of week with Monday=0 .. Sunday=6.
func ISOWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
