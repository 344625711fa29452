// Package dates is the single place where calendar dates are formatted,
// parsed and stepped. Dates travel through the rest of the code as
// "YYYY-MM-DD" strings in the user's local calendar.
//
// Parsed dates are anchored at midnight UTC. UTC has no DST transitions, so
// adding days never lands on the wrong calendar day, and the local/UTC rule
// only matters once: when a wall-clock instant is turned into a date string
// by FormatLocal or Today.
package dates

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the canonical date layout.
const Layout = "2006-01-02"

// ErrInvalidDate is returned for any string that is not a real YYYY-MM-DD day.
var ErrInvalidDate = errors.New("invalid date")

// FormatLocal returns the calendar date of t in t's own location.
// It never converts to UTC first: 23:30 on the 4th in UTC-5 stays the 4th.
func FormatLocal(t time.Time) string {
	return t.Format(Layout)
}

// Today returns the calendar date of now as seen from loc.
// A nil loc means time.Local.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return FormatLocal(now.In(loc))
}

// Parse parses a strict YYYY-MM-DD string. The month and day must exist.
func Parse(s string) (time.Time, error) {
	if len(s) != len(Layout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Validate reports whether s is a well-formed date.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// AddDays returns the date n days after s (n may be negative).
func AddDays(s string, n int) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(Layout), nil
}

// DaysAgo returns today minus n days.
func DaysAgo(today string, n int) (string, error) {
	return AddDays(today, -n)
}

// DaysBetween returns the number of days from a to b (negative when b < a).
func DaysBetween(a, b string) (int, error) {
	ta, err := Parse(a)
	if err != nil {
		return 0, err
	}
	tb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// Enumerate returns every date from start to end inclusive, ascending.
// It returns an empty slice when start is after end.
func Enumerate(start, end string) ([]string, error) {
	ts, err := Parse(start)
	if err != nil {
		return nil, err
	}
	te, err := Parse(end)
	if err != nil {
		return nil, err
	}
	if ts.After(te) {
		return []string{}, nil
	}

	out := make([]string, 0, int(te.Sub(ts).Hours()/24)+1)
	for d := ts; !d.After(te); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(Layout))
	}
	return out, nil
}

// StartOfYear returns January 1st of the year containing s.
func StartOfYear(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC).Format(Layout), nil
}

// Min returns the earlier of two valid date strings.
func Min(a, b string) string {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of two valid date strings.
func Max(a, b string) string {
	if a > b {
		return a
	}
	return b
}

// LoadLocation resolves an IANA zone name. "" and "Local" mean time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}
