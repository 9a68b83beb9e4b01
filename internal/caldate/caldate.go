// Package caldate implements day-granularity calendar arithmetic.
//
// All values are civil.Date, so equality is calendar-day equality and no
// time-of-day component can drift comparisons. Functions are pure for a given
// Config. Dates entering the package from outside (parsed strings, hand-built
// values) are checked with Check; arithmetic on valid dates never fails.
package caldate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const DaysInWeek = 7

// ErrInvalidDate reports a date that does not exist on the calendar
// (e.g. 2023-02-29) or could not be parsed.
var ErrInvalidDate = errors.New("caldate: invalid date")

// epoch anchors DayIndex.
var epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

// Config carries the calendar conventions the arithmetic depends on.
type Config struct {
	FirstWeekday time.Weekday
}

// ParseWeekStart maps "monday"/"sunday" (config values) to a weekday.
func ParseWeekStart(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday, nil
	case "monday", "":
		return time.Monday, nil
	default:
		return time.Monday, fmt.Errorf("caldate: unknown week start %q", s)
	}
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Of truncates t to its calendar day in t's own location.
func Of(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// Check returns ErrInvalidDate for the first date that is not a real day.
func Check(dates ...civil.Date) error {
	for _, d := range dates {
		if !d.IsValid() {
			return fmt.Errorf("%w: %d-%02d-%02d", ErrInvalidDate, d.Year, int(d.Month), d.Day)
		}
	}
	return nil
}

// DayIndex is the canonical integer for a day, used for ordering.
func DayIndex(d civil.Date) int {
	return d.DaysSince(epoch)
}

// Compare returns -1, 0 or +1 ordering a and b by calendar day.
func Compare(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func SameDay(a, b civil.Date) bool { return a == b }

func SameMonth(a, b civil.Date) bool { return a.Year == b.Year && a.Month == b.Month }

// Weekday is the absolute weekday of d.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// WeekdayIndex is d's column, 0-based from the configured first weekday.
func (c Config) WeekdayIndex(d civil.Date) int {
	return (int(Weekday(d)) - int(c.FirstWeekday) + DaysInWeek) % DaysInWeek
}

// StartOfWeek returns the date at or before d that falls on FirstWeekday.
func (c Config) StartOfWeek(d civil.Date) civil.Date {
	return d.AddDays(-c.WeekdayIndex(d))
}

func StartOfMonth(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// EndOfMonth returns the last day (inclusive) of d's month.
func EndOfMonth(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: DaysInMonth(d)}
}

func DaysInMonth(d civil.Date) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func DayOfMonth(d civil.Date) int { return d.Day }

func AddDays(d civil.Date, n int) civil.Date { return d.AddDays(n) }

// AddMonths offsets d by n months, clamping the day to the target month's
// length: Jan 31 + 1 month is Feb 28/29, never a day in March.
func AddMonths(d civil.Date, n int) civil.Date {
	total := int(d.Month) - 1 + n
	year := d.Year + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)
	first := civil.Date{Year: year, Month: month, Day: 1}
	day := d.Day
	if last := DaysInMonth(first); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// DaysBetween is the signed number of days from a to b.
func DaysBetween(a, b civil.Date) int {
	return b.DaysSince(a)
}

// MonthsBetween is the signed number of whole months from a to b, consistent
// with AddMonths: AddMonths(a, MonthsBetween(a, b)) never passes b.
func MonthsBetween(a, b civil.Date) int {
	m := (b.Year-a.Year)*12 + int(b.Month) - int(a.Month)
	switch {
	case m > 0 && AddMonths(a, m).After(b):
		m--
	case m < 0 && AddMonths(a, m).Before(b):
		m++
	}
	return m
}

// WeeksBetween is the signed number of whole weeks from a to b.
func WeeksBetween(a, b civil.Date) int {
	return DaysBetween(a, b) / DaysInWeek
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
