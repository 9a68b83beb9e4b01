package grid

import (
	"time"

	"cloud.google.com/go/civil"

	"pagecal/internal/caldate"
	"pagecal/internal/page"
)

// MonthDateAt maps a month grid position (row-major block) to its date.
// Leading blocks land in the previous month, trailing ones in the next.
func MonthDateAt(spec page.Spec, cal caldate.Config, block int) civil.Date {
	monthStart := caldate.StartOfMonth(spec.ReferenceDate)
	return monthStart.AddDays(block - cal.WeekdayIndex(monthStart))
}

// WeekDateAt maps a week column to its date.
func WeekDateAt(spec page.Spec, column int) civil.Date {
	return spec.RangeStart.AddDays(column)
}

// VeryShortWeekdaySymbols is indexed by time.Weekday.
var VeryShortWeekdaySymbols = [caldate.DaysInWeek]string{"S", "M", "T", "W", "T", "F", "S"}

// WeekdayTitles rotates a Sunday-first symbol table so column 0 is first.
func WeekdayTitles(symbols [caldate.DaysInWeek]string, first time.Weekday) []string {
	out := make([]string, caldate.DaysInWeek)
	for i := range out {
		out[i] = symbols[(int(first)+i)%caldate.DaysInWeek]
	}
	return out
}
