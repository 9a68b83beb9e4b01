// Package grid computes the per-cell state of a month or week page.
//
// Compute is a pure function of its inputs; surfaces call it on every draw.
package grid

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"pagecal/internal/caldate"
	"pagecal/internal/events"
	"pagecal/internal/page"
)

const DefaultRows = 6

// Options are the configuration switches that affect classification.
type Options struct {
	// Rows is the fixed number of week rows on a month page.
	Rows                int
	InvalidatePastDates bool
	SaturdayIsWeekend   bool
	Calendar            caldate.Config
}

func (o Options) rows() int {
	if o.Rows <= 0 {
		return DefaultRows
	}
	return o.Rows
}

// Input is the viewer state for one page.
type Input struct {
	Spec     page.Spec
	Selected *civil.Date
	Today    civil.Date
	Minimum  *civil.Date
	Maximum  *civil.Date
	Events   events.Days
}

// Class is the text color classification of a cell.
type Class int

const (
	Normal Class = iota
	Weekend
	Today
	Selected
	Invalid
	OtherMonth
)

func (c Class) String() string {
	switch c {
	case Weekend:
		return "weekend"
	case Today:
		return "today"
	case Selected:
		return "selected"
	case Invalid:
		return "invalid"
	case OtherMonth:
		return "other-month"
	default:
		return "normal"
	}
}

// Marker is how an event dot is drawn.
type Marker int

const (
	NoMarker Marker = iota
	EventMarker
	SelectedEventMarker
)

func (m Marker) String() string {
	switch m {
	case EventMarker:
		return "event"
	case SelectedEventMarker:
		return "selected-event"
	default:
		return "none"
	}
}

// Cell is the derived state of one grid position.
type Cell struct {
	Date      civil.Date
	DayNumber int
	Row       int
	Column    int

	BelongsToReferenceMonth bool
	IsToday                 bool
	IsPast                  bool
	IsSelected              bool
	IsWeekend               bool
	IsValid                 bool
	HasEvent                bool
}

// Class applies other-month first, then invalid > selected > today >
// weekend > normal.
func (c Cell) Class() Class {
	switch {
	case !c.BelongsToReferenceMonth:
		return OtherMonth
	case !c.IsValid:
		return Invalid
	case c.IsSelected:
		return Selected
	case c.IsToday:
		return Today
	case c.IsWeekend:
		return Weekend
	default:
		return Normal
	}
}

func (c Cell) Marker() Marker {
	switch {
	case !c.HasEvent:
		return NoMarker
	case c.IsSelected:
		return SelectedEventMarker
	default:
		return EventMarker
	}
}

// Grid is a computed page, row-major.
type Grid struct {
	Spec    page.Spec
	Rows    int
	Columns int
	Cells   []Cell
}

// At returns the cell in row r, column c.
func (g Grid) At(r, c int) Cell { return g.Cells[r*g.Columns+c] }

// Compute classifies every cell of in.Spec. It fails on dates that are not
// real calendar days instead of guessing.
func Compute(in Input, opts Options) (Grid, error) {
	if err := checkInput(in); err != nil {
		return Grid{}, err
	}
	switch in.Spec.Kind {
	case page.Week:
		return computeWeek(in, opts), nil
	case page.Month:
		return computeMonth(in, opts), nil
	default:
		return Grid{}, fmt.Errorf("grid: unsupported page kind %s", in.Spec.Kind)
	}
}

func checkInput(in Input) error {
	dates := []civil.Date{in.Spec.ReferenceDate, in.Spec.RangeStart, in.Spec.RangeEnd, in.Today}
	for _, p := range []*civil.Date{in.Selected, in.Minimum, in.Maximum} {
		if p != nil {
			dates = append(dates, *p)
		}
	}
	if err := caldate.Check(dates...); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	return nil
}

func computeMonth(in Input, opts Options) Grid {
	rows := opts.rows()
	monthStart := caldate.StartOfMonth(in.Spec.ReferenceDate)
	lead := opts.Calendar.WeekdayIndex(monthStart)
	numDays := caldate.DaysInMonth(monthStart)
	todayInMonth := caldate.SameMonth(in.Today, monthStart)
	selectedInMonth := in.Selected != nil && caldate.SameMonth(*in.Selected, monthStart)

	g := Grid{Spec: in.Spec, Rows: rows, Columns: caldate.DaysInWeek}
	g.Cells = make([]Cell, 0, rows*caldate.DaysInWeek)
	for block := 0; block < rows*caldate.DaysInWeek; block++ {
		date := monthStart.AddDays(block - lead)
		belongs := block >= lead && block < lead+numDays
		c := Cell{
			Date:                    date,
			DayNumber:               date.Day,
			Row:                     block / caldate.DaysInWeek,
			Column:                  block % caldate.DaysInWeek,
			BelongsToReferenceMonth: belongs,
			IsWeekend:               isWeekend(date, opts),
		}
		if belongs {
			c.IsToday = date == in.Today
			c.IsPast = todayInMonth && c.DayNumber < in.Today.Day
			c.IsSelected = selectedInMonth && in.Selected.Day == c.DayNumber
			c.HasEvent = in.Events.Contains(c.DayNumber)
		}
		c.IsValid = !(opts.InvalidatePastDates && (!belongs || c.IsPast))
		g.Cells = append(g.Cells, c)
	}
	return g
}

func computeWeek(in Input, opts Options) Grid {
	g := Grid{Spec: in.Spec, Rows: 1, Columns: caldate.DaysInWeek}
	g.Cells = make([]Cell, 0, caldate.DaysInWeek)
	for col := 0; col < caldate.DaysInWeek; col++ {
		date := in.Spec.RangeStart.AddDays(col)
		c := Cell{
			Date:                    date,
			DayNumber:               date.Day,
			Column:                  col,
			BelongsToReferenceMonth: true,
			IsToday:                 date == in.Today,
			IsPast:                  date.Before(in.Today),
			IsSelected:              in.Selected != nil && *in.Selected == date,
			IsWeekend:               isWeekend(date, opts),
			HasEvent:                in.Events.Contains(date.Day),
		}
		c.IsValid = weekDateValid(date, in.Today, in.Maximum, opts)
		g.Cells = append(g.Cells, c)
	}
	return g
}

// weekDateValid excludes the maximum date itself.
func weekDateValid(date, today civil.Date, maximum *civil.Date, opts Options) bool {
	if opts.InvalidatePastDates && date.Before(today) {
		return false
	}
	if maximum != nil && !date.Before(*maximum) {
		return false
	}
	return true
}

func isWeekend(d civil.Date, opts Options) bool {
	switch caldate.Weekday(d) {
	case time.Sunday:
		return true
	case time.Saturday:
		return opts.SaturdayIsWeekend
	default:
		return false
	}
}
