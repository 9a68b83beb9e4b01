package calview

import (
	"fmt"

	"cloud.google.com/go/civil"

	"pagecal/internal/caldate"
	"pagecal/internal/grid"
	"pagecal/internal/page"
)

// SelectedDate returns the selection. It reports none while selection is
// disabled.
func (c *Coordinator) SelectedDate() (civil.Date, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selOK || c.selected == nil {
		return civil.Date{}, false
	}
	return *c.selected, true
}

func (c *Coordinator) AllowsSelection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selOK
}

func (c *Coordinator) SetAllowsSelection(v bool) {
	c.mu.Lock()
	c.selOK = v
	c.mu.Unlock()
	c.currentSurface().RedrawVisible()
}

// SetSelectedDate selects d. A date on the visible page is applied and the
// visible cells are redrawn. A date on any other page scrolls there with
// animation first and is applied after the scroll was requested. Selecting
// the current selection again does nothing.
func (c *Coordinator) SetSelectedDate(d civil.Date) error {
	if err := caldate.Check(d); err != nil {
		return fmt.Errorf("calview: %w", err)
	}
	return c.selectDate(d)
}

// ClearSelection drops the selection.
func (c *Coordinator) ClearSelection() {
	c.mu.Lock()
	had := c.selected != nil
	c.selected = nil
	c.mu.Unlock()
	if had {
		c.currentSurface().RedrawVisible()
	}
}

// DidSelect handles a user pick of d on the surface. Past days are refused
// while past dates are invalidated. Week pages also refuse days on or after
// the end of the configured span.
func (c *Coordinator) DidSelect(d civil.Date) error {
	if err := caldate.Check(d); err != nil {
		return fmt.Errorf("calview: %w", err)
	}
	today := c.Today()
	if c.grid.InvalidatePastDates && d.Before(today) {
		return fmt.Errorf("%w: %s is in the past", ErrDateNotSelectable, d)
	}
	if c.indexer.Kind == page.Week && !d.Before(c.endDate) {
		return fmt.Errorf("%w: %s is past the last page", ErrDateNotSelectable, d)
	}
	return c.selectDate(d)
}

// Tap maps a grid position on cell to a date and selects it. For month pages
// position is the row-major block; for week pages it is the column.
func (c *Coordinator) Tap(cell *Cell, position int) (civil.Date, error) {
	spec, ok := cell.Spec()
	if !ok {
		return civil.Date{}, ErrCellUnbound
	}
	var d civil.Date
	switch spec.Kind {
	case page.Week:
		if position < 0 || position >= caldate.DaysInWeek {
			return civil.Date{}, fmt.Errorf("%w: column %d", ErrDateNotSelectable, position)
		}
		d = grid.WeekDateAt(spec, position)
	default:
		rows := c.grid.Rows
		if rows <= 0 {
			rows = grid.DefaultRows
		}
		if position < 0 || position >= rows*caldate.DaysInWeek {
			return civil.Date{}, fmt.Errorf("%w: block %d", ErrDateNotSelectable, position)
		}
		d = grid.MonthDateAt(spec, c.indexer.Calendar, position)
	}
	return d, c.DidSelect(d)
}

func (c *Coordinator) selectDate(d civil.Date) error {
	c.mu.Lock()
	if !c.selOK {
		c.mu.Unlock()
		return ErrSelectionDisabled
	}
	c.mu.Unlock()

	index, ok := c.IndexOf(d)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageOutOfRange, d)
	}

	c.mu.Lock()
	if c.selected != nil && *c.selected == d {
		c.mu.Unlock()
		return nil
	}
	surface := c.surface
	c.mu.Unlock()

	if vis, ok := surface.VisiblePage(); !ok || vis != index {
		surface.ScrollToPage(index, true)
	}

	c.mu.Lock()
	c.selected = &d
	marked := c.markedLocked(d, index)
	notify := c.notify
	c.mu.Unlock()

	c.log.Debug("date selected", "date", d, "index", index, "marked", marked)
	surface.RedrawVisible()
	if notify != nil {
		notify(d, index, marked)
	}
	return nil
}

// markedLocked reports whether d carries an event, from the cache or from a
// bound cell showing d's page.
func (c *Coordinator) markedLocked(d civil.Date, index int) bool {
	id := c.indexer.SpecAt(index).Identity()
	if days, ok := c.resolver.Cache().Lookup(id); ok {
		return days.Contains(d.Day)
	}
	for cell := range c.cells {
		if cell.Token() == id {
			return cell.Events().Contains(d.Day)
		}
	}
	return false
}
