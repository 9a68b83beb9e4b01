// Package calview coordinates a paged calendar between a display surface,
// the page index and the event resolver.
//
// All state lives behind one mutex that doubles as the resolver's dispatch
// thread. The coordinator never calls into the Surface or a listener while it
// holds that mutex, so a surface may call back into the coordinator from any
// Surface method.
package calview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"pagecal/internal/caldate"
	"pagecal/internal/events"
	"pagecal/internal/grid"
	appLog "pagecal/internal/log"
	"pagecal/internal/page"
)

var (
	ErrSelectionDisabled = errors.New("calview: selection is disabled")
	ErrDateNotSelectable = errors.New("calview: date is not selectable")
	ErrPageOutOfRange    = errors.New("calview: date outside the configured pages")
	ErrCellUnbound       = errors.New("calview: cell is not bound")
)

// Surface is the display that owns scrolling and cell recycling.
type Surface interface {
	// Reload rebinds every visible page.
	Reload()
	ScrollToPage(index int, animate bool)
	// VisiblePage reports the page currently in view, if any.
	VisiblePage() (int, bool)
	// RedrawVisible re-renders visible cells without rebinding them.
	RedrawVisible()
	// CellChanged reports that an async resolution updated c's days.
	CellChanged(c *Cell)
}

// MonthListener observes selections on a month calendar. marked reports
// whether the selected day carries an event.
type MonthListener interface {
	MonthSelectionChanged(date civil.Date, index int, marked bool)
}

// WeekListener observes selections on a week calendar.
type WeekListener interface {
	WeekSelectionChanged(date civil.Date, index int, marked bool)
}

// Options configure a Coordinator.
type Options struct {
	StartDate civil.Date
	Calendar  caldate.Config
	// Rows is the number of week rows on a month page; zero means six.
	Rows                int
	AllowsSelection     bool
	AllowsCaching       bool
	InvalidatePastDates bool
	SaturdayIsWeekend   bool
	Coalesce            bool
	Source              events.Source
	Logger              *appLog.Logger
	// Now and Location define "today". Defaults are time.Now and time.Local.
	Now      func() time.Time
	Location *time.Location
}

type notifyFunc func(date civil.Date, index int, marked bool)

type Coordinator struct {
	mu       sync.Mutex
	indexer  page.Indexer
	pages    int
	endDate  civil.Date
	grid     grid.Options
	selOK    bool
	selected *civil.Date
	cells    map[*Cell]struct{}
	changed  []*Cell

	surface  Surface
	notify   notifyFunc
	resolver *events.Resolver
	log      *appLog.Logger
	now      func() time.Time
	loc      *time.Location
}

// NewMonth builds a month calendar of months pages starting at
// opts.StartDate.
func NewMonth(opts Options, months int, l MonthListener) (*Coordinator, error) {
	var fn notifyFunc
	if l != nil {
		fn = l.MonthSelectionChanged
	}
	return newCoordinator(page.Month, opts, func(x page.Indexer) int { return months }, fn)
}

// NewMonthUntil builds a month calendar spanning opts.StartDate to end.
func NewMonthUntil(opts Options, end civil.Date, l MonthListener) (*Coordinator, error) {
	if err := caldate.Check(end); err != nil {
		return nil, fmt.Errorf("calview: end date: %w", err)
	}
	var fn notifyFunc
	if l != nil {
		fn = l.MonthSelectionChanged
	}
	return newCoordinator(page.Month, opts, func(x page.Indexer) int { return x.PagesUntil(end) }, fn)
}

// NewWeek builds a week calendar of weeks pages starting at opts.StartDate.
func NewWeek(opts Options, weeks int, l WeekListener) (*Coordinator, error) {
	var fn notifyFunc
	if l != nil {
		fn = l.WeekSelectionChanged
	}
	return newCoordinator(page.Week, opts, func(x page.Indexer) int { return weeks }, fn)
}

// NewWeekUntil builds a week calendar spanning opts.StartDate to end.
func NewWeekUntil(opts Options, end civil.Date, l WeekListener) (*Coordinator, error) {
	if err := caldate.Check(end); err != nil {
		return nil, fmt.Errorf("calview: end date: %w", err)
	}
	var fn notifyFunc
	if l != nil {
		fn = l.WeekSelectionChanged
	}
	return newCoordinator(page.Week, opts, func(x page.Indexer) int { return x.PagesUntil(end) }, fn)
}

func newCoordinator(kind page.Kind, opts Options, count func(page.Indexer) int, notify notifyFunc) (*Coordinator, error) {
	x, err := page.NewIndexer(kind, opts.StartDate, opts.Calendar)
	if err != nil {
		return nil, fmt.Errorf("calview: %w", err)
	}
	pages := count(x)
	if pages < 0 {
		pages = 0
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	c := &Coordinator{
		indexer: x,
		pages:   pages,
		endDate: x.EndDate(pages),
		grid: grid.Options{
			Rows:                opts.Rows,
			InvalidatePastDates: opts.InvalidatePastDates,
			SaturdayIsWeekend:   opts.SaturdayIsWeekend,
			Calendar:            opts.Calendar,
		},
		selOK:   opts.AllowsSelection,
		cells:   map[*Cell]struct{}{},
		surface: nopSurface{},
		notify:  notify,
		log:     opts.Logger.With("kind", kind),
		now:     now,
		loc:     loc,
	}
	c.resolver = events.NewResolver(events.ResolverOptions{
		Cache:    events.NewCache(opts.AllowsCaching),
		Source:   opts.Source,
		Dispatch: c.dispatch,
		Logger:   c.log,
		Coalesce: opts.Coalesce,
	})
	c.log.Info("calendar ready", "start", x.StartDate, "pages", pages, "end", c.endDate)
	return c, nil
}

// dispatch serializes async completions with every other mutation and then
// tells the surface which cells changed.
func (c *Coordinator) dispatch(fn func()) {
	c.mu.Lock()
	fn()
	changed := c.changed
	c.changed = nil
	surface := c.surface
	c.mu.Unlock()

	for _, cell := range changed {
		surface.CellChanged(cell)
	}
}

// noteChanged runs with c.mu held.
func (c *Coordinator) noteChanged(cell *Cell) {
	if _, ok := c.cells[cell]; ok {
		c.changed = append(c.changed, cell)
	}
}

// Attach installs the display surface. A nil surface detaches.
func (c *Coordinator) Attach(s Surface) {
	if s == nil {
		s = nopSurface{}
	}
	c.mu.Lock()
	c.surface = s
	c.mu.Unlock()
}

func (c *Coordinator) Kind() page.Kind { return c.indexer.Kind }

func (c *Coordinator) NumberOfPages() int { return c.pages }

func (c *Coordinator) StartDate() civil.Date { return c.indexer.StartDate }

// EndDate is the exclusive end of the configured span.
func (c *Coordinator) EndDate() civil.Date { return c.endDate }

func (c *Coordinator) Calendar() caldate.Config { return c.indexer.Calendar }

// Today is the current calendar day in the configured location.
func (c *Coordinator) Today() civil.Date { return caldate.Of(c.now().In(c.loc)) }

// Spec returns the page at index.
func (c *Coordinator) Spec(index int) (page.Spec, error) {
	if index < 0 || index >= c.pages {
		return page.Spec{}, fmt.Errorf("%w: %d not in [0,%d)", page.ErrIndexOutOfRange, index, c.pages)
	}
	return c.indexer.SpecAt(index), nil
}

// IndexOf returns the page containing d, or false when d is outside the
// configured pages.
func (c *Coordinator) IndexOf(d civil.Date) (int, bool) {
	if !d.IsValid() {
		return 0, false
	}
	i := c.indexer.IndexOf(d)
	return i, i >= 0 && i < c.pages
}

// Bind points cell at the page at index and starts event resolution. A cell
// reused for another page loses its old days first; a late result for the old
// page is never applied to it.
func (c *Coordinator) Bind(cell *Cell, index int) (page.Spec, events.Outcome, error) {
	spec, err := c.Spec(index)
	if err != nil {
		return page.Spec{}, events.NoSource, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cell.bind(spec)
	c.cells[cell] = struct{}{}
	out := c.resolver.Resolve(spec, boundCell{coord: c, cell: cell})
	// The caller renders after Bind; synchronous applies need no callback.
	c.changed = nil
	c.log.Debug("cell bound", "index", index, "page_id", spec.Identity(), "events", out)
	return spec, out, nil
}

// Unbind releases cell. Pending resolutions for its old page are cached but
// not applied.
func (c *Coordinator) Unbind(cell *Cell) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cells, cell)
	cell.unbind()
}

// Render computes the grid for a bound cell.
func (c *Coordinator) Render(cell *Cell) (grid.Grid, error) {
	spec, ok := cell.Spec()
	if !ok {
		return grid.Grid{}, ErrCellUnbound
	}
	today := c.Today()

	c.mu.Lock()
	in := grid.Input{
		Spec:    spec,
		Today:   today,
		Minimum: &c.indexer.StartDate,
		Maximum: &c.endDate,
		Events:  cell.Events(),
	}
	if c.selOK && c.selected != nil {
		sel := *c.selected
		in.Selected = &sel
	}
	opts := c.grid
	c.mu.Unlock()

	return grid.Compute(in, opts)
}

// WeekdayTitles is the header row for the configured first weekday.
func (c *Coordinator) WeekdayTitles(symbols [caldate.DaysInWeek]string) []string {
	return grid.WeekdayTitles(symbols, c.indexer.Calendar.FirstWeekday)
}

// ScrollTo asks the surface to show the page containing d.
func (c *Coordinator) ScrollTo(d civil.Date, animate bool) error {
	i, ok := c.IndexOf(d)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageOutOfRange, d)
	}
	c.currentSurface().ScrollToPage(i, animate)
	return nil
}

// RefreshLayout reloads the surface and returns to the page that was in view
// without animating.
func (c *Coordinator) RefreshLayout() {
	s := c.currentSurface()
	vis, ok := s.VisiblePage()
	s.Reload()
	if ok {
		s.ScrollToPage(vis, false)
	}
}

func (c *Coordinator) AllowsCaching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolver.Cache().Enabled()
}

// SetAllowsCaching toggles the event cache. Entries survive a disable and are
// served again once re-enabled.
func (c *Coordinator) SetAllowsCaching(v bool) {
	c.mu.Lock()
	c.resolver.Cache().SetEnabled(v)
	c.mu.Unlock()
	c.log.Info("event caching changed", "enabled", v)
}

// ClearCache drops every cached day set.
func (c *Coordinator) ClearCache() {
	c.mu.Lock()
	n := c.resolver.Cache().Len()
	c.resolver.Cache().Clear()
	c.mu.Unlock()
	c.log.Info("event cache cleared", "entries", n)
}

// SetSource installs a new event source, clears the cache and reloads.
func (c *Coordinator) SetSource(src events.Source) {
	c.mu.Lock()
	c.resolver.SetSource(src)
	c.mu.Unlock()
	c.currentSurface().Reload()
}

// Refresh clears the cache and reloads visible pages so they resolve again.
func (c *Coordinator) Refresh() {
	c.ClearCache()
	c.currentSurface().Reload()
}

// CacheState reports the cache state of the page at index.
func (c *Coordinator) CacheState(index int) events.EntryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolver.Cache().State(c.indexer.SpecAt(index).Identity())
}

// Wait blocks until every started fetch has been applied or dropped.
func (c *Coordinator) Wait() { c.resolver.Wait() }

// Close cancels outstanding fetches. It must not be called from a Surface
// method.
func (c *Coordinator) Close() {
	c.resolver.Close()
	c.log.Info("calendar closed")
}

func (c *Coordinator) currentSurface() Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

type nopSurface struct{}

func (nopSurface) Reload()                  {}
func (nopSurface) ScrollToPage(int, bool)   {}
func (nopSurface) VisiblePage() (int, bool) { return 0, false }
func (nopSurface) RedrawVisible()           {}
func (nopSurface) CellChanged(*Cell)        {}
