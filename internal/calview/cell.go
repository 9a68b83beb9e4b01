package calview

import (
	"sync"

	"pagecal/internal/events"
	"pagecal/internal/page"
)

// Cell is a reusable display slot. A surface owns a small pool of cells and
// hands one to Bind whenever a page becomes visible. The cell remembers only
// which page it shows (its token) and a transient copy of that page's days.
type Cell struct {
	mu     sync.Mutex
	bound  bool
	token  page.Identity
	spec   page.Spec
	events events.Days
}

func NewCell() *Cell { return &Cell{} }

// Token is the identity of the page the cell currently shows, or "" when
// unbound.
func (c *Cell) Token() page.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Spec returns the bound page.
func (c *Cell) Spec() (page.Spec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec, c.bound
}

// Events returns the cell's current copy of the page's marked days.
func (c *Cell) Events() events.Days {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *Cell) SetEvents(d events.Days) {
	c.mu.Lock()
	c.events = d
	c.mu.Unlock()
}

// bind points the cell at spec. Reuse for a different page drops the old
// days before resolution starts.
func (c *Cell) bind(spec page.Spec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := spec.Identity()
	if !c.bound || c.token != id {
		c.events = 0
	}
	c.bound = true
	c.token = id
	c.spec = spec
}

func (c *Cell) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = false
	c.token = ""
	c.spec = page.Spec{}
	c.events = 0
}

// boundCell routes async applies through the coordinator so the surface can
// be told which cell changed.
type boundCell struct {
	coord *Coordinator
	cell  *Cell
}

func (b boundCell) Token() page.Identity { return b.cell.Token() }

func (b boundCell) SetEvents(d events.Days) {
	b.cell.SetEvents(d)
	b.coord.noteChanged(b.cell)
}
