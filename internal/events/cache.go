package events

import "pagecal/internal/page"

// EntryState is the lifecycle of one cache key.
type EntryState int

const (
	Absent EntryState = iota
	Pending
	Resolved
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	default:
		return "absent"
	}
}

// Cache maps page identities to resolved day sets. Entries are never
// evicted; only Clear removes them. Cache is not safe for concurrent use:
// the Resolver touches it only from its dispatch thread.
type Cache struct {
	enabled bool
	store   map[page.Identity]Days
	// inflight counts outstanding async requests per identity.
	inflight map[page.Identity]int
	// gen advances on every Clear; fetches started under an older
	// generation are dropped on completion.
	gen uint64
}

func NewCache(enabled bool) *Cache {
	return &Cache{
		enabled:  enabled,
		store:    make(map[page.Identity]Days),
		inflight: make(map[page.Identity]int),
	}
}

func (c *Cache) Enabled() bool { return c.enabled }

// SetEnabled toggles caching. Disabling keeps stored entries; they are only
// bypassed, and become visible again when caching is re-enabled.
func (c *Cache) SetEnabled(enabled bool) { c.enabled = enabled }

// Lookup returns the stored set for id. It always misses while disabled.
func (c *Cache) Lookup(id page.Identity) (Days, bool) {
	if !c.enabled {
		return 0, false
	}
	days, ok := c.store[id]
	return days, ok
}

// Store records days for id when caching is enabled. Last write wins.
func (c *Cache) Store(id page.Identity, days Days) {
	if !c.enabled {
		return
	}
	c.store[id] = days
}

// Clear empties the store. Requests in flight at the time of the call still
// complete but are neither stored nor applied.
func (c *Cache) Clear() {
	c.store = make(map[page.Identity]Days)
	c.gen++
}

// Generation counts Clear calls.
func (c *Cache) Generation() uint64 { return c.gen }

func (c *Cache) Len() int { return len(c.store) }

// State reports the lifecycle of id, ignoring the enabled flag.
func (c *Cache) State(id page.Identity) EntryState {
	if _, ok := c.store[id]; ok {
		return Resolved
	}
	if c.inflight[id] > 0 {
		return Pending
	}
	return Absent
}

func (c *Cache) begin(id page.Identity) { c.inflight[id]++ }

func (c *Cache) end(id page.Identity) {
	if c.inflight[id] <= 1 {
		delete(c.inflight, id)
		return
	}
	c.inflight[id]--
}
