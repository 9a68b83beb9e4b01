package events

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	appLog "pagecal/internal/log"
	"pagecal/internal/page"
)

// Target is a display slot that can receive a day set. Token reports which
// page the slot currently represents.
type Target interface {
	Token() page.Identity
	SetEvents(Days)
}

// Dispatcher runs fn on the thread that owns cache and cell state. Async
// completions always pass through it.
type Dispatcher func(fn func())

// Outcome tells the caller which path Resolve took.
type Outcome int

const (
	NoSource Outcome = iota
	FromCache
	FromImmediate
	Requested
)

func (o Outcome) String() string {
	switch o {
	case FromCache:
		return "cache"
	case FromImmediate:
		return "immediate"
	case Requested:
		return "requested"
	default:
		return "none"
	}
}

// ResolverOptions configures NewResolver.
type ResolverOptions struct {
	Cache    *Cache
	Source   Source
	Dispatch Dispatcher
	Logger   *appLog.Logger
	// Coalesce shares one fetch between concurrent requests for the same
	// identity. Each caller still applies only to its own target.
	Coalesce bool
}

// Resolver is the read/write entry point for page events.
//
// Resolve must be called from the dispatch thread. Concurrent requests for
// one uncached identity each issue their own fetch unless Coalesce is set.
type Resolver struct {
	cache    *Cache
	src      Source
	dispatch Dispatcher
	log      *appLog.Logger
	coalesce bool
	group    singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewResolver(opts ResolverOptions) *Resolver {
	cache := opts.Cache
	if cache == nil {
		cache = NewCache(true)
	}
	dispatch := opts.Dispatch
	if dispatch == nil {
		var mu sync.Mutex
		dispatch = func(fn func()) {
			mu.Lock()
			defer mu.Unlock()
			fn()
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		cache:    cache,
		src:      opts.Source,
		dispatch: dispatch,
		log:      opts.Logger,
		coalesce: opts.Coalesce,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Resolver) Cache() *Cache { return r.cache }

// SetSource swaps the provider and clears the cache. Replies still in
// flight from the previous source are dropped. Call from the dispatch thread.
func (r *Resolver) SetSource(src Source) {
	r.src = src
	r.cache.Clear()
}

// Resolve fills t with the days for spec. In order: a cache hit is applied
// directly; an immediate answer is applied and cached; otherwise an async
// fetch is started and its result is cached on success and applied only if
// t still shows spec's page. Fixed days are merged into every answer and are
// shown while a fetch is outstanding, so they survive a failed fetch.
// Failures are logged and dropped, as are replies that arrive after the
// cache was cleared.
func (r *Resolver) Resolve(spec page.Spec, t Target) Outcome {
	id := spec.Identity()

	if days, ok := r.cache.Lookup(id); ok {
		t.SetEvents(days)
		return FromCache
	}

	q := Query{Kind: spec.Kind, Info: spec.Info(), Reference: spec.ReferenceDate}

	var fixed Days
	if r.src.Fixed != nil {
		fixed, _ = r.src.Fixed.EventDays(q)
	}

	if r.src.Immediate != nil {
		if days, ok := r.src.Immediate.EventDays(q); ok {
			days = days.Union(fixed)
			t.SetEvents(days)
			r.cache.Store(id, days)
			return FromImmediate
		}
	}

	if r.src.Async == nil {
		if r.src.Fixed == nil {
			return NoSource
		}
		t.SetEvents(fixed)
		r.cache.Store(id, fixed)
		return FromImmediate
	}

	if !fixed.Empty() {
		t.SetEvents(fixed)
	}

	async := r.src.Async
	gen := r.cache.Generation()
	r.cache.begin(id)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		days, err := r.fetch(async, id, q)
		r.dispatch(func() {
			r.cache.end(id)
			if r.cache.Generation() != gen {
				r.log.Debug("event fetch dropped after cache clear", "page_id", id)
				return
			}
			if err != nil {
				r.log.Error("event fetch failed", err, "page_id", id)
				return
			}
			days = days.Union(fixed)
			r.cache.Store(id, days)
			if t.Token() != id {
				r.log.Debug("event fetch resolved for recycled cell", "page_id", id, "current", t.Token())
				return
			}
			t.SetEvents(days)
		})
	}()
	return Requested
}

func (r *Resolver) fetch(async Async, id page.Identity, q Query) (Days, error) {
	if !r.coalesce {
		return async.FetchEventDays(r.ctx, q)
	}
	v, err, _ := r.group.Do(string(id), func() (any, error) {
		return async.FetchEventDays(r.ctx, q)
	})
	if err != nil {
		return 0, err
	}
	return v.(Days), nil
}

// Wait blocks until every started fetch has been dispatched.
func (r *Resolver) Wait() { r.wg.Wait() }

// Close cancels outstanding fetches and waits for them to finish.
func (r *Resolver) Close() {
	r.cancel()
	r.wg.Wait()
}
