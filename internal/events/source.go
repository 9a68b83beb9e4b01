package events

import (
	"context"

	"cloud.google.com/go/civil"

	"pagecal/internal/page"
)

// Query describes the page an event source is asked about.
type Query struct {
	Kind      page.Kind
	Info      page.Info
	Reference civil.Date
}

// Immediate answers in the caller's frame. ok=false means "no precomputed
// value", and resolution falls through to Async.
type Immediate interface {
	EventDays(q Query) (days Days, ok bool)
}

// Async blocks until the page's days are known. The Resolver runs it off the
// dispatch thread; implementations need not spawn goroutines themselves.
type Async interface {
	FetchEventDays(ctx context.Context, q Query) (Days, error)
}

// Source bundles the capabilities a provider offers. Any field may be nil;
// a zero Source resolves nothing.
type Source struct {
	Immediate Immediate
	Async     Async
	// Fixed days, such as configured holidays, are merged into every
	// answer. With Async set they are shown before the fetch completes and
	// stay when it fails.
	Fixed Immediate
}

func (s Source) Empty() bool { return s.Immediate == nil && s.Async == nil && s.Fixed == nil }

// ImmediateFunc adapts a function to Immediate.
type ImmediateFunc func(q Query) (Days, bool)

func (f ImmediateFunc) EventDays(q Query) (Days, bool) { return f(q) }

// AsyncFunc adapts a function to Async.
type AsyncFunc func(ctx context.Context, q Query) (Days, error)

func (f AsyncFunc) FetchEventDays(ctx context.Context, q Query) (Days, error) { return f(ctx, q) }

// DateSet is an Immediate source over a fixed list of dates, such as
// configured holidays. It always answers, possibly with an empty set.
type DateSet map[civil.Date]struct{}

func NewDateSet(dates ...civil.Date) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

func (s DateSet) EventDays(q Query) (Days, bool) {
	return s.daysIn(q.Info.StartDate, q.Info.EndDate), true
}

func (s DateSet) daysIn(start, end civil.Date) Days {
	var days Days
	for d := range s {
		if d.Before(start) || d.After(end) {
			continue
		}
		days = days.With(d.Day)
	}
	return days
}
