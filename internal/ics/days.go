package ics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"pagecal/internal/events"
	appLog "pagecal/internal/log"
)

// DaySource answers page event queries from ICS feeds. Parsed feeds are kept
// in memory until Invalidate; each page only pays for expansion.
type DaySource struct {
	fetcher *Fetcher
	feeds   []Feed
	loc     *time.Location
	log     *appLog.Logger

	mu     sync.RWMutex
	parsed map[string][]Event
	loads  singleflight.Group
}

// NewDaySource builds a source over feeds. loc is the display timezone.
func NewDaySource(fetcher *Fetcher, feeds []Feed, loc *time.Location, logger *appLog.Logger) *DaySource {
	if loc == nil {
		loc = time.Local
	}
	return &DaySource{
		fetcher: fetcher,
		feeds:   feeds,
		loc:     loc,
		log:     logger,
		parsed:  map[string][]Event{},
	}
}

// Invalidate forgets parsed feeds so the next query refetches them.
func (s *DaySource) Invalidate() {
	s.mu.Lock()
	s.parsed = map[string][]Event{}
	s.mu.Unlock()
}

// FetchEventDays marks every day of the queried page that an occurrence
// touches. Feeds that fail are logged and skipped; the query fails only when
// every feed failed.
func (s *DaySource) FetchEventDays(ctx context.Context, q events.Query) (events.Days, error) {
	all, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	occ, err := Expand(all, Window{From: q.Info.StartDate, To: q.Info.EndDate, Location: s.loc}, s.log)
	if err != nil {
		return 0, err
	}

	var days events.Days
	for _, o := range occ {
		first, last := o.Days()
		if first.Before(q.Info.StartDate) {
			first = q.Info.StartDate
		}
		if last.After(q.Info.EndDate) {
			last = q.Info.EndDate
		}
		for d := first; !d.After(last); d = d.AddDays(1) {
			days = days.With(d.Day)
		}
	}
	s.log.Debug("ics page resolved", "start", q.Info.StartDate, "end", q.Info.EndDate,
		"occurrences", len(occ), "days", days)
	return days, nil
}

func (s *DaySource) load(ctx context.Context) ([]Event, error) {
	results := make([][]Event, len(s.feeds))
	errs := make([]error, len(s.feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range s.feeds {
		g.Go(func() error {
			evs, err := s.feed(gctx, feed)
			if err != nil {
				s.log.Error("ics feed unavailable", err, "id", feed.ID, "url", redactURL(feed.URL))
				errs[i] = err
				return nil
			}
			results[i] = evs
			return nil
		})
	}
	_ = g.Wait()

	var all []Event
	ok := 0
	for i := range s.feeds {
		if errs[i] == nil {
			ok++
			all = append(all, results[i]...)
		}
	}
	if ok == 0 && len(s.feeds) > 0 {
		return nil, fmt.Errorf("ics: all feeds failed: %w", errors.Join(errs...))
	}
	return all, nil
}

func (s *DaySource) feed(ctx context.Context, feed Feed) ([]Event, error) {
	s.mu.RLock()
	evs, ok := s.parsed[feed.URL]
	s.mu.RUnlock()
	if ok {
		return evs, nil
	}

	v, err, _ := s.loads.Do(feed.URL, func() (any, error) {
		body, err := s.fetcher.Fetch(ctx, feed)
		if err != nil {
			return nil, err
		}
		evs, err := Parse(feed, body.Data, s.log)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.parsed[feed.URL] = evs
		s.mu.Unlock()
		return evs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Event), nil
}
