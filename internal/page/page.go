// Package page maps integer page indexes to calendar ranges and back.
package page

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"pagecal/internal/caldate"
)

// ErrIndexOutOfRange is returned by callers that bound indexes to a page
// count. SpecAt itself accepts any index.
var ErrIndexOutOfRange = errors.New("page: index out of range")

// Kind selects month or week pages.
type Kind int

const (
	Month Kind = iota
	Week
)

func (k Kind) String() string {
	switch k {
	case Month:
		return "month"
	case Week:
		return "week"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps "month"/"week" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "":
		return Month, nil
	case "week":
		return Week, nil
	default:
		return Month, fmt.Errorf("page: unknown kind %q", s)
	}
}

// Identity is the cache key for a page. It depends only on the covered
// range and the reference month, so independently built specs for the
// same range collide on purpose.
type Identity string

// Info is what an event source is told about a page.
type Info struct {
	Month     int
	Year      int
	StartDay  int
	EndDay    int
	StartDate civil.Date
	EndDate   civil.Date
}

// Spec is one page. RangeStart and RangeEnd are inclusive.
type Spec struct {
	Index         int
	Kind          Kind
	ReferenceDate civil.Date
	RangeStart    civil.Date
	RangeEnd      civil.Date
}

// Info derives the event-source description of s.
func (s Spec) Info() Info {
	return Info{
		Month:     int(s.ReferenceDate.Month),
		Year:      s.ReferenceDate.Year,
		StartDay:  s.RangeStart.Day,
		EndDay:    s.RangeEnd.Day,
		StartDate: s.RangeStart,
		EndDate:   s.RangeEnd,
	}
}

// Identity formats "<startDay>-<endDay>_<month>_<year>", e.g. "1-31_1_2024".
func (s Spec) Identity() Identity {
	return IdentityOf(s.Info())
}

func IdentityOf(info Info) Identity {
	return Identity(fmt.Sprintf("%d-%d_%d_%d", info.StartDay, info.EndDay, info.Month, info.Year))
}

// Contains reports whether d falls within the page's range.
func (s Spec) Contains(d civil.Date) bool {
	return !d.Before(s.RangeStart) && !d.After(s.RangeEnd)
}

// Indexer is the bidirectional index/date mapping for one configuration.
type Indexer struct {
	Kind      Kind
	StartDate civil.Date
	Calendar  caldate.Config
}

// NewIndexer validates startDate and returns an Indexer.
func NewIndexer(kind Kind, startDate civil.Date, cal caldate.Config) (Indexer, error) {
	if err := caldate.Check(startDate); err != nil {
		return Indexer{}, fmt.Errorf("page: start date: %w", err)
	}
	return Indexer{Kind: kind, StartDate: startDate, Calendar: cal}, nil
}

// SpecAt returns the page at index. Month pages advance the start date by
// index months; week pages by index*7 days.
func (x Indexer) SpecAt(index int) Spec {
	s := Spec{Index: index, Kind: x.Kind}
	switch x.Kind {
	case Week:
		s.ReferenceDate = caldate.AddDays(x.StartDate, index*caldate.DaysInWeek)
		s.RangeStart = x.Calendar.StartOfWeek(s.ReferenceDate)
		s.RangeEnd = caldate.AddDays(s.RangeStart, caldate.DaysInWeek-1)
	default:
		s.ReferenceDate = caldate.AddMonths(x.StartDate, index)
		s.RangeStart = caldate.StartOfMonth(s.ReferenceDate)
		s.RangeEnd = caldate.EndOfMonth(s.ReferenceDate)
	}
	return s
}

// IndexOf returns the index of the page containing d. The result may be
// negative or beyond the configured page count; callers bound it.
func (x Indexer) IndexOf(d civil.Date) int {
	switch x.Kind {
	case Week:
		return caldate.WeeksBetween(x.Calendar.StartOfWeek(x.StartDate), x.Calendar.StartOfWeek(d))
	default:
		return caldate.MonthsBetween(caldate.StartOfMonth(x.StartDate), caldate.StartOfMonth(d))
	}
}

// EndDate is the exclusive end of a span of n pages.
func (x Indexer) EndDate(n int) civil.Date {
	if x.Kind == Week {
		return caldate.AddDays(x.StartDate, n*caldate.DaysInWeek)
	}
	return caldate.AddMonths(x.StartDate, n)
}

// PagesUntil is the page count for a span ending at endDate.
func (x Indexer) PagesUntil(endDate civil.Date) int {
	if x.Kind == Week {
		return caldate.WeeksBetween(x.StartDate, endDate)
	}
	return caldate.MonthsBetween(x.StartDate, endDate)
}
