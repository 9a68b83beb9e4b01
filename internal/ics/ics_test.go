package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"pagecal/internal/caldate"
	"pagecal/internal/events"
	"pagecal/internal/page"
)

var caldateSunday = caldate.Config{FirstWeekday: time.Sunday}

const calendarBody = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//pagecal//test//EN
BEGIN:VEVENT
UID:standup
DTSTART:20240205T090000Z
DTEND:20240205T093000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20240212T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup
RECURRENCE-ID:20240219T090000Z
DTSTART:20240220T090000Z
DTEND:20240220T093000Z
SUMMARY:Standup moved
END:VEVENT
BEGIN:VEVENT
UID:trip
DTSTART;VALUE=DATE:20240228
DTEND;VALUE=DATE:20240302
SUMMARY:Trip
END:VEVENT
BEGIN:VEVENT
SUMMARY:No uid
DTSTART:20240210T090000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte { return []byte(strings.ReplaceAll(s, "\n", "\r\n")) }

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

type feedServer struct {
	*httptest.Server
	hits   atomic.Int32
	status atomic.Int32
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{}
	fs.status.Store(http.StatusOK)
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		if code := int(fs.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(crlf(calendarBody))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func TestFetchUsesConditionalCache(t *testing.T) {
	t.Parallel()

	srv := newFeedServer(t)
	f := NewFetcher(t.TempDir(), srv.Client(), nil)
	feed := Feed{ID: "work", URL: srv.URL + "/private/token.ics"}

	b, err := f.Fetch(context.Background(), feed)
	require.NoError(t, err)
	require.False(t, b.FromCache)
	require.Contains(t, string(b.Data), "UID:standup")

	b2, err := f.Fetch(context.Background(), feed)
	require.NoError(t, err)
	require.True(t, b2.FromCache, "304 reuses the disk copy")
	require.Equal(t, b.Data, b2.Data)

	srv.status.Store(http.StatusBadGateway)
	b3, err := f.Fetch(context.Background(), feed)
	require.NoError(t, err)
	require.True(t, b3.FromCache)

	empty := NewFetcher(t.TempDir(), srv.Client(), nil)
	_, err = empty.Fetch(context.Background(), feed)
	require.Error(t, err)

	_, err = f.Fetch(context.Background(), Feed{ID: "none"})
	require.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/cal/secret.ics?token=x"))
	require.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	evs, err := Parse(Feed{ID: "work"}, crlf(calendarBody), nil)
	require.NoError(t, err)
	require.Len(t, evs, 3, "the VEVENT without UID is skipped")

	byUID := map[string][]Event{}
	for _, ev := range evs {
		byUID[ev.UID] = append(byUID[ev.UID], ev)
	}
	trip := byUID["trip"][0]
	require.True(t, trip.AllDay)
	require.Equal(t, time.Date(2024, time.February, 28, 0, 0, 0, 0, time.UTC), trip.Start)
	require.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), trip.End)

	require.Len(t, byUID["standup"], 2)
	for _, ev := range byUID["standup"] {
		require.False(t, ev.AllDay)
		if ev.RecurrenceID == nil {
			require.Equal(t, "FREQ=WEEKLY;COUNT=4", ev.RRule)
			require.Len(t, ev.ExDates, 1)
		}
	}

	_, err = Parse(Feed{ID: "empty"}, nil, nil)
	require.Error(t, err)
}

func TestExpand(t *testing.T) {
	t.Parallel()

	evs, err := Parse(Feed{ID: "work"}, crlf(calendarBody), nil)
	require.NoError(t, err)

	occ, err := Expand(evs, Window{From: date(2024, time.February, 1), To: date(2024, time.February, 29), Location: time.UTC}, nil)
	require.NoError(t, err)

	var starts []string
	for _, o := range occ {
		starts = append(starts, o.Start.Format("2006-01-02"))
	}
	require.ElementsMatch(t, []string{"2024-02-05", "2024-02-26", "2024-02-20", "2024-02-28"}, starts)

	_, err = Expand(evs, Window{From: date(2024, time.March, 2), To: date(2024, time.March, 1)}, nil)
	require.Error(t, err)
}

func TestExpandAllDayFollowsDisplayZone(t *testing.T) {
	t.Parallel()

	evs, err := Parse(Feed{ID: "work"}, crlf(calendarBody), nil)
	require.NoError(t, err)
	tokyo := time.FixedZone("JST", 9*60*60)

	occ, err := Expand(evs, Window{From: date(2024, time.March, 1), To: date(2024, time.March, 31), Location: tokyo}, nil)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	first, last := occ[0].Days()
	require.Equal(t, date(2024, time.February, 28), first)
	require.Equal(t, date(2024, time.March, 1), last)
	require.Equal(t, tokyo, occ[0].Start.Location())
}

func monthQuery(t *testing.T, start civil.Date) events.Query {
	t.Helper()
	x, err := page.NewIndexer(page.Month, start, caldateSunday)
	require.NoError(t, err)
	spec := x.SpecAt(0)
	return events.Query{Kind: spec.Kind, Info: spec.Info(), Reference: spec.ReferenceDate}
}

func TestDaySource(t *testing.T) {
	t.Parallel()

	srv := newFeedServer(t)
	src := NewDaySource(NewFetcher(t.TempDir(), srv.Client(), nil),
		[]Feed{{ID: "work", URL: srv.URL + "/work.ics"}}, time.UTC, nil)

	feb, err := src.FetchEventDays(context.Background(), monthQuery(t, date(2024, time.February, 1)))
	require.NoError(t, err)
	require.Equal(t, events.NewDays(5, 20, 26, 28, 29), feb)

	mar, err := src.FetchEventDays(context.Background(), monthQuery(t, date(2024, time.March, 1)))
	require.NoError(t, err)
	require.Equal(t, events.NewDays(1), mar)
	require.EqualValues(t, 1, srv.hits.Load(), "parsed feeds are reused across pages")

	src.Invalidate()
	_, err = src.FetchEventDays(context.Background(), monthQuery(t, date(2024, time.March, 1)))
	require.NoError(t, err)
	require.EqualValues(t, 2, srv.hits.Load())
}

func TestDaySourceFailsWhenEveryFeedFails(t *testing.T) {
	t.Parallel()

	srv := newFeedServer(t)
	srv.status.Store(http.StatusInternalServerError)
	src := NewDaySource(NewFetcher(t.TempDir(), srv.Client(), nil),
		[]Feed{{ID: "a", URL: srv.URL + "/a.ics"}, {ID: "b", URL: srv.URL + "/b.ics"}}, time.UTC, nil)

	_, err := src.FetchEventDays(context.Background(), monthQuery(t, date(2024, time.February, 1)))
	require.Error(t, err)

	// With no feeds configured there is nothing to fail.
	none := NewDaySource(NewFetcher(t.TempDir(), srv.Client(), nil), nil, time.UTC, nil)
	days, err := none.FetchEventDays(context.Background(), monthQuery(t, date(2024, time.February, 1)))
	require.NoError(t, err)
	require.True(t, days.Empty())
}
