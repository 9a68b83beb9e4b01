package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"pagecal/internal/caldate"
	"pagecal/internal/calview"
	"pagecal/internal/events"
)

func newTestServer(t *testing.T, opts Options) (*Server, *calview.Coordinator) {
	t.Helper()
	today := civil.Date{Year: 2024, Month: time.January, Day: 15}
	coord, err := calview.NewMonth(calview.Options{
		StartDate:       civil.Date{Year: 2024, Month: time.January, Day: 1},
		Calendar:        caldate.Config{FirstWeekday: time.Sunday},
		AllowsSelection: true,
		AllowsCaching:   true,
		Source: events.Source{Immediate: events.NewDateSet(
			civil.Date{Year: 2024, Month: time.January, Day: 22},
			civil.Date{Year: 2024, Month: time.March, Day: 3},
		)},
		Now:      func() time.Time { return today.In(time.UTC).Add(9 * time.Hour) },
		Location: time.UTC,
	}, 3, nil)
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return New(coord, opts), coord
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestPageAPI(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/api/pages/0")
	require.Equal(t, http.StatusOK, rec.Code)

	p := decode[pageResponse](t, rec)
	require.Equal(t, "1-31_1_2024", p.Identity)
	require.Equal(t, "month", p.Kind)
	require.Equal(t, 6, p.Rows)
	require.Len(t, p.Cells, 42)
	require.Equal(t, []int{22}, p.Events)
	require.Equal(t, []string{"S", "M", "T", "W", "T", "F", "S"}, p.Titles)
	require.Equal(t, "2023-12-31", p.Cells[0].Date)
	require.Equal(t, "other-month", p.Cells[0].Class)
	require.Equal(t, "today", p.Cells[15].Class)

	// Page 2 is outside the pooled window around page 0.
	rec = do(t, s.Handler(), http.MethodGet, "/api/pages/2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int{3}, decode[pageResponse](t, rec).Events)

	require.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/api/pages/3").Code)
	require.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/pages/x").Code)
}

func TestSelectScrollsToAdjacentPage(t *testing.T) {
	t.Parallel()

	s, coord := newTestServer(t, Options{})
	rec := do(t, s.Handler(), http.MethodPost, "/api/select?date=2024-02-10")
	require.Equal(t, http.StatusOK, rec.Code)

	st := decode[stateResponse](t, rec)
	require.Equal(t, 1, st.Visible)
	require.Equal(t, "2024-02-10", st.Selected)

	got, ok := coord.SelectedDate()
	require.True(t, ok)
	require.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 10}, got)

	_, ok = s.cellFor(2)
	require.True(t, ok, "the page after the new visible one is pooled")

	p := decode[pageResponse](t, do(t, s.Handler(), http.MethodGet, "/api/pages/1"))
	for _, c := range p.Cells {
		if c.Date == "2024-02-10" {
			require.Equal(t, "selected", c.Class)
		}
	}
}

func TestSelectErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{})
	h := s.Handler()
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/select?date=2024-02-30").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/select").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/select?date=2025-01-01").Code)
	require.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/select?date=2024-01-20").Code)
}

func TestScrollAndRefresh(t *testing.T) {
	t.Parallel()

	s, coord := newTestServer(t, Options{})
	h := s.Handler()

	st := decode[stateResponse](t, do(t, h, http.MethodPost, "/api/scroll?index=2"))
	require.Equal(t, 2, st.Visible)
	st = decode[stateResponse](t, do(t, h, http.MethodPost, "/api/scroll?date=2024-01-09"))
	require.Equal(t, 0, st.Visible)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/scroll?index=9").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/scroll").Code)

	require.Equal(t, events.Resolved, coord.CacheState(0))
	before := st.Revision
	st = decode[stateResponse](t, do(t, h, http.MethodPost, "/api/refresh"))
	require.Greater(t, st.Revision, before)
	require.Equal(t, events.Resolved, coord.CacheState(0), "reload resolves the visible pages again")
}

func TestCalendarHTML(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/calendar")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `data-ready="true"`)
	require.Contains(t, body, "January 2024")
	require.Contains(t, body, `data-date="2024-01-22"`)
	require.Equal(t, 6, strings.Count(body, "<tr><td"))

	rec = do(t, s.Handler(), http.MethodGet, "/calendar?index=1")
	require.Contains(t, rec.Body.String(), "February 2024")
}

func TestPreview(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG"), 0o600))

	s, _ := newTestServer(t, Options{PreviewPath: path})
	rec := do(t, s.Handler(), http.MethodGet, "/preview.png")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "\x89PNG", rec.Body.String())

	none, _ := newTestServer(t, Options{})
	require.Equal(t, http.StatusNotFound, do(t, none.Handler(), http.MethodGet, "/preview.png").Code)
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{Username: "admin", Password: "secret"})
	h := s.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
	rec := do(t, h, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.SetBasicAuth("admin", "secret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)
	require.Equal(t, 3, decode[stateResponse](t, ok).Pages)
}
