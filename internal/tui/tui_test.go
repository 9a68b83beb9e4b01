package tui

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"pagecal/internal/caldate"
	"pagecal/internal/calview"
	"pagecal/internal/events"
)

func newTestModel(t *testing.T) (*Model, *calview.Coordinator) {
	t.Helper()
	today := civil.Date{Year: 2024, Month: time.January, Day: 15}
	coord, err := calview.NewMonth(calview.Options{
		StartDate:       civil.Date{Year: 2024, Month: time.January, Day: 1},
		Calendar:        caldate.Config{FirstWeekday: time.Sunday},
		AllowsSelection: true,
		AllowsCaching:   true,
		Source: events.Source{Immediate: events.NewDateSet(
			civil.Date{Year: 2024, Month: time.January, Day: 22},
		)},
		Now:      func() time.Time { return today.In(time.UTC).Add(9 * time.Hour) },
		Location: time.UTC,
	}, 3, nil)
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return New(coord, [caldate.DaysInWeek]string{}, nil), coord
}

func press(m *Model, keys ...string) {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m.Update(msg)
	}
}

func TestStartsOnToday(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	vis, ok := m.Surface().VisiblePage()
	require.True(t, ok)
	require.Equal(t, 0, vis)
	require.Equal(t, 15, m.cursor)

	view := m.View()
	require.Contains(t, view, "January 2024")
	require.Contains(t, view, "22•")
}

func TestPageKeys(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	press(m, "right")
	require.Contains(t, m.View(), "February 2024")
	press(m, "right", "right")
	vis, _ := m.Surface().VisiblePage()
	require.Equal(t, 2, vis, "right stops at the last page")

	press(m, "t")
	vis, _ = m.Surface().VisiblePage()
	require.Equal(t, 0, vis)
	require.Equal(t, 15, m.cursor)

	press(m, "left")
	vis, _ = m.Surface().VisiblePage()
	require.Equal(t, 0, vis, "left stops at the first page")
}

func TestSelectUnderCursor(t *testing.T) {
	t.Parallel()

	m, coord := newTestModel(t)
	press(m, "l", "enter")

	d, ok := coord.SelectedDate()
	require.True(t, ok)
	require.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 16}, d)
	require.Contains(t, m.View(), "selection: 2024-01-16")
}

func TestSelectFillDayMovesPage(t *testing.T) {
	t.Parallel()

	m, coord := newTestModel(t)
	// Position 36 is Feb 5, a trailing fill day of January.
	press(m, "j", "j", "j", "enter")

	d, ok := coord.SelectedDate()
	require.True(t, ok)
	require.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 5}, d)

	vis, _ := m.Surface().VisiblePage()
	require.Equal(t, 1, vis)
	require.Equal(t, 8, m.cursor)
	require.Contains(t, m.View(), "February 2024")
}

func TestCursorStaysOnGrid(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	press(m, "k", "k", "k")
	require.Equal(t, 1, m.cursor)
	press(m, "k", "h", "h")
	require.Equal(t, 0, m.cursor)
}

func TestCacheKeys(t *testing.T) {
	t.Parallel()

	m, coord := newTestModel(t)
	require.Equal(t, events.Resolved, coord.CacheState(0))

	press(m, "c")
	require.False(t, coord.AllowsCaching())
	require.Contains(t, m.View(), "caching off")

	press(m, "c", "r")
	require.True(t, coord.AllowsCaching())
	require.Equal(t, events.Resolved, coord.CacheState(0), "reload resolves the visible page again")
	require.Contains(t, m.View(), "cache cleared")
}

func TestQuit(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
