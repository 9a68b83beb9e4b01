// Package tui is a terminal surface for a calendar coordinator.
//
// Keys: left/right change page, h/j/k/l move the cursor, enter selects the
// day under the cursor, t jumps to today, c toggles event caching, r clears
// the cache and reloads, q quits.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pagecal/internal/caldate"
	"pagecal/internal/calview"
	"pagecal/internal/grid"
	appLog "pagecal/internal/log"
	"pagecal/internal/page"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Faint(true)
	statusStyle = lipgloss.NewStyle().Faint(true).MarginTop(1)
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	classStyles = map[grid.Class]lipgloss.Style{
		grid.Normal:     lipgloss.NewStyle(),
		grid.Weekend:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		grid.Today:      lipgloss.NewStyle().Bold(true).Underline(true),
		grid.Selected:   lipgloss.NewStyle().Background(lipgloss.Color("4")).Foreground(lipgloss.Color("15")),
		grid.Invalid:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		grid.OtherMonth: lipgloss.NewStyle().Faint(true),
	}
)

// Model is the bubbletea model.
type Model struct {
	coord  *calview.Coordinator
	surf   *Surface
	titles [caldate.DaysInWeek]string
	cursor int
	status string
}

// New attaches a terminal surface to coord and shows the page containing
// today, or page 0.
func New(coord *calview.Coordinator, titles [caldate.DaysInWeek]string, logger *appLog.Logger) *Model {
	if titles == ([caldate.DaysInWeek]string{}) {
		titles = grid.VeryShortWeekdaySymbols
	}
	m := &Model{coord: coord, surf: newSurface(coord, logger), titles: titles}
	coord.Attach(m.surf)
	start := 0
	if i, ok := coord.IndexOf(coord.Today()); ok {
		start = i
	}
	m.surf.ScrollToPage(start, false)
	m.cursorToToday()
	return m
}

// Surface is the coordinator-facing side of the model.
func (m *Model) Surface() *Surface { return m.surf }

// Run drives the program until the user quits or ctx is cancelled.
func Run(ctx context.Context, coord *calview.Coordinator, titles [caldate.DaysInWeek]string, logger *appLog.Logger) error {
	m := New(coord, titles, logger)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	m.surf.attachProgram(p.Send)
	defer m.surf.attachProgram(nil)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case redrawMsg:
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	vis, _ := m.surf.VisiblePage()
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "left":
		m.page(vis - 1)
	case "right":
		m.page(vis + 1)
	case "h":
		m.move(-1)
	case "l":
		m.move(1)
	case "k":
		m.move(-caldate.DaysInWeek)
	case "j":
		m.move(caldate.DaysInWeek)
	case "enter", " ":
		m.selectCursor()
	case "t":
		if err := m.coord.ScrollTo(m.coord.Today(), true); err != nil {
			m.status = err.Error()
			break
		}
		m.cursorToToday()
		m.status = ""
	case "c":
		m.coord.SetAllowsCaching(!m.coord.AllowsCaching())
		m.status = fmt.Sprintf("caching %s", onOff(m.coord.AllowsCaching()))
	case "r":
		m.coord.Refresh()
		m.status = "cache cleared"
	}
	return m, nil
}

func (m *Model) page(index int) {
	if index < 0 || index >= m.coord.NumberOfPages() {
		return
	}
	m.surf.ScrollToPage(index, true)
	m.status = ""
}

func (m *Model) positions() int {
	g, err := m.coord.Render(m.surf.cell)
	if err != nil {
		return 0
	}
	return len(g.Cells)
}

func (m *Model) move(delta int) {
	n := m.positions()
	if n == 0 {
		return
	}
	next := m.cursor + delta
	if next >= 0 && next < n {
		m.cursor = next
	}
}

func (m *Model) selectCursor() {
	d, err := m.coord.Tap(m.surf.cell, m.cursor)
	if err != nil {
		m.status = err.Error()
		return
	}
	// A tap on a fill day moves to its page; keep the cursor on that day.
	m.cursorTo(d)
	m.status = "selected " + d.String()
}

func (m *Model) cursorToToday() { m.cursorTo(m.coord.Today()) }

func (m *Model) cursorTo(d civil.Date) {
	g, err := m.coord.Render(m.surf.cell)
	if err != nil {
		return
	}
	for i, c := range g.Cells {
		if c.Date == d && c.BelongsToReferenceMonth {
			m.cursor = i
			return
		}
	}
}

func (m *Model) View() string {
	g, err := m.coord.Render(m.surf.cell)
	if err != nil {
		return "calendar unavailable: " + err.Error() + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(heading(g.Spec)))
	b.WriteString("\n")

	titles := m.coord.WeekdayTitles(m.titles)
	for i, t := range titles {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("%3s", t)))
	}
	b.WriteString("\n")

	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Columns; c++ {
			if c > 0 {
				b.WriteString(" ")
			}
			i := r*g.Columns + c
			b.WriteString(m.renderCell(g.Cells[i], i == m.cursor))
		}
		b.WriteString("\n")
	}

	if d, ok := m.coord.SelectedDate(); ok {
		b.WriteString(statusStyle.Render("selection: " + d.String()))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(headerStyle.Render("←/→ page  hjkl move  enter select  t today  c cache  r reload  q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderCell(c grid.Cell, cursor bool) string {
	mark := " "
	switch c.Marker() {
	case grid.EventMarker:
		mark = "•"
	case grid.SelectedEventMarker:
		mark = "◆"
	}
	text := classStyles[c.Class()].Render(fmt.Sprintf("%2d", c.DayNumber)) + mark
	if cursor {
		return cursorStyle.Render(text)
	}
	return text
}

func heading(spec page.Spec) string {
	if spec.Kind == page.Week {
		return fmt.Sprintf("Week of %s", spec.RangeStart)
	}
	return fmt.Sprintf("%s %d", spec.ReferenceDate.Month, spec.ReferenceDate.Year)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
