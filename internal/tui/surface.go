package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"pagecal/internal/calview"
	appLog "pagecal/internal/log"
)

// redrawMsg asks the program to re-render after state changed outside
// Update (async events, cron refresh).
type redrawMsg struct{}

// Surface shows one page at a time in a single recycled cell.
type Surface struct {
	coord *calview.Coordinator
	log   *appLog.Logger

	mu      sync.Mutex
	cell    *calview.Cell
	visible int
	send    func(tea.Msg)
}

func newSurface(coord *calview.Coordinator, logger *appLog.Logger) *Surface {
	return &Surface{coord: coord, log: logger, cell: calview.NewCell()}
}

// attachProgram routes redraw requests to p. Sends happen on their own
// goroutine so surface calls made from inside Update never block the loop.
func (s *Surface) attachProgram(send func(tea.Msg)) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
}

func (s *Surface) redraw() {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send != nil {
		go send(redrawMsg{})
	}
}

func (s *Surface) Reload() {
	s.mu.Lock()
	idx := s.visible
	s.mu.Unlock()
	s.bind(idx)
	s.redraw()
}

func (s *Surface) ScrollToPage(index int, animate bool) {
	s.mu.Lock()
	s.visible = index
	s.mu.Unlock()
	s.bind(index)
	s.log.Debug("page shown", "index", index, "animate", animate)
	s.redraw()
}

func (s *Surface) VisiblePage() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible, s.coord.NumberOfPages() > 0
}

func (s *Surface) RedrawVisible() { s.redraw() }

func (s *Surface) CellChanged(*calview.Cell) { s.redraw() }

func (s *Surface) bind(index int) {
	if _, _, err := s.coord.Bind(s.cell, index); err != nil {
		s.log.Error("bind failed", err, "index", index)
	}
}
