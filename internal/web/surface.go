package web

import (
	"pagecal/internal/calview"
)

// The server is the coordinator's display surface. It keeps the visible page
// and its neighbours bound, recycling cells as the view moves the way a
// paging scroll view does.

const pagesAround = 1

func (s *Server) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, cell := range s.slots {
		if _, _, err := s.coord.Bind(cell, idx); err != nil {
			s.log.Error("rebind failed", err, "index", idx)
		}
	}
	s.revision++
}

func (s *Server) ScrollToPage(index int, animate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = index
	s.rebindLocked()
	s.log.Debug("scrolled", "index", index, "animate", animate)
}

func (s *Server) VisiblePage() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible, s.coord.NumberOfPages() > 0
}

func (s *Server) RedrawVisible() {
	s.mu.Lock()
	s.revision++
	s.mu.Unlock()
}

func (s *Server) CellChanged(c *calview.Cell) {
	s.mu.Lock()
	s.revision++
	s.mu.Unlock()
	s.log.Debug("cell events arrived", "page_id", c.Token())
}

// rebindLocked keeps cells already showing a wanted page and reuses the rest
// for the pages that came into range.
func (s *Server) rebindLocked() {
	want := map[int]bool{}
	for i := s.visible - pagesAround; i <= s.visible+pagesAround; i++ {
		if i >= 0 && i < s.coord.NumberOfPages() {
			want[i] = true
		}
	}

	var free []*calview.Cell
	for idx, cell := range s.slots {
		if !want[idx] {
			free = append(free, cell)
			delete(s.slots, idx)
		}
	}
	for idx := range want {
		if _, ok := s.slots[idx]; ok {
			continue
		}
		var cell *calview.Cell
		if n := len(free); n > 0 {
			cell, free = free[n-1], free[:n-1]
		} else {
			cell = calview.NewCell()
		}
		if _, _, err := s.coord.Bind(cell, idx); err != nil {
			s.log.Error("bind failed", err, "index", idx)
			continue
		}
		s.slots[idx] = cell
	}
	for _, cell := range free {
		s.coord.Unbind(cell)
	}
	s.revision++
}

// cellFor returns the pooled cell for index, if it is bound to that page.
func (s *Server) cellFor(index int) (*calview.Cell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[index]
	return cell, ok
}
