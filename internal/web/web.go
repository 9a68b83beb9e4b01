package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pagecal/internal/caldate"
	"pagecal/internal/calview"
	"pagecal/internal/grid"
	appLog "pagecal/internal/log"
	"pagecal/internal/page"
)

// Options configure a Server.
type Options struct {
	// Titles are Sunday-first weekday header symbols.
	Titles [caldate.DaysInWeek]string
	// PreviewPath is the PNG served at /preview.png.
	PreviewPath string
	// Username and Password enable HTTP Basic Auth on every route except
	// /health when both are set.
	Username string
	Password string
	Logger   *appLog.Logger
}

// Server exposes a calendar coordinator over HTTP and acts as its display
// surface.
type Server struct {
	coord *calview.Coordinator
	opts  Options
	log   *appLog.Logger
	mux   *http.ServeMux

	mu       sync.Mutex
	visible  int
	slots    map[int]*calview.Cell
	revision uint64
}

// New attaches a Server to coord and shows the page containing today, or
// page 0 when today is out of range.
func New(coord *calview.Coordinator, opts Options) *Server {
	if opts.Titles == ([caldate.DaysInWeek]string{}) {
		opts.Titles = grid.VeryShortWeekdaySymbols
	}
	s := &Server{
		coord: coord,
		opts:  opts,
		log:   opts.Logger,
		mux:   http.NewServeMux(),
		slots: map[int]*calview.Cell{},
	}
	s.registerRoutes()
	coord.Attach(s)

	start := 0
	if i, ok := coord.IndexOf(coord.Today()); ok {
		start = i
	}
	s.ScrollToPage(start, false)
	return s
}

// Handler returns the routes, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	if s.opts.Username == "" || s.opts.Password == "" {
		return s.mux
	}
	s.log.Info("HTTP basic auth enabled")
	return s.basicAuth(s.mux)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/pages/{index}", s.handlePage)
	s.mux.HandleFunc("POST /api/scroll", s.handleScroll)
	s.mux.HandleFunc("POST /api/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, s.opts.Username) || !secureCompare(p, s.opts.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="pagecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page index must be an integer")
		return
	}
	g, err := s.render(index)
	if err != nil {
		writeCoordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pageDTO(g))
}

// POST /api/scroll?index=N or ?date=YYYY-MM-DD
func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if v := q.Get("date"); v != "" {
		d, err := caldate.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.coord.ScrollTo(d, true); err != nil {
			writeCoordError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.state())
		return
	}
	index, err := strconv.Atoi(q.Get("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index or date is required")
		return
	}
	if _, err := s.coord.Spec(index); err != nil {
		writeCoordError(w, err)
		return
	}
	s.ScrollToPage(index, true)
	writeJSON(w, http.StatusOK, s.state())
}

// POST /api/select?date=YYYY-MM-DD applies the same rules as a tap.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	d, err := caldate.Parse(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.coord.DidSelect(d); err != nil {
		writeCoordError(w, err)
		return
	}
	s.log.Info("date selected via api", "date", d)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.coord.Refresh()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.opts.PreviewPath == "" {
		writeError(w, http.StatusNotFound, "preview not configured")
		return
	}
	http.ServeFile(w, r, s.opts.PreviewPath)
}

// render draws the page at index from its pooled cell, or from a one-off
// cell when the page is not near the visible one. One-off cells only see
// cached or immediate days.
func (s *Server) render(index int) (grid.Grid, error) {
	if _, err := s.coord.Spec(index); err != nil {
		return grid.Grid{}, err
	}
	if cell, ok := s.cellFor(index); ok {
		g, err := s.coord.Render(cell)
		if err == nil && g.Spec.Index == index {
			return g, nil
		}
	}
	cell := calview.NewCell()
	defer s.coord.Unbind(cell)
	if _, _, err := s.coord.Bind(cell, index); err != nil {
		return grid.Grid{}, err
	}
	return s.coord.Render(cell)
}

type stateResponse struct {
	Kind          string `json:"kind"`
	Pages         int    `json:"pages"`
	Visible       int    `json:"visible"`
	Selected      string `json:"selected,omitempty"`
	Today         string `json:"today"`
	AllowsCaching bool   `json:"allows_caching"`
	Revision      uint64 `json:"revision"`
}

func (s *Server) state() stateResponse {
	resp := stateResponse{
		Kind:          s.coord.Kind().String(),
		Pages:         s.coord.NumberOfPages(),
		Today:         s.coord.Today().String(),
		AllowsCaching: s.coord.AllowsCaching(),
	}
	if d, ok := s.coord.SelectedDate(); ok {
		resp.Selected = d.String()
	}
	s.mu.Lock()
	resp.Visible = s.visible
	resp.Revision = s.revision
	s.mu.Unlock()
	return resp
}

func writeCoordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, page.ErrIndexOutOfRange), errors.Is(err, calview.ErrPageOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, calview.ErrSelectionDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, calview.ErrDateNotSelectable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, caldate.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("calendar request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
