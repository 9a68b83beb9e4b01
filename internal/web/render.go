package web

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"pagecal/internal/grid"
	"pagecal/internal/page"
)

type cellDTO struct {
	Date    string `json:"date"`
	Day     int    `json:"day"`
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	InMonth bool   `json:"in_month"`
	Valid   bool   `json:"valid"`
	Class   string `json:"class"`
	Marker  string `json:"marker"`
}

type pageResponse struct {
	Index      int       `json:"index"`
	Kind       string    `json:"kind"`
	Identity   string    `json:"identity"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
	RangeStart string    `json:"range_start"`
	RangeEnd   string    `json:"range_end"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	Titles     []string  `json:"titles"`
	Events     []int     `json:"events"`
	Cells      []cellDTO `json:"cells"`
}

func (s *Server) pageDTO(g grid.Grid) pageResponse {
	info := g.Spec.Info()
	resp := pageResponse{
		Index:      g.Spec.Index,
		Kind:       g.Spec.Kind.String(),
		Identity:   string(g.Spec.Identity()),
		Month:      info.Month,
		Year:       info.Year,
		RangeStart: g.Spec.RangeStart.String(),
		RangeEnd:   g.Spec.RangeEnd.String(),
		Rows:       g.Rows,
		Columns:    g.Columns,
		Titles:     s.coord.WeekdayTitles(s.opts.Titles),
		Events:     []int{},
		Cells:      make([]cellDTO, 0, len(g.Cells)),
	}
	for _, c := range g.Cells {
		if c.HasEvent {
			resp.Events = append(resp.Events, c.DayNumber)
		}
		resp.Cells = append(resp.Cells, cellDTO{
			Date:    c.Date.String(),
			Day:     c.DayNumber,
			Row:     c.Row,
			Column:  c.Column,
			InMonth: c.BelongsToReferenceMonth,
			Valid:   c.IsValid,
			Class:   c.Class().String(),
			Marker:  c.Marker().String(),
		})
	}
	return resp
}

type calendarView struct {
	Title  string
	Page   pageResponse
	Weeks  [][]cellDTO
	Titles []string
}

var calendarTmpl = template.Must(template.New("calendar").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:24px}
table{border-collapse:collapse;width:100%}
th,td{width:14.2%;height:64px;text-align:center;border:1px solid #ddd}
.weekend{color:#c00}.today{font-weight:bold;text-decoration:underline}
.selected{background:#222;color:#fff}.invalid{color:#bbb}.other-month{color:#ddd}
.event::after{content:"\2022";display:block}
.selected-event::after{content:"\2022";display:block;color:#fd0}
</style>
</head>
<body>
<div id="calendar" data-ready="true" data-page="{{.Page.Identity}}">
<h1>{{.Title}}</h1>
<table>
<tr>{{range .Titles}}<th>{{.}}</th>{{end}}</tr>
{{range .Weeks}}<tr>{{range .}}<td class="{{.Class}} {{.Marker}}" data-date="{{.Date}}">{{.Day}}</td>{{end}}</tr>
{{end}}</table>
</div>
</body>
</html>
`))

// handleCalendar renders the visible page, or ?index=N, as HTML. The root
// carries data-ready="true" for the screenshot capture.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	index, _ := s.VisiblePage()
	if v := r.URL.Query().Get("index"); v != "" {
		var err error
		if index, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "page index must be an integer")
			return
		}
	}
	g, err := s.render(index)
	if err != nil {
		writeCoordError(w, err)
		return
	}

	dto := s.pageDTO(g)
	view := calendarView{Title: pageTitle(g.Spec), Page: dto, Titles: dto.Titles}
	for row := 0; row < g.Rows; row++ {
		view.Weeks = append(view.Weeks, dto.Cells[row*g.Columns:(row+1)*g.Columns])
	}

	var buf bytes.Buffer
	if err := calendarTmpl.Execute(&buf, view); err != nil {
		s.log.Error("calendar template failed", err, "index", index)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func pageTitle(spec page.Spec) string {
	if spec.Kind == page.Week {
		return spec.RangeStart.String() + " to " + spec.RangeEnd.String()
	}
	return spec.ReferenceDate.Month.String() + " " + strconv.Itoa(spec.ReferenceDate.Year)
}
