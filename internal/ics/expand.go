package ics

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/teambition/rrule-go"

	appLog "pagecal/internal/log"
	"pagecal/internal/model"
)

const defaultMaxPerEvent = 5000

// Window is the inclusive span of days to expand over.
type Window struct {
	From, To civil.Date
	// Location anchors timed events and all-day dates. Nil means time.Local.
	Location *time.Location
	// MaxPerEvent caps instances of one recurring event; zero means 5000.
	MaxPerEvent int
}

// Expand turns parsed events into concrete occurrences overlapping w. It
// applies RRULE, EXDATE and RECURRENCE-ID overrides. Instances moved by an
// override are reported at their new time only.
func Expand(evs []Event, w Window, logger *appLog.Logger) ([]model.Occurrence, error) {
	if w.To.Before(w.From) {
		return nil, fmt.Errorf("ics: window ends %s before it starts %s", w.To, w.From)
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxPerEvent <= 0 {
		w.MaxPerEvent = defaultMaxPerEvent
	}

	overrides := make(map[string][]Event)
	var base []Event
	for _, ev := range evs {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		base = append(base, ev)
	}

	var out []model.Occurrence
	for _, ev := range base {
		occ, capped := expandEvent(ev, overrides[ev.UID], w, logger)
		if capped {
			logger.Error("ics expansion truncated", errors.New("max occurrences reached"),
				"uid", ev.UID, "cap", w.MaxPerEvent)
		}
		out = append(out, occ...)
	}
	for _, list := range overrides {
		for _, ov := range list {
			if overlaps(ov, ov.Start, ov.End, w) {
				out = append(out, occurrence(ov, ov.Start, ov.End, w.Location))
			}
		}
	}
	return out, nil
}

func expandEvent(ev Event, overrides []Event, w Window, logger *appLog.Logger) ([]model.Occurrence, bool) {
	if ev.RRule == "" {
		if overridden(ev, overrides, ev.Start) || !overlaps(ev, ev.Start, ev.End, w) {
			return nil, false
		}
		return []model.Occurrence{occurrence(ev, ev.Start, ev.End, w.Location)}, false
	}

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		logger.Error("ics RRULE skipped", err, "uid", ev.UID, "rrule", ev.RRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	from, to := bounds(ev, w)
	starts := set.Between(from.Add(-dur).In(ev.Start.Location()), to.In(ev.Start.Location()), true)

	capped := false
	if len(starts) > w.MaxPerEvent {
		starts = starts[:w.MaxPerEvent]
		capped = true
	}

	out := make([]model.Occurrence, 0, len(starts))
	for _, s := range starts {
		e := s.Add(dur)
		if overridden(ev, overrides, s) || !overlaps(ev, s, e, w) {
			continue
		}
		out = append(out, occurrence(ev, s, e, w.Location))
	}
	return out, capped
}

// bounds is the window as [from, to) in the event's frame: floating UTC for
// all-day events, the display location otherwise.
func bounds(ev Event, w Window) (time.Time, time.Time) {
	loc := w.Location
	if ev.AllDay {
		loc = time.UTC
	}
	return w.From.In(loc), w.To.AddDays(1).In(loc)
}

func overlaps(ev Event, start, end time.Time, w Window) bool {
	from, to := bounds(ev, w)
	if !end.After(start) {
		return !start.Before(from) && start.Before(to)
	}
	return start.Before(to) && end.After(from)
}

func overridden(ev Event, overrides []Event, start time.Time) bool {
	for _, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			return true
		}
		if ev.AllDay && civil.DateOf(*ov.RecurrenceID) == civil.DateOf(start) {
			return true
		}
	}
	return false
}

func occurrence(ev Event, start, end time.Time, loc *time.Location) model.Occurrence {
	if ev.AllDay {
		start = civil.DateOf(start).In(loc)
		end = civil.DateOf(end).In(loc)
	} else {
		start = start.In(loc)
		end = end.In(loc)
	}
	return model.Occurrence{
		FeedID:      ev.FeedID,
		UID:         ev.UID,
		InstanceKey: start.Format(time.RFC3339),
		Summary:     ev.Summary,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}
