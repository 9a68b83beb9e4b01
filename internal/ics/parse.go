package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "pagecal/internal/log"
)

// Event is a VEVENT reduced to what day marking needs. Recurrences are not
// expanded here; see Expand.
//
// All-day events carry floating dates: Start and End are midnight UTC of the
// written date and are re-anchored to the display timezone on expansion.
type Event struct {
	FeedID  string
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time // set on overrides of a recurring instance
}

// Parse decodes one ICS payload. A VEVENT that cannot be read is logged and
// skipped; only an unreadable calendar fails.
func Parse(feed Feed, body []byte, logger *appLog.Logger) ([]Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("ics: %s: empty body", feed.ID)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", feed.ID, err)
	}

	out := make([]Event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(feed, ve)
		if err != nil {
			logger.Error("ics vevent skipped", err, "id", feed.ID)
			continue
		}
		out = append(out, ev)
	}
	logger.Debug("ics parse completed", "id", feed.ID, "event_count", len(out))
	return out, nil
}

func parseVEvent(feed Feed, ve *ical.VEvent) (Event, error) {
	ev := Event{FeedID: feed.ID}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", ev.UID)
	}
	ev.AllDay = isDateValue(dtStart)

	if ev.AllDay {
		start, err := parseFloatingDate(dtStart.Value)
		if err != nil {
			return ev, fmt.Errorf("%s: DTSTART: %w", ev.UID, err)
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseFloatingDate(dtEnd.Value); err == nil && end.After(start) {
				ev.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return ev, fmt.Errorf("%s: DTSTART: %w", ev.UID, err)
		}
		ev.Start = start
		ev.End = start
		if end, err := ve.GetEndAt(); err == nil && !end.Before(start) {
			ev.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, ev.AllDay); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, ev.AllDay); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseFloatingDate(v string) (time.Time, error) {
	return time.Parse("20060102", strings.TrimSpace(v))
}

// parseICSTime reads EXDATE / RECURRENCE-ID values, which lack the property
// parameters the library would use. Dates follow the all-day convention.
func parseICSTime(v string, allDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case allDay && len(v) >= 8:
		return parseFloatingDate(v[:8])
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}
