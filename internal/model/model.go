package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Occurrence is one concrete instance of a calendar event after recurrence
// expansion, with Start and End in the display timezone.
type Occurrence struct {
	FeedID string // config ICS ID
	UID    string // iCalendar UID

	// InstanceKey tells instances of one recurring event apart; it is the
	// local start time in RFC3339.
	InstanceKey string

	Summary string
	AllDay  bool

	Start time.Time
	End   time.Time
}

// Days returns the first and last calendar day the occurrence touches. End
// is exclusive, so an event ending at midnight does not spill into the next
// day. Zero-length events touch their start day only.
func (o Occurrence) Days() (first, last civil.Date) {
	first = civil.DateOf(o.Start)
	if !o.End.After(o.Start) {
		return first, first
	}
	last = civil.DateOf(o.End.Add(-time.Nanosecond))
	if last.Before(first) {
		last = first
	}
	return first, last
}
