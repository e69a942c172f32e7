// Package export serializes materialized entries as an iCalendar feed
// so the tracked schedule can be subscribed to from any calendar app.
package export

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/tidemark/cadence/internal/store"
)

// Calendar renders the given entries as a VCALENDAR. Templates are
// skipped: their materialized instances already carry the schedule.
// Entries without a wall-clock time become all-day events.
func Calendar(entries []store.Entry, loc *time.Location) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//cadence//EN")

	for _, e := range entries {
		if e.IsTemplate {
			continue
		}
		start, hasClock := e.StartAt(loc)
		if start.IsZero() {
			continue
		}

		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(time.UnixMilli(e.UpdatedAt).In(loc))
		ev.SetSummary(e.Title)

		if !hasClock {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
			continue
		}

		ev.SetStartAt(start)
		dur := time.Duration(e.DurationMin) * time.Minute
		if dur <= 0 {
			dur = time.Hour
		}
		ev.SetEndAt(start.Add(dur))
	}

	return cal.Serialize()
}
