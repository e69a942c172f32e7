package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/tidemark/cadence/internal/store"
)

// Plan is the set of mutations that brings one recurrence group in line
// with its template over the planning horizon. Applying a plan and
// re-planning yields an empty plan.
type Plan struct {
	GroupID string
	Create  []store.Entry
	Delete  []string
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Delete) == 0
}

// PlanGroup computes the mutations needed to cover [now, horizonEnd]
// for one template, given the group's existing instances and its
// suppressed (user-deleted) dates.
//
// Rules honored:
//   - only missing future occurrence dates produce creates;
//   - suppressed dates are never recreated;
//   - deletes touch only future, auto-generated instances (not edited,
//     not completed) whose date the rule no longer produces;
//   - instances whose start has elapsed are history and never touched.
func PlanGroup(tpl store.Entry, existing []store.Entry, suppressed map[string]bool, loc *time.Location, now, horizonEnd time.Time) (Plan, error) {
	if !tpl.IsTemplate || tpl.GroupID == "" {
		return Plan{}, fmt.Errorf("entry %s is not a recurrence template", tpl.ID)
	}

	occurrences, err := Occurrences(tpl, loc, now, horizonEnd)
	if err != nil {
		return Plan{}, err
	}

	want := make(map[string]bool, len(occurrences))
	for _, t := range occurrences {
		want[t.In(loc).Format(store.DateFormat)] = true
	}

	plan := Plan{GroupID: tpl.GroupID}
	occupied := make(map[string]bool, len(existing))

	for _, inst := range existing {
		if inst.IsTemplate {
			continue
		}
		occupied[inst.Date] = true

		start, _ := inst.StartAt(loc)
		if start.IsZero() || start.Before(now) {
			continue // elapsed; history is immutable
		}
		if inst.Edited || inst.Completed {
			continue // user-touched; never removed by regeneration
		}
		if !want[inst.Date] {
			plan.Delete = append(plan.Delete, inst.ID)
		}
	}

	dates := make([]string, 0, len(want))
	for d := range want {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, d := range dates {
		if occupied[d] || suppressed[d] {
			continue
		}
		plan.Create = append(plan.Create, store.Entry{
			SectionID:    tpl.SectionID,
			GroupID:      tpl.GroupID,
			Title:        tpl.Title,
			Date:         d,
			StartTime:    tpl.StartTime,
			DurationMin:  tpl.DurationMin,
			NotifyBefore: tpl.NotifyBefore,
		})
	}

	return plan, nil
}
