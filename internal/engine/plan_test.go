package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/cadence/internal/store"
)

func weeklyTemplate(rrule string) store.Entry {
	return store.Entry{
		ID:           "tpl-1",
		SectionID:    "sec-1",
		GroupID:      "grp-1",
		IsTemplate:   true,
		Title:        "Gym",
		Date:         "2026-09-07", // a Monday
		StartTime:    "06:00",
		DurationMin:  60,
		NotifyBefore: true,
		RRule:        rrule,
	}
}

// applyLocally simulates the store applying a plan to an in-memory group.
func applyLocally(existing []store.Entry, plan Plan) []store.Entry {
	deleted := make(map[string]bool, len(plan.Delete))
	for _, id := range plan.Delete {
		deleted[id] = true
	}
	var out []store.Entry
	for _, e := range existing {
		if !deleted[e.ID] {
			out = append(out, e)
		}
	}
	for i, d := range plan.Create {
		d.ID = fmt.Sprintf("gen-%d", i)
		out = append(out, d)
	}
	return out
}

func TestPlanScenarioMonday(t *testing.T) {
	loc := time.UTC
	tpl := weeklyTemplate("FREQ=WEEKLY;BYDAY=MO")

	// Monday 7am: this Monday's 6am is past, so exactly two future
	// instances fall inside the two-week horizon.
	now := time.Date(2026, 9, 7, 7, 0, 0, 0, loc)
	plan, err := PlanGroup(tpl, nil, nil, loc, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)

	require.Len(t, plan.Create, 2)
	assert.Empty(t, plan.Delete)
	assert.Equal(t, "2026-09-14", plan.Create[0].Date)
	assert.Equal(t, "2026-09-21", plan.Create[1].Date)

	// Drafts inherit the template's canonical fields.
	d := plan.Create[0]
	assert.Equal(t, "grp-1", d.GroupID)
	assert.Equal(t, "sec-1", d.SectionID)
	assert.Equal(t, "Gym", d.Title)
	assert.Equal(t, "06:00", d.StartTime)
	assert.Equal(t, 60, d.DurationMin)
	assert.True(t, d.NotifyBefore)
	assert.False(t, d.IsTemplate)
	assert.False(t, d.Edited)
}

func TestPlanIdempotent(t *testing.T) {
	loc := time.UTC
	tpl := weeklyTemplate("FREQ=WEEKLY;BYDAY=MO,WE")
	now := time.Date(2026, 9, 7, 0, 0, 0, 0, loc)
	horizon := now.AddDate(0, 0, 28)

	plan, err := PlanGroup(tpl, nil, nil, loc, now, horizon)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Create)

	existing := applyLocally(nil, plan)
	again, err := PlanGroup(tpl, existing, nil, loc, now, horizon)
	require.NoError(t, err)
	assert.True(t, again.Empty(), "second plan should be empty, got %+v", again)
}

func TestPlanNoDuplicateOccupancy(t *testing.T) {
	loc := time.UTC
	tpl := weeklyTemplate("FREQ=WEEKLY;BYDAY=MO")
	now := time.Date(2026, 9, 7, 0, 0, 0, 0, loc)

	existing := []store.Entry{
		{ID: "i1", GroupID: "grp-1", Date: "2026-09-14", StartTime: "06:00"},
	}
	plan, err := PlanGroup(tpl, existing, nil, loc, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)

	for _, d := range plan.Create {
		assert.NotEqual(t, "2026-09-14", d.Date, "occupied date must not be recreated")
	}
}

func TestPlanHistoryImmutable(t *testing.T) {
	loc := time.UTC
	tpl := weeklyTemplate("FREQ=WEEKLY;BYDAY=MO")
	now := time.Date(2026, 9, 10, 0, 0, 0, 0, loc) // Thursday

	existing := []store.Entry{
		// Past Tuesday instance the rule never produced: history, untouched.
		{ID: "past", GroupID: "grp-1", Date: "2026-09-08", StartTime: "06:00"},
		// Elapsed Monday earlier this week: also untouched.
		{ID: "elapsed", GroupID: "grp-1", Date: "2026-09-07", StartTime: "06:00"},
	}
	plan, err := PlanGroup(tpl, existing, nil, loc, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)

	assert.Empty(t, plan.Delete)
	for _, d := range plan.Create {
		parsed, perr := time.ParseInLocation(store.DateFormat, d.Date, loc)
		require.NoError(t, perr)
		assert.False(t, parsed.Before(now.Truncate(24*time.Hour)), "created %s in the past", d.Date)
	}
}

func TestPlanDeletesOrphanedFutureInstances(t *testing.T) {
	loc := time.UTC
	// Rule narrowed from Mon/Wed to Mon only.
	tpl := weeklyTemplate("FREQ=WEEKLY;BYDAY=MO")
	now := time.Date(2026, 9, 7, 0, 0, 0, 0, loc)

	existing := []store.Entry{
		{ID: "wed-auto", GroupID: "grp-1", Date: "2026-09-09", StartTime: "06:00"},
		{ID: "wed-edited", GroupID: "grp-1", Date: "2026-09-16", StartTime: "06:00", Edited: true},
		{ID: "wed-done", GroupID: "grp-1", Date: "2026-09-23", StartTime: "06:00", Completed: true},
		{ID: "mon-keep", GroupID: "grp-1", Date: "2026-09-14", StartTime: "06:00"},
	}
	plan, err := PlanGroup(tpl, existing, nil, loc, now, now.AddDate(0, 0, 21))
	require.NoError(t, err)

	assert.Equal(t, []string{"wed-auto"}, plan.Delete,
		"only the untouched future Wednesday is removable")
}

func TestPlanSuppressionRespected(t *testing.T) {
	loc := time.UTC
	tpl := weeklyTemplate("FREQ=WEEKLY;BYDAY=MO,WE")
	now := time.Date(2026, 9, 7, 0, 0, 0, 0, loc)

	// User deleted the first Wednesday instance.
	suppressed := map[string]bool{"2026-09-09": true}
	plan, err := PlanGroup(tpl, nil, suppressed, loc, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)

	for _, d := range plan.Create {
		assert.NotEqual(t, "2026-09-09", d.Date, "suppressed date must not be recreated")
	}
	// The other occurrences still materialize.
	assert.NotEmpty(t, plan.Create)
}

func TestPlanExpiredRuleOnlyDeletes(t *testing.T) {
	loc := time.UTC
	tpl := weeklyTemplate("FREQ=WEEKLY;BYDAY=MO;UNTIL=20260101T000000Z")
	now := time.Date(2026, 9, 7, 0, 0, 0, 0, loc)

	existing := []store.Entry{
		{ID: "stale", GroupID: "grp-1", Date: "2026-09-14", StartTime: "06:00"},
	}
	plan, err := PlanGroup(tpl, existing, nil, loc, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)

	assert.Empty(t, plan.Create)
	assert.Equal(t, []string{"stale"}, plan.Delete)
}

func TestPlanRejectsNonTemplate(t *testing.T) {
	loc := time.UTC
	inst := store.Entry{ID: "i1", GroupID: "grp-1", Date: "2026-09-07"}
	now := time.Date(2026, 9, 7, 0, 0, 0, 0, loc)

	_, err := PlanGroup(inst, nil, nil, loc, now, now.AddDate(0, 0, 14))
	assert.Error(t, err)
}
