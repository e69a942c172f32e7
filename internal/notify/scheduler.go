package notify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/tidemark/cadence/internal/store"
)

// ScheduleStore is the slice of the entry store the scheduler needs:
// the due-set query plus the persisted previously-scheduled set.
type ScheduleStore interface {
	DueEntries(from, to string) ([]store.Entry, error)
	ScheduledNotifications() (map[string]int64, error)
	MarkScheduled(entryID string, fireAt int64) error
	UnmarkScheduled(entryID string) error
}

// Scheduler keeps the OS notification set in sync with the entries due
// within the horizon. Resync is idempotent from any entry snapshot: the
// previously-scheduled set is only advanced on confirmed capability
// success, so a crash mid-pass is safe to retry.
type Scheduler struct {
	Store   ScheduleStore
	Cap     Capability
	Lead    time.Duration
	Horizon time.Duration
	Loc     *time.Location
}

// NewScheduler wires a scheduler with the given lead time and horizon.
func NewScheduler(st ScheduleStore, cap Capability, lead, horizon time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{Store: st, Cap: cap, Lead: lead, Horizon: horizon, Loc: loc}
}

// Result reports what one resync pass changed. PermissionDenied is a
// recoverable state, not an error: cancels were still applied and a
// later grant schedules everything on the next pass.
type Result struct {
	Scheduled        []string
	Cancelled        []string
	PermissionDenied bool
}

type target struct {
	entry  store.Entry
	fireAt time.Time
}

// Resync diffs the due set against the previously-scheduled set and
// drives the capability: new entries are scheduled, dropped entries
// cancelled, moved entries cancelled then rescheduled. Unchanged fire
// times are left untouched.
func (s *Scheduler) Resync(ctx context.Context, now time.Time) (Result, error) {
	var result Result

	prev, err := s.Store.ScheduledNotifications()
	if err != nil {
		return result, fmt.Errorf("load scheduled set: %w", err)
	}

	local := now.In(s.Loc)
	from := local.Format(store.DateFormat)
	to := local.Add(s.Horizon).Format(store.DateFormat)
	due, err := s.Store.DueEntries(from, to)
	if err != nil {
		return result, fmt.Errorf("load due set: %w", err)
	}

	targets := make(map[string]target, len(due))
	for _, e := range due {
		start, hasClock := e.StartAt(s.Loc)
		if !hasClock {
			continue
		}
		fire := start.Add(-s.Lead)
		if fire.Before(now) {
			continue // too late to remind; never deliver stale
		}
		targets[e.ID] = target{entry: e, fireAt: fire}
	}

	// Cancel pass first: needs no permission, and a moved fire time must
	// never leave the old one active.
	for id, prevFire := range prev {
		if t, ok := targets[id]; ok && t.fireAt.UnixMilli() == prevFire {
			continue
		}
		if err := s.Cap.Cancel(ctx, id); err != nil {
			log.Printf("notify: cancel %s: %v (will retry)", id, err)
			continue
		}
		if err := s.Store.UnmarkScheduled(id); err != nil {
			return result, fmt.Errorf("unmark %s: %w", id, err)
		}
		delete(prev, id)
		result.Cancelled = append(result.Cancelled, id)
	}

	var toSchedule []target
	for id, t := range targets {
		if _, ok := prev[id]; ok {
			continue // already scheduled at the right time
		}
		toSchedule = append(toSchedule, t)
	}
	if len(toSchedule) == 0 {
		return result, nil
	}
	sort.Slice(toSchedule, func(i, j int) bool {
		return toSchedule[i].fireAt.Before(toSchedule[j].fireAt)
	})

	granted, err := s.Cap.RequestPermission(ctx)
	if err != nil {
		return result, fmt.Errorf("request permission: %w", err)
	}
	if !granted {
		result.PermissionDenied = true
		return result, nil
	}

	for _, t := range toSchedule {
		start, _ := t.entry.StartAt(s.Loc)
		body := fmt.Sprintf("Starts at %s", start.Format(store.ClockFormat))
		if err := s.Cap.Schedule(ctx, t.entry.ID, t.fireAt, t.entry.Title, body); err != nil {
			// Entry stays in the due set and unmarked; next resync retries.
			log.Printf("notify: schedule %s: %v (will retry)", t.entry.ID, err)
			continue
		}
		if err := s.Store.MarkScheduled(t.entry.ID, t.fireAt.UnixMilli()); err != nil {
			return result, fmt.Errorf("mark %s: %w", t.entry.ID, err)
		}
		result.Scheduled = append(result.Scheduled, t.entry.ID)
	}

	return result, nil
}
