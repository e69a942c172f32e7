package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tidemark/cadence/internal/notify"
)

// Notifier re-derives the notification schedule from the current entry
// set. Satisfied by *notify.Scheduler.
type Notifier interface {
	Resync(ctx context.Context, now time.Time) (notify.Result, error)
}

// Engine drives recurrence reconciliation and notification resync off
// discrete lifecycle events: activation, template edit, section toggle,
// and the periodic tick. Passes are serialized — never two against the
// same group at once.
type Engine struct {
	Store       EntryStore
	Notifier    Notifier
	Loc         *time.Location
	HorizonDays int

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates an Engine. notifier may be nil (reconciliation only).
func New(st EntryStore, notifier Notifier, loc *time.Location, horizonDays int) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		Store:       st,
		Notifier:    notifier,
		Loc:         loc,
		HorizonDays: horizonDays,
	}
}

// ActivationResult reports what one activation pass did.
type ActivationResult struct {
	Applied []string
	Notify  notify.Result
}

// OnActivate runs a full pass: reconcile every group, then resync
// notifications from the updated entry set.
func (e *Engine) OnActivate(ctx context.Context) (ActivationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().In(e.Loc)
	applied, err := e.ReconcileAll(now)
	if err != nil {
		return ActivationResult{}, err
	}
	res := ActivationResult{Applied: applied}
	if e.Notifier != nil {
		nres, err := e.Notifier.Resync(ctx, now)
		if err != nil {
			return res, err
		}
		res.Notify = nres
	}
	return res, nil
}

// OnTemplateEdit reconciles a single group after its template was
// created, updated, or deleted, then resyncs notifications.
func (e *Engine) OnTemplateEdit(ctx context.Context, groupID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().In(e.Loc)
	if _, err := e.ReconcileGroup(groupID, now); err != nil {
		return err
	}
	return e.resyncLocked(ctx, now)
}

// OnSectionToggle flips a section's notification flag and resyncs; the
// due-set diff cancels or schedules exactly that section's reminders.
func (e *Engine) OnSectionToggle(ctx context.Context, sectionID string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.Store.SetSectionNotify(sectionID, enabled); err != nil {
		return err
	}
	return e.resyncLocked(ctx, time.Now().In(e.Loc))
}

// ResyncNow runs a notification resync without reconciling.
func (e *Engine) ResyncNow(ctx context.Context) (notify.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().In(e.Loc)
	if e.Notifier == nil {
		return notify.Result{}, nil
	}
	return e.Notifier.Resync(ctx, now)
}

func (e *Engine) resyncLocked(ctx context.Context, now time.Time) error {
	if e.Notifier == nil {
		return nil
	}
	res, err := e.Notifier.Resync(ctx, now)
	if err != nil {
		return err
	}
	if res.PermissionDenied {
		log.Printf("notify: permission denied; reminders deferred until granted")
	}
	return nil
}

// StartCron runs an activation pass immediately and then on the given
// cron schedule, keeping the horizon sliding while the server runs.
func (e *Engine) StartCron(spec string) error {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if res, err := e.OnActivate(ctx); err != nil {
			log.Printf("reconcile: pass failed: %v", err)
		} else if len(res.Applied) > 0 {
			log.Printf("reconcile: updated %d groups", len(res.Applied))
		}
	}
	run()

	c := cron.New()
	if _, err := c.AddFunc(spec, run); err != nil {
		return err
	}
	c.Start()
	e.cron = c
	return nil
}

// Stop halts the periodic pass.
func (e *Engine) Stop() {
	if e.cron != nil {
		e.cron.Stop()
	}
}
