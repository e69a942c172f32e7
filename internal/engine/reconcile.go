package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/tidemark/cadence/internal/store"
)

// EntryStore is the slice of the store the reconciler needs. Applies
// are transactional per group: one group's creates and deletes commit
// together or the group is left unchanged.
type EntryStore interface {
	ListTemplates() ([]store.Entry, error)
	InstancesInGroup(groupID string) ([]store.Entry, error)
	Suppressions(groupID string) (map[string]bool, error)
	ApplyPlan(groupID string, creates []store.Entry, deleteIDs []string) error
	SetSectionNotify(id string, enabled bool) error
}

// ReconcileAll runs one planning pass over every template and applies
// the resulting plans. A failing group is logged and skipped; the rest
// proceed. Returns the ids of groups whose plan changed anything.
func (e *Engine) ReconcileAll(now time.Time) ([]string, error) {
	templates, err := e.Store.ListTemplates()
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	horizonEnd := now.AddDate(0, 0, e.HorizonDays)
	var applied []string
	for _, tpl := range templates {
		changed, err := e.reconcileGroup(tpl, now, horizonEnd)
		if err != nil {
			log.Printf("reconcile: group %s: %v", tpl.GroupID, err)
			continue
		}
		if changed {
			applied = append(applied, tpl.GroupID)
		}
	}
	return applied, nil
}

// ReconcileGroup runs one planning pass for a single template's group.
func (e *Engine) ReconcileGroup(groupID string, now time.Time) (bool, error) {
	templates, err := e.Store.ListTemplates()
	if err != nil {
		return false, fmt.Errorf("list templates: %w", err)
	}
	for _, tpl := range templates {
		if tpl.GroupID == groupID {
			return e.reconcileGroup(tpl, now, now.AddDate(0, 0, e.HorizonDays))
		}
	}
	// No template left for the group (deleted); nothing to materialize.
	return false, nil
}

func (e *Engine) reconcileGroup(tpl store.Entry, now, horizonEnd time.Time) (bool, error) {
	existing, err := e.Store.InstancesInGroup(tpl.GroupID)
	if err != nil {
		return false, fmt.Errorf("load instances: %w", err)
	}
	suppressed, err := e.Store.Suppressions(tpl.GroupID)
	if err != nil {
		return false, fmt.Errorf("load suppressions: %w", err)
	}

	plan, err := PlanGroup(tpl, existing, suppressed, e.Loc, now, horizonEnd)
	if err != nil {
		return false, err
	}
	if plan.Empty() {
		return false, nil
	}
	if err := e.Store.ApplyPlan(plan.GroupID, plan.Create, plan.Delete); err != nil {
		return false, fmt.Errorf("apply plan: %w", err)
	}
	return true, nil
}
