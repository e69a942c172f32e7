package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Date and wall-clock formats used throughout the entry schema.
const (
	DateFormat  = "2006-01-02"
	ClockFormat = "15:04"
)

// Entry is a single row in the entries table: either a recurrence
// template (IsTemplate, carries RRule, Date is the recurrence anchor)
// or a concrete dated instance. Standalone entries have no GroupID.
type Entry struct {
	ID           string
	SectionID    string
	GroupID      string // recurrence group; empty for non-recurring entries
	IsTemplate   bool
	Title        string
	Date         string // "2006-01-02"
	StartTime    string // "15:04"; empty means no wall-clock time
	DurationMin  int
	NotifyBefore bool
	RRule        string
	Completed    bool
	Edited       bool
	CreatedAt    int64
	UpdatedAt    int64
	CompletedAt  *int64
}

// StartAt resolves the entry's concrete start in the given location.
// Entries without a wall-clock time resolve to midnight with ok=false.
func (e *Entry) StartAt(loc *time.Location) (t time.Time, ok bool) {
	if e.StartTime == "" {
		t, err := time.ParseInLocation(DateFormat, e.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, false
	}
	t, err := time.ParseInLocation(DateFormat+" "+ClockFormat, e.Date+" "+e.StartTime, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

const entryCols = `id, section_id, group_id, is_template, title, date, start_time,
	duration_min, notify_before, rrule, completed, edited, created_at, updated_at, completed_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	var groupID, startTime, rr sql.NullString
	err := row.Scan(&e.ID, &e.SectionID, &groupID, &e.IsTemplate, &e.Title, &e.Date, &startTime,
		&e.DurationMin, &e.NotifyBefore, &rr, &e.Completed, &e.Edited, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt)
	if err != nil {
		return nil, err
	}
	e.GroupID = groupID.String
	e.StartTime = startTime.String
	e.RRule = rr.String
	return &e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateEntry inserts an entry, assigning an ID and timestamps when unset.
func (db *DB) CreateEntry(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO entries (id, section_id, group_id, is_template, title, date, start_time,
			duration_min, notify_before, rrule, completed, edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SectionID, nullable(e.GroupID), e.IsTemplate, e.Title, e.Date, nullable(e.StartTime),
		e.DurationMin, e.NotifyBefore, nullable(e.RRule), e.Completed, e.Edited, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// GetEntry returns an entry by id, or nil if it does not exist.
func (db *DB) GetEntry(id string) (*Entry, error) {
	e, err := scanEntry(db.QueryRow(`SELECT `+entryCols+` FROM entries WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// UpdateEntry rewrites an entry's mutable fields.
func (db *DB) UpdateEntry(e *Entry) error {
	e.UpdatedAt = time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE entries
		SET section_id = ?, title = ?, date = ?, start_time = ?, duration_min = ?,
			notify_before = ?, rrule = ?, completed = ?, edited = ?, updated_at = ?
		WHERE id = ?
	`, e.SectionID, e.Title, e.Date, nullable(e.StartTime), e.DurationMin,
		e.NotifyBefore, nullable(e.RRule), e.Completed, e.Edited, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entry %s not found", e.ID)
	}
	return nil
}

// CompleteEntry marks an entry completed. Completed entries count as
// user-touched: regeneration never removes them.
func (db *DB) CompleteEntry(id string) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE entries SET completed = 1, completed_at = ?, updated_at = ? WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("complete entry: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entry %s not found", id)
	}
	return nil
}

// DeleteInstance deletes an entry at the user's request. For generated
// instances this writes a suppression tombstone in the same transaction
// so regeneration does not resurrect the date.
func (db *DB) DeleteInstance(id string) error {
	e, err := db.GetEntry(id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("entry %s not found", id)
	}
	if e.IsTemplate {
		return fmt.Errorf("entry %s is a template; delete it via DeleteTemplate", id)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if e.GroupID != "" {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO suppressions (group_id, date, created_at) VALUES (?, ?, ?)
		`, e.GroupID, e.Date, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("insert suppression: %w", err)
		}
	}
	// Any scheduled_notifications row stays: the next resync must still
	// see the id in the previously-scheduled set to cancel the OS
	// reminder, and only unmarks on confirmed cancel.
	return tx.Commit()
}

// DeleteTemplate removes a template and its group's future, untouched
// instances, plus the group's suppression tombstones. Past and
// user-edited instances survive as standalone history.
func (db *DB) DeleteTemplate(id, today string) error {
	e, err := db.GetEntry(id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("template %s not found", id)
	}
	if !e.IsTemplate {
		return fmt.Errorf("entry %s is not a template", id)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete template: %w", err)
	}
	defer tx.Rollback()

	// Scheduled-notification marks for the removed instances are left in
	// place; the next resync diffs them against the due set and cancels.
	if _, err := tx.Exec(`
		DELETE FROM entries
		WHERE group_id = ? AND is_template = 0 AND date >= ? AND edited = 0 AND completed = 0
	`, e.GroupID, today); err != nil {
		return fmt.Errorf("delete group instances: %w", err)
	}
	// Surviving instances are detached from the now-dead group.
	if _, err := tx.Exec(`
		UPDATE entries SET group_id = NULL WHERE group_id = ? AND is_template = 0
	`, e.GroupID); err != nil {
		return fmt.Errorf("detach group instances: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM suppressions WHERE group_id = ?`, e.GroupID); err != nil {
		return fmt.Errorf("delete group suppressions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return tx.Commit()
}

// ListTemplates returns all recurrence templates.
func (db *DB) ListTemplates() ([]Entry, error) {
	return db.queryEntries(`SELECT `+entryCols+` FROM entries WHERE is_template = 1 ORDER BY created_at`)
}

// InstancesInGroup returns all non-template instances of a recurrence group.
func (db *DB) InstancesInGroup(groupID string) ([]Entry, error) {
	return db.queryEntries(`
		SELECT `+entryCols+` FROM entries
		WHERE group_id = ? AND is_template = 0 ORDER BY date
	`, groupID)
}

// EntriesBetween returns non-template instances with date in [from, to],
// ordered by date then start time.
func (db *DB) EntriesBetween(from, to string) ([]Entry, error) {
	return db.queryEntries(`
		SELECT `+entryCols+` FROM entries
		WHERE is_template = 0 AND date >= ? AND date <= ?
		ORDER BY date, start_time
	`, from, to)
}

// EntriesInSection returns all non-template instances in a section.
func (db *DB) EntriesInSection(sectionID string) ([]Entry, error) {
	return db.queryEntries(`
		SELECT `+entryCols+` FROM entries
		WHERE section_id = ? AND is_template = 0 ORDER BY date, start_time
	`, sectionID)
}

// DueEntries returns instances eligible for a reminder in [from, to]:
// notify-before set, a concrete start time, and the owning section's
// notifications enabled.
func (db *DB) DueEntries(from, to string) ([]Entry, error) {
	return db.queryEntries(`
		SELECT `+entryColsQualified(`e`)+` FROM entries e
		JOIN sections s ON s.id = e.section_id
		WHERE e.is_template = 0
			AND e.notify_before = 1
			AND e.start_time IS NOT NULL
			AND e.date >= ? AND e.date <= ?
			AND s.notify_enabled = 1
		ORDER BY e.date, e.start_time
	`, from, to)
}

func entryColsQualified(alias string) string {
	return alias + `.id, ` + alias + `.section_id, ` + alias + `.group_id, ` + alias + `.is_template, ` +
		alias + `.title, ` + alias + `.date, ` + alias + `.start_time, ` + alias + `.duration_min, ` +
		alias + `.notify_before, ` + alias + `.rrule, ` + alias + `.completed, ` + alias + `.edited, ` +
		alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.completed_at`
}

func (db *DB) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Suppressions returns the set of tombstoned dates for a group.
func (db *DB) Suppressions(groupID string) (map[string]bool, error) {
	rows, err := db.Query(`SELECT date FROM suppressions WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query suppressions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out[d] = true
	}
	return out, rows.Err()
}

// AddSuppression records a tombstone for a (group, date) pair.
func (db *DB) AddSuppression(groupID, date string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO suppressions (group_id, date, created_at) VALUES (?, ?, ?)
	`, groupID, date, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add suppression: %w", err)
	}
	return nil
}

// ApplyPlan commits a reconciliation plan for one group atomically:
// all creates and deletes land together or not at all.
func (db *DB) ApplyPlan(groupID string, creates []Entry, deleteIDs []string) error {
	if len(creates) == 0 && len(deleteIDs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin apply plan: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for i := range creates {
		e := &creates[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt == 0 {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		if _, err := tx.Exec(`
			INSERT INTO entries (id, section_id, group_id, is_template, title, date, start_time,
				duration_min, notify_before, rrule, completed, edited, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.SectionID, nullable(e.GroupID), e.IsTemplate, e.Title, e.Date, nullable(e.StartTime),
			e.DurationMin, e.NotifyBefore, nullable(e.RRule), e.Completed, e.Edited, e.CreatedAt, e.UpdatedAt); err != nil {
			return fmt.Errorf("apply create %s/%s: %w", groupID, e.Date, err)
		}
	}
	for _, id := range deleteIDs {
		if _, err := tx.Exec(`DELETE FROM entries WHERE id = ? AND is_template = 0`, id); err != nil {
			return fmt.Errorf("apply delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}
