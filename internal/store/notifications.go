package store

import (
	"fmt"
	"time"
)

// ScheduledNotifications returns the persisted previously-scheduled set:
// entry id -> fire time (unix millis). Persisting this set keeps resync
// correct across relaunches.
func (db *DB) ScheduledNotifications() (map[string]int64, error) {
	rows, err := db.Query(`SELECT entry_id, fire_at FROM scheduled_notifications`)
	if err != nil {
		return nil, fmt.Errorf("query scheduled notifications: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var fireAt int64
		if err := rows.Scan(&id, &fireAt); err != nil {
			return nil, fmt.Errorf("scan scheduled notification: %w", err)
		}
		out[id] = fireAt
	}
	return out, rows.Err()
}

// MarkScheduled records a confirmed OS-side schedule for an entry.
func (db *DB) MarkScheduled(entryID string, fireAt int64) error {
	_, err := db.Exec(`
		INSERT INTO scheduled_notifications (entry_id, fire_at, created_at) VALUES (?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET fire_at = excluded.fire_at
	`, entryID, fireAt, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark scheduled: %w", err)
	}
	return nil
}

// UnmarkScheduled drops an entry from the previously-scheduled set.
func (db *DB) UnmarkScheduled(entryID string) error {
	_, err := db.Exec(`DELETE FROM scheduled_notifications WHERE entry_id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("unmark scheduled: %w", err)
	}
	return nil
}
