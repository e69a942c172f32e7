package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "sections: entry grouping with per-section notification toggle",
		SQL: `
CREATE TABLE sections (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    notify_enabled INTEGER NOT NULL DEFAULT 1,
    created_at     INTEGER NOT NULL
);

CREATE INDEX idx_sections_name ON sections(name);
`,
	},
	{
		Version:     2,
		Description: "entries: templates and dated instances",
		SQL: `
CREATE TABLE entries (
    id            TEXT PRIMARY KEY,
    section_id    TEXT NOT NULL,
    group_id      TEXT,
    is_template   INTEGER NOT NULL DEFAULT 0,
    title         TEXT NOT NULL,

    -- Instance date and optional wall-clock start, stored as strings
    -- ("2006-01-02" / "15:04") so date occupancy is a plain equality.
    date          TEXT NOT NULL,
    start_time    TEXT,
    duration_min  INTEGER NOT NULL DEFAULT 0,

    notify_before INTEGER NOT NULL DEFAULT 0,
    rrule         TEXT,

    completed     INTEGER NOT NULL DEFAULT 0,
    edited        INTEGER NOT NULL DEFAULT 0,

    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,

    FOREIGN KEY (section_id) REFERENCES sections(id)
);

CREATE INDEX idx_entries_section ON entries(section_id);
CREATE INDEX idx_entries_date    ON entries(date);
CREATE INDEX idx_entries_group   ON entries(group_id);

-- One template per group; one instance per (group, date).
CREATE UNIQUE INDEX idx_entries_group_template ON entries(group_id)
    WHERE group_id IS NOT NULL AND is_template = 1;
CREATE UNIQUE INDEX idx_entries_group_date ON entries(group_id, date)
    WHERE group_id IS NOT NULL AND is_template = 0;
`,
	},
	{
		Version:     3,
		Description: "suppressions: tombstones for user-deleted generated instances",
		SQL: `
CREATE TABLE suppressions (
    group_id   TEXT NOT NULL,
    date       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, date)
);
`,
	},
	{
		Version:     4,
		Description: "scheduled_notifications: reminders currently held by the OS",
		SQL: `
CREATE TABLE scheduled_notifications (
    entry_id   TEXT PRIMARY KEY,
    fire_at    INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     5,
		Description: "entries: completed_at timestamp (additive, nullable)",
		SQL: `
ALTER TABLE entries ADD COLUMN completed_at INTEGER;
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
