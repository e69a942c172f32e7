package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Section groups entries and carries the section-level notification toggle.
type Section struct {
	ID            string
	Name          string
	NotifyEnabled bool
	CreatedAt     int64
}

// CreateSection inserts a section, assigning an ID when unset.
// Notifications are enabled by default.
func (db *DB) CreateSection(s *Section) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO sections (id, name, notify_enabled, created_at) VALUES (?, ?, ?, ?)
	`, s.ID, s.Name, s.NotifyEnabled, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

// GetSection returns a section by id, or nil if it does not exist.
func (db *DB) GetSection(id string) (*Section, error) {
	var s Section
	err := db.QueryRow(`
		SELECT id, name, notify_enabled, created_at FROM sections WHERE id = ?
	`, id).Scan(&s.ID, &s.Name, &s.NotifyEnabled, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get section: %w", err)
	}
	return &s, nil
}

// ListSections returns all sections ordered by creation time.
func (db *DB) ListSections() ([]Section, error) {
	rows, err := db.Query(`SELECT id, name, notify_enabled, created_at FROM sections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.ID, &s.Name, &s.NotifyEnabled, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// SetSectionNotify flips the section-level notification toggle.
func (db *DB) SetSectionNotify(id string, enabled bool) error {
	res, err := db.Exec(`UPDATE sections SET notify_enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("set section notify: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("section %s not found", id)
	}
	return nil
}
