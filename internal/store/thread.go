package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertThread inserts or refreshes a thread. Subject, linked company and
// last message time always take the values of the latest write.
func (db *DB) UpsertThread(t *Thread) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO email_threads (id, subject, related_company_id, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			related_company_id = excluded.related_company_id,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		t.ID, t.Subject, t.RelatedCompanyID, formatTime(t.LastMessageAt), now)
	return err
}

// GetThread returns a thread by id.
func (db *DB) GetThread(id string) (*Thread, error) {
	var (
		t    Thread
		last sql.NullString
	)
	err := db.QueryRow(`
		SELECT id, subject, related_company_id, last_message_at
		FROM email_threads WHERE id = ?`, id).
		Scan(&t.ID, &t.Subject, &t.RelatedCompanyID, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.LastMessageAt, err = parseTime(last); err != nil {
		return nil, fmt.Errorf("parse last_message_at: %w", err)
	}
	return &t, nil
}
