package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateImport records a new import in the processing state.
func (db *DB) CreateImport(id, filename string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO imports (id, filename, status, emails_processed, created_at, updated_at)
		VALUES (?, ?, 'processing', 0, ?, ?)`,
		id, filename, now, now)
	if err != nil {
		return fmt.Errorf("create import %s: %w", id, err)
	}
	return nil
}

// FinishImport sets the final status and processed count of an import.
func (db *DB) FinishImport(id string, status ImportStatus, processed int64) error {
	res, err := db.Exec(`
		UPDATE imports SET status = ?, emails_processed = ?, updated_at = ?
		WHERE id = ?`,
		status, processed, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("finish import %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish import %s: not found", id)
	}
	return nil
}

// GetImport returns an import by id.
func (db *DB) GetImport(id string) (*Import, error) {
	var imp Import
	err := db.QueryRow(`SELECT id, filename, status, emails_processed FROM imports WHERE id = ?`, id).
		Scan(&imp.ID, &imp.Filename, &imp.Status, &imp.EmailsProcessed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

// Counts returns the row count of every table, plus the emails still
// waiting for the downstream collaborator.
func (db *DB) Counts() (*TableCounts, error) {
	var c TableCounts
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM imports),
			(SELECT COUNT(*) FROM emails),
			(SELECT COUNT(*) FROM emails WHERE processed_by_downstream = 0),
			(SELECT COUNT(*) FROM companies),
			(SELECT COUNT(*) FROM contacts),
			(SELECT COUNT(*) FROM email_threads)`).
		Scan(&c.Imports, &c.Emails, &c.Unprocessed, &c.Companies, &c.Contacts, &c.Threads)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
