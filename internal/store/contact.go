package store

import (
	"database/sql"
	"time"
)

// UpsertContact inserts or updates a contact keyed by email. The company is
// always overwritten, so re-observing an address under another company
// reparents it. An empty name never replaces a known one.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (email, company_id, full_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			company_id = excluded.company_id,
			full_name = CASE WHEN excluded.full_name != '' THEN excluded.full_name ELSE contacts.full_name END,
			updated_at = excluded.updated_at`,
		c.Email, c.CompanyID, c.FullName, now)
	return err
}

// GetContact returns a contact by email.
func (db *DB) GetContact(email string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`SELECT email, company_id, full_name FROM contacts WHERE email = ?`, email).
		Scan(&c.Email, &c.CompanyID, &c.FullName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
