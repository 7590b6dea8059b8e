package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CompanyByDomain returns the company owning a domain.
func (db *DB) CompanyByDomain(domain string) (*Company, error) {
	var c Company
	err := db.QueryRow(`
		SELECT id, name, domain, type, classification_reason
		FROM companies WHERE domain = ?`, domain).
		Scan(&c.ID, &c.Name, &c.Domain, &c.Type, &c.ClassificationReason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertCompany creates a company unless one already owns its domain, and
// returns the stored row. The first insert for a domain wins; a concurrent
// insert of the same domain collapses onto it.
func (db *DB) InsertCompany(c *Company) (*Company, error) {
	typ := c.Type
	if typ == "" {
		typ = CompanyUnclassified
	}
	if _, err := db.Exec(`
		INSERT INTO companies (id, name, domain, type, classification_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO NOTHING`,
		c.ID, c.Name, c.Domain, typ, c.ClassificationReason, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert company %q: %w", c.Domain, err)
	}
	stored, err := db.CompanyByDomain(c.Domain)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("company %q missing after insert", c.Domain)
	}
	return stored, nil
}
