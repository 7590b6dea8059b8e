package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoStore is returned by OpenReadOnly when nothing has been ingested at
// the given path yet.
var ErrNoStore = errors.New("store does not exist")

// DB wraps the SQLite database that holds imports, emails and the
// company/contact/thread directory.
type DB struct {
	*sql.DB
	readOnly bool
}

// Open opens the store for ingestion, creating the file and its parent
// directory if needed. Foreign keys are enforced so a contact can never
// point at a missing company.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", false)
}

// OpenReadOnly opens an existing store for inspection while a run may be
// writing to it. It never creates or migrates anything.
func OpenReadOnly(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoStore, path)
		}
		return nil, fmt.Errorf("stat db: %w", err)
	}
	return open("file:"+path+"?mode=ro&_busy_timeout=5000&_query_only=true", true)
}

func open(dsn string, readOnly bool) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, readOnly: readOnly}, nil
}
