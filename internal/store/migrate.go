package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/mailingest/internal/store/migrations"
)

// ErrDirtySchema means an earlier migration stopped half way. Ingesting on
// top of it could break dedupe, so it needs manual repair first.
var ErrDirtySchema = errors.New("store schema is dirty")

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// SchemaInfo is the applied schema version next to the newest one this
// build knows about.
type SchemaInfo struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Behind reports whether the next mailingestd run will migrate the store.
func (s SchemaInfo) Behind() bool { return s.Version < s.Latest }

// Migrate brings the store schema up to date. A dirty schema is refused
// rather than forced.
func (db *DB) Migrate() (*MigrateResult, error) {
	if db.readOnly {
		return nil, errors.New("migrate: store opened read-only")
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	if version, dirty, err := m.Version(); err == nil && dirty {
		return nil, fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	} else if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migration version: %w", err)
	}

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migration up: %w", err)
		}
		changed = false
	}

	version, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	return &MigrateResult{
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}

// SchemaVersion reads the applied version without touching the store, so it
// works on a read-only handle. A store that was never migrated is version 0.
func (db *DB) SchemaVersion() (SchemaInfo, error) {
	latest, err := LatestSchemaVersion()
	if err != nil {
		return SchemaInfo{}, err
	}
	info := SchemaInfo{Latest: latest}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return info, nil
	}
	if err != nil {
		return SchemaInfo{}, fmt.Errorf("schema version: %w", err)
	}

	var version int64
	err = db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &info.Dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return info, nil
	}
	if err != nil {
		return SchemaInfo{}, fmt.Errorf("schema version: %w", err)
	}
	if version > 0 {
		info.Version = uint(version)
	}
	return info, nil
}

// LatestSchemaVersion returns the highest migration embedded in this build.
func LatestSchemaVersion() (uint, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}
	defer func() { _ = src.Close() }()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("next migration: %w", err)
		}
		v = next
	}
}
